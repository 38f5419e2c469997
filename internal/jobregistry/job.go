package jobregistry

import (
	"errors"
	"log"
	"regexp"
	"sync/atomic"
	"time"
)

// State is a job's position in its lifecycle.
type State int32

const (
	StateActive State = iota
	StateCompleting
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCompleting:
		return "completing"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidJob is returned when a registration has an empty jobId or prompt.
	ErrInvalidJob = errors.New("jobregistry: invalid job")
	// ErrDuplicateJob is returned when jobId already exists in the registry.
	ErrDuplicateJob = errors.New("jobregistry: duplicate job id")
	// ErrJobNotFound is returned by complete/cancel for an unknown jobId.
	ErrJobNotFound = errors.New("jobregistry: job not found")
)

// DataCallback is invoked once per matched post for a job.
type DataCallback func(post MatchedPost)

// CompleteCallback is invoked exactly once on a job's terminal transition.
type CompleteCallback func(jobID string, matchedCount int64, err error)

// JobConfig is the caller-supplied configuration for Register.
type JobConfig struct {
	JobID         string
	Prompt        string
	CorrelationID string
	Deadline      time.Duration
	OnData        DataCallback
	OnComplete    CompleteCallback
}

// Job is one registered matching rule with its deadline and callbacks.
// The jobId is unique in the registry; the regex is never mutated after
// creation; callbacks are invoked at-most-once for terminal transitions;
// matchedCount only increases.
type Job struct {
	JobID         string
	Prompt        string
	CorrelationID string
	Keywords      []string
	matchRegex    *regexp.Regexp

	deadline time.Time
	timer    *time.Timer

	matchedCount int64
	state        atomic.Int32

	onData     DataCallback
	onComplete CompleteCallback

	completeOnce atomicOnce
}

// atomicOnce is a minimal compare-and-swap "fire once" guard, avoiding a
// sync.Once allocation per job for the single terminal-callback invocation.
type atomicOnce struct {
	fired atomic.Bool
}

func (o *atomicOnce) do(f func()) {
	if o.fired.CompareAndSwap(false, true) {
		f()
	}
}

func newJob(cfg JobConfig, keywords []string, pattern *regexp.Regexp) *Job {
	j := &Job{
		JobID:         cfg.JobID,
		Prompt:        cfg.Prompt,
		CorrelationID: cfg.CorrelationID,
		Keywords:      keywords,
		matchRegex:    pattern,
		deadline:      time.Now().Add(cfg.Deadline),
		onData:        cfg.OnData,
		onComplete:    cfg.OnComplete,
	}
	j.state.Store(int32(StateActive))
	return j
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	return State(j.state.Load())
}

// MatchedCount returns the monotonic match counter.
func (j *Job) MatchedCount() int64 {
	return atomic.LoadInt64(&j.matchedCount)
}

// matches reports whether text satisfies this job's compiled keyword regex.
func (j *Job) matches(text string) bool {
	return j.matchRegex.MatchString(text)
}

// recordMatch increments matchedCount and, if the job is still active,
// invokes onData. Best-effort: a panicking callback is recovered so it
// cannot prevent other jobs from being routed the same post.
func (j *Job) recordMatch(post MatchedPost) {
	atomic.AddInt64(&j.matchedCount, 1)
	if j.State() != StateActive || j.onData == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[ERROR] jobregistry: job %s onData callback panicked: %v", j.JobID, r)
		}
	}()
	j.onData(post)
}

// MatchedPost is the normalized payload handed to a job's onData callback.
type MatchedPost struct {
	JobID         string
	TextContent   string
	Source        string
	SourceURL     string
	AuthorName    *string
	PublishedAt   time.Time
	CollectedAt   time.Time
}
