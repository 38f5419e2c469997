// Package jobregistry maintains the set of active matching jobs and routes
// inbound posts to the jobs whose keyword regex matches.
package jobregistry

import (
	"log"
	"sync"
)

// OnFirstJob is invoked when the registry transitions from zero to one
// active job; OnLastJob when it transitions from one to zero. The
// jetstream manager uses these to start/stop the shared connection.
type Lifecycle struct {
	OnFirstJob func()
	OnLastJob  func()

	// OnRegistered and OnFailed are optional metrics hooks, invoked after a
	// successful Register and after a Fail respectively. Both may be nil.
	OnRegistered func()
	OnFailed     func()
}

// Registry is the exclusive owner of job records, guarded by a single
// RWMutex-protected map.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job

	lifecycle Lifecycle
}

// NewRegistry constructs an empty Registry.
func NewRegistry(lifecycle Lifecycle) *Registry {
	return &Registry{
		jobs:      make(map[string]*Job),
		lifecycle: lifecycle,
	}
}

// Register validates and stores a new job, arms its deadline timer, and
// triggers OnFirstJob if the registry was empty.
func (r *Registry) Register(cfg JobConfig) (*Job, error) {
	if cfg.JobID == "" || cfg.Prompt == "" {
		return nil, ErrInvalidJob
	}

	keywords := extractKeywords(cfg.Prompt)
	if len(keywords) == 0 {
		log.Printf("[WARN] jobregistry: job %s derived zero keywords from prompt, using never-match pattern", cfg.JobID)
	}
	pattern, err := buildMatchRegex(keywords)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.jobs[cfg.JobID]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateJob
	}

	job := newJob(cfg, keywords, pattern)
	job.timer = timeAfterFunc(cfg.Deadline, func() { r.onDeadline(cfg.JobID) })
	r.jobs[cfg.JobID] = job
	wasEmpty := len(r.jobs) == 1
	r.mu.Unlock()

	if wasEmpty && r.lifecycle.OnFirstJob != nil {
		r.lifecycle.OnFirstJob()
	}
	if r.lifecycle.OnRegistered != nil {
		r.lifecycle.OnRegistered()
	}

	log.Printf("[INFO] jobregistry: registered job %s (keywords=%d)", cfg.JobID, len(keywords))
	return job, nil
}

// Complete transitions a job to completing then removes it, invoking
// onComplete exactly once with a nil error.
func (r *Registry) Complete(jobID string) error {
	return r.terminate(jobID, StateCompleting, nil)
}

// Cancel transitions a job directly to cancelled and removes it. Idempotent:
// cancelling an already-terminal or absent job is not an error.
func (r *Registry) Cancel(jobID string) error {
	err := r.terminate(jobID, StateCancelled, nil)
	if err == ErrJobNotFound {
		return nil
	}
	return err
}

// Fail terminates a job with an error, used by the jetstream manager when
// reconnect attempts are exhausted.
func (r *Registry) Fail(jobID string, failErr error) error {
	return r.terminate(jobID, StateCompleting, failErr)
}

func (r *Registry) onDeadline(jobID string) {
	if err := r.Complete(jobID); err != nil && err != ErrJobNotFound {
		log.Printf("[WARN] jobregistry: deadline fire for %s: %v", jobID, err)
	}
}

func (r *Registry) terminate(jobID string, terminal State, failErr error) error {
	r.mu.Lock()
	job, exists := r.jobs[jobID]
	if !exists {
		r.mu.Unlock()
		return ErrJobNotFound
	}
	delete(r.jobs, jobID)
	remaining := len(r.jobs)
	r.mu.Unlock()

	if job.timer != nil {
		job.timer.Stop()
	}
	job.state.Store(int32(terminal))

	job.completeOnce.do(func() {
		if job.onComplete != nil {
			job.onComplete(job.JobID, job.MatchedCount(), failErr)
		}
	})

	if failErr != nil && r.lifecycle.OnFailed != nil {
		r.lifecycle.OnFailed()
	}
	if remaining == 0 && r.lifecycle.OnLastJob != nil {
		r.lifecycle.OnLastJob()
	}
	return nil
}

// IsRegistered reports whether jobID is currently active in the registry.
func (r *Registry) IsRegistered(jobID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[jobID]
	return ok
}

// ActiveCount returns the number of currently registered jobs.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// ActiveJobIDs returns a snapshot of currently registered job ids, used to
// fail every active job when reconnects are exhausted.
func (r *Registry) ActiveJobIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	return ids
}

// snapshotJobs returns a stable slice of the current jobs for routing, so
// Route never holds the lock while invoking callbacks.
func (r *Registry) snapshotJobs() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jobs := make([]*Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}
