package jobregistry

import "time"

// Router tests inbound post text against every active job's compiled
// keyword regex and delivers matches. Ordering within a single job follows
// the order Route is called in (the jetstream client preserves firehose
// order); no cross-job ordering is promised.
type Router struct {
	registry *Registry
	onMatch  func()
}

// NewRouter builds a Router over the given Registry. onMatch, if non-nil, is
// invoked once per job match (used to drive the matched-jobs counter); pass
// nil to skip metrics entirely.
func NewRouter(registry *Registry, onMatch func()) *Router {
	return &Router{registry: registry, onMatch: onMatch}
}

// RoutedPost is the source data the router matches against and converts
// into MatchedPost payloads for each matching job.
type RoutedPost struct {
	Text        string
	SourceURL   string
	AuthorName  *string
	PublishedAt time.Time
	CollectedAt time.Time
}

// Route tests post against every active job and invokes onData for each
// match. A failure in one job's callback (recovered inside Job.recordMatch)
// never prevents another job from being routed the same post.
func (rt *Router) Route(post RoutedPost) int {
	matched := 0
	for _, job := range rt.registry.snapshotJobs() {
		if job.State() != StateActive {
			continue
		}
		if !job.matches(post.Text) {
			continue
		}
		matched++
		job.recordMatch(MatchedPost{
			JobID:       job.JobID,
			TextContent: post.Text,
			Source:      "bluesky",
			SourceURL:   post.SourceURL,
			AuthorName:  post.AuthorName,
			PublishedAt: post.PublishedAt,
			CollectedAt: post.CollectedAt,
		})
		if rt.onMatch != nil {
			rt.onMatch()
		}
	}
	return matched
}
