package jobs

import (
	"sort"
	"strings"
)

// Job is one analysis request: a script and, optionally, its source map.
type Job struct {
	SourceKey    string
	SourceMapKey string
	// Domain is the first domain the pair was seen on during extraction. It
	// is informational only.
	Domain string
}

// ID returns the stable job identifier "<source>:<map>", with an empty map
// segment when the job has no source map.
func (j Job) ID() string {
	return j.SourceKey + ":" + j.SourceMapKey
}

// HasSourceMap reports whether the job carries a source map.
func (j Job) HasSourceMap() bool {
	return j.SourceMapKey != ""
}

// ParseID splits a job identifier back into its keys.
func ParseID(id string) (Job, bool) {
	source, sourceMap, ok := strings.Cut(id, ":")
	if !ok || source == "" {
		return Job{}, false
	}
	return Job{SourceKey: source, SourceMapKey: sourceMap}, true
}

// Set is a deduplicated collection of jobs keyed by ID.
type Set struct {
	jobs map[string]Job
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{jobs: make(map[string]Job)}
}

// Add inserts job unless its ID is already present. It reports whether the
// set grew.
func (s *Set) Add(job Job) bool {
	id := job.ID()
	if _, ok := s.jobs[id]; ok {
		return false
	}
	s.jobs[id] = job
	return true
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id string) bool {
	_, ok := s.jobs[id]
	return ok
}

// Remove deletes id and reports whether it was present.
func (s *Set) Remove(id string) bool {
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Len returns the number of jobs.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.jobs)
}

// Union adds every job of other to s.
func (s *Set) Union(other *Set) {
	if other == nil {
		return
	}
	for id, job := range other.jobs {
		if _, ok := s.jobs[id]; !ok {
			s.jobs[id] = job
		}
	}
}

// Sorted returns the jobs ordered by ID, which fixes the ticket order of a
// run independently of map iteration.
func (s *Set) Sorted() []Job {
	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
