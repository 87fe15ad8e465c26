package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs. It emits when the
// completed fraction crosses a bucket boundary or the phase changes, so a
// non-interactive run logs a bounded number of progress lines regardless of
// how often the monitor polls.
type ProgressSampler struct {
	bucketPercent float64
	phase         string
	bucket        int
}

// NewProgressSampler constructs a sampler with the given bucket width in
// percent (default 5%).
func NewProgressSampler(bucketPercent float64) *ProgressSampler {
	if bucketPercent <= 0 {
		bucketPercent = 5
	}
	return &ProgressSampler{bucketPercent: bucketPercent, bucket: -1}
}

// Observe reports whether done/total in the given phase should be logged.
// A zero total is treated as complete.
func (s *ProgressSampler) Observe(phase string, done, total int64) bool {
	if s == nil {
		return true
	}
	emit := false
	phase = strings.TrimSpace(phase)
	if phase != s.phase {
		s.phase = phase
		s.bucket = -1
		emit = true
	}
	percent := 100.0
	if total > 0 {
		percent = float64(done) * 100 / float64(total)
	}
	if percent > 100 {
		percent = 100
	}
	if bucket := int(percent / s.bucketPercent); bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}

// Reset clears the sampler state.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.phase = ""
	s.bucket = -1
}
