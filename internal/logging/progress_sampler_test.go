package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	for _, width := range []float64{0, -3} {
		if s := NewProgressSampler(width); s.bucketPercent != 5 || s.bucket != -1 {
			t.Fatalf("NewProgressSampler(%v) = %+v", width, s)
		}
	}
	if s := NewProgressSampler(10); s.bucketPercent != 10 {
		t.Fatalf("custom width not kept: %+v", s)
	}
}

func TestProgressSamplerEmitsOnBucketBoundaries(t *testing.T) {
	s := NewProgressSampler(25)
	steps := []struct {
		done int64
		want bool
	}{
		{0, true},
		{10, false},
		{24, false},
		{25, true},
		{49, false},
		{50, true},
		{100, true},
		{100, false},
	}
	for _, step := range steps {
		if got := s.Observe("dispatch", step.done, 100); got != step.want {
			t.Fatalf("Observe(%d) = %v, want %v", step.done, got, step.want)
		}
	}
}

func TestProgressSamplerPhaseChangeResets(t *testing.T) {
	s := NewProgressSampler(50)
	s.Observe("extract", 100, 100)
	if !s.Observe("dispatch", 0, 100) {
		t.Fatal("expected emit on phase change")
	}
	if s.Observe("dispatch", 10, 100) {
		t.Fatal("expected suppression within bucket")
	}
}

func TestProgressSamplerZeroTotalAndNil(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.Observe("dispatch", 0, 0) {
		t.Fatal("expected emit for empty job set")
	}
	if s.Observe("dispatch", 0, 0) {
		t.Fatal("expected suppression once complete")
	}
	var nilSampler *ProgressSampler
	if !nilSampler.Observe("x", 1, 2) {
		t.Fatal("nil sampler should always emit")
	}
	nilSampler.Reset()
}
