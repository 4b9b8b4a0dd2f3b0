package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveVerdict(t *testing.T) {
	before := testutil.ToFloat64(verdicts.WithLabelValues("pdf", "legible"))
	ObserveVerdict("pdf", "legible", 300*time.Millisecond, 250, 4.2, 60)
	if got := testutil.ToFloat64(verdicts.WithLabelValues("pdf", "legible")); got != before+1 {
		t.Errorf("verdicts = %g, want %g", got, before+1)
	}
	if n := testutil.CollectAndCount(signal); n < 3 {
		t.Errorf("signal series = %d, want one per signal", n)
	}
}

func TestCountersAndGauges(t *testing.T) {
	IncFailure("image", "UNREADABLE_IMAGE")
	IncFailure("image", "UNREADABLE_IMAGE")
	if got := testutil.ToFloat64(failures.WithLabelValues("image", "UNREADABLE_IMAGE")); got != 2 {
		t.Errorf("failures = %g", got)
	}
	IncJob("dlq")
	if got := testutil.ToFloat64(jobsProcessed.WithLabelValues("dlq")); got != 1 {
		t.Errorf("jobs = %g", got)
	}
	SetQueueDepth("stream", 7)
	if got := testutil.ToFloat64(queueDepth.WithLabelValues("stream")); got != 7 {
		t.Errorf("depth = %g", got)
	}
}
