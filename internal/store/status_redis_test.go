package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/local/docgate/internal/gate"
	"github.com/local/docgate/internal/quality"
)

// stringify mimics what HGETALL hands back for the values HSET stored.
func stringify(m map[string]interface{}) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func TestStatusHashRoundTrip(t *testing.T) {
	start := time.Date(2024, 3, 1, 10, 0, 0, 123, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	in := Status{
		Status: StatusDone,
		Ref:    "s3://scans/bill.pdf",
		Pages:  3,
		Start:  &start,
		End:    &end,
		Text:   "INVOICE 42",
		Verdict: &gate.Verdict{
			Kind:       "pdf",
			Legibility: quality.Legible,
			Metrics:    quality.Metrics{Sharpness: 412.5, EdgeDensity: 3.1, NoiseLevel: 11},
			Score:      1.96,
			Profile:    "pdf",
		},
	}
	m, err := toHash(in)
	if err != nil {
		t.Fatal(err)
	}
	out := fromHash(stringify(m))

	if out.Status != in.Status || out.Ref != in.Ref || out.Pages != 3 || out.Text != in.Text {
		t.Errorf("scalar fields = %+v", out)
	}
	if out.Start == nil || !out.Start.Equal(start) || out.End == nil || !out.End.Equal(end) {
		t.Errorf("times = %v %v", out.Start, out.End)
	}
	if out.Verdict == nil || *out.Verdict != *in.Verdict {
		t.Errorf("verdict = %+v", out.Verdict)
	}
}

func TestStatusHashOmitsEmpty(t *testing.T) {
	m, err := toHash(Status{Status: StatusQueued, Ref: "a.png"})
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"message", "error_code", "pages", "start", "end", "text", "verdict"} {
		if _, ok := m[k]; ok {
			t.Errorf("empty field %q written", k)
		}
	}
	out := fromHash(map[string]string{"status": StatusFailed, "error_code": "NO_PAGES", "pages": "x", "verdict": "{bad"})
	if out.Status != StatusFailed || out.ErrorCode != "NO_PAGES" || out.Pages != 0 || out.Verdict != nil {
		t.Errorf("failed status = %+v", out)
	}
}
