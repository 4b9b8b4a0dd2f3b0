package queue

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeJob(t *testing.T) {
	in := Job{ID: "j1", Ref: "s3://scans/a.pdf", Extract: true, SubmittedAt: time.Unix(1700000000, 0).UTC()}
	b, _ := json.Marshal(in)
	out, err := DecodeJob(b)
	if err != nil {
		t.Fatal(err)
	}
	if out.ID != in.ID || out.Ref != in.Ref || !out.Extract || !out.SubmittedAt.Equal(in.SubmittedAt) {
		t.Errorf("decoded %+v", out)
	}

	for _, bad := range []string{"", "{", `{"job_id":"x"}`, `{"ref":"a.pdf"}`} {
		if _, err := DecodeJob([]byte(bad)); err == nil {
			t.Errorf("DecodeJob(%q) accepted", bad)
		}
	}
}

func TestPayloadOf(t *testing.T) {
	if string(payloadOf(map[string]any{"data": "x"})) != "x" {
		t.Error("string payload")
	}
	if string(payloadOf(map[string]any{"data": []byte("y")})) != "y" {
		t.Error("bytes payload")
	}
	if payloadOf(map[string]any{"other": "z"}) != nil {
		t.Error("missing data field should be nil")
	}
}

func TestIsBusyGroupErr(t *testing.T) {
	if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
		t.Error("string form not recognised")
	}
	if isBusyGroupErr(nil) || isBusyGroupErr(errors.New("NOAUTH")) {
		t.Error("false positive")
	}
}
