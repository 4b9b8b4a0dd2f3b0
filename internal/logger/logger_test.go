package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/docgate/internal/config"
)

type sinkRecorder struct{ events []axiom.Event }

func (s *sinkRecorder) Send(ev axiom.Event) { s.events = append(s.events, ev) }

func TestAxiomWriterDropsDebug(t *testing.T) {
	sink := &sinkRecorder{}
	w := &axiomWriter{client: sink}

	lines := []string{
		`{"level":"debug","message":"gate transition"}`,
		`{"level":"info","message":"page classified","score":1.4}`,
		`not json at all`,
	}
	for _, l := range lines {
		if n, err := w.Write([]byte(l)); err != nil || n != len(l) {
			t.Fatalf("Write(%q) = %d, %v", l, n, err)
		}
	}
	if len(sink.events) != 2 {
		t.Fatalf("forwarded %d events, want 2", len(sink.events))
	}
	for _, ev := range sink.events {
		if ev["service"] != "docgate" {
			t.Errorf("service = %v", ev["service"])
		}
	}
	if sink.events[1]["message"] != "not json at all" {
		t.Errorf("raw line not preserved: %v", sink.events[1])
	}
}

func TestInitWritesFile(t *testing.T) {
	defer func(l zerolog.Logger) { log.Logger = l }(log.Logger)

	file := filepath.Join(t.TempDir(), "nested", "docgate.log")
	opts := FromConfig(config.LoggingConfig{Level: "warn", File: file, MaxSizeMB: 1}, config.AxiomConfig{})
	opts.Console = io.Discard
	if err := Init(opts); err != nil {
		t.Fatal(err)
	}
	defer Close()

	log.Info().Msg("hidden")
	log.Warn().Str("file", "a.pdf").Msg("visible")

	b, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	out := string(b)
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"file":"a.pdf"`) {
		t.Errorf("log file = %s", out)
	}
}

func TestFromConfig(t *testing.T) {
	o := FromConfig(config.LoggingConfig{Level: "debug", Pretty: true}, config.AxiomConfig{Send: true, Dataset: "x_docgate"})
	if o.Level != "debug" || !o.Pretty || !o.SendToAxiom || o.AxiomDataset != "x_docgate" {
		t.Errorf("options = %+v", o)
	}
}
