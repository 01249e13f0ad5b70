package debugreport

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRecord_EmitsReason(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := NewUnthrottled(logger)
	r.Record(ReasonEventDeduplicated, "trigger_id", "t1")

	out := buf.String()
	if !strings.Contains(out, string(ReasonEventDeduplicated)) {
		t.Errorf("output missing reason: %s", out)
	}
	if !strings.Contains(out, "trigger_id=t1") {
		t.Errorf("output missing attrs: %s", out)
	}
}

func TestRecord_NilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.Record(ReasonTriggerNoMatchingSource) // must not panic
}

func TestRecord_ThrottleDrops(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	r := New(logger)
	for i := 0; i < defaultBurst*3; i++ {
		r.Record(ReasonEventDeduplicated)
	}

	emitted := strings.Count(buf.String(), "attribution decision")
	if emitted == 0 || emitted > defaultBurst+defaultRate {
		t.Errorf("emitted %d records, want within (0, %d]", emitted, defaultBurst+defaultRate)
	}
}
