package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

// recordingHandler captures emitted records so tests can inspect attributes.
type recordingHandler struct {
	records *[]slog.Record
	attrs   []slog.Attr
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	r.AddAttrs(h.attrs...)
	*h.records = append(*h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{records: h.records, attrs: append(h.attrs, attrs...)}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func captureRecords(t *testing.T) *[]slog.Record {
	t.Helper()
	records := &[]slog.Record{}
	prev := slog.Default()
	slog.SetDefault(slog.New(&recordingHandler{records: records}))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return records
}

func attrValue(r slog.Record, key string) (string, bool) {
	var val string
	var found bool
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == key {
			val = a.Value.String()
			found = true
			return false
		}
		return true
	})
	return val, found
}

func TestFromContextAddsRequestID(t *testing.T) {
	records := captureRecords(t)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	FromContext(ctx).Info("handled")

	if len(*records) != 1 {
		t.Fatalf("records = %d, want 1", len(*records))
	}
	if got, ok := attrValue((*records)[0], "request_id"); !ok || got != "req-42" {
		t.Errorf("request_id = %q (found %v), want req-42", got, ok)
	}
}

func TestFromContextWithoutRequestID(t *testing.T) {
	records := captureRecords(t)

	FromContext(context.Background()).Info("handled")

	if len(*records) != 1 {
		t.Fatalf("records = %d, want 1", len(*records))
	}
	if _, ok := attrValue((*records)[0], "request_id"); ok {
		t.Error("request_id present without one in context")
	}
}

func TestWithFields(t *testing.T) {
	records := captureRecords(t)

	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-7")
	WithFields(ctx, "job_id", "job-1").Error("subscribe failed")

	if len(*records) != 1 {
		t.Fatalf("records = %d, want 1", len(*records))
	}
	rec := (*records)[0]
	if got, ok := attrValue(rec, "job_id"); !ok || got != "job-1" {
		t.Errorf("job_id = %q (found %v), want job-1", got, ok)
	}
	if got, ok := attrValue(rec, "request_id"); !ok || got != "req-7" {
		t.Errorf("request_id = %q (found %v), want req-7", got, ok)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
