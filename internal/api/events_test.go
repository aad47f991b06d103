package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mixid/mixid-engine/internal/progress"
)

// streamEvents runs the SSE handler against a request whose context is
// already canceled, so the handler replays, subscribes, and returns.
func streamEvents(bus *progress.Bus, target, lastEventID string) *httptest.ResponseRecorder {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", target, nil).WithContext(ctx)
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}
	HandleEvents(bus)(rec, req)
	return rec
}

func TestHandleEventsHeaders(t *testing.T) {
	rec := streamEvents(progress.NewBus(16), "/api/v1/events", "")

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !rec.Flushed {
		t.Error("headers should be flushed before any event arrives")
	}
}

func TestHandleEventsReplay(t *testing.T) {
	bus := progress.NewBus(16)
	bus.Publish("job_started", "job-1", map[string]any{"source": "u"})
	bus.Publish("segment_result", "job-1", map[string]any{"index": 0})
	bus.Publish("job_completed", "job-1", map[string]any{"tracks": 1})
	all := bus.ReplaySince("", progress.Filter{})
	if len(all) != 3 {
		t.Fatalf("expected 3 ring events, got %d", len(all))
	}

	rec := streamEvents(bus, "/api/v1/events", all[0].ID)

	body := rec.Body.String()
	if strings.Contains(body, "id: "+all[0].ID+"\n") {
		t.Error("replay should start after the acknowledged event")
	}
	for _, e := range all[1:] {
		if !strings.Contains(body, "id: "+e.ID+"\n") {
			t.Errorf("replay missing event %s (%s)", e.ID, e.Type)
		}
	}
	if !strings.Contains(body, "event: job_completed\n") {
		t.Error("replay missing event type line")
	}
}

func TestHandleEventsReplayHonorsFilters(t *testing.T) {
	bus := progress.NewBus(16)
	bus.Publish("segment_result", "job-1", map[string]any{"index": 0})
	bus.Publish("segment_result", "job-2", map[string]any{"index": 0})
	bus.Publish("job_completed", "job-1", map[string]any{"tracks": 1})

	t.Run("types", func(t *testing.T) {
		rec := streamEvents(bus, "/api/v1/events?types=job_completed", "bogus-id")
		body := rec.Body.String()
		if strings.Contains(body, "event: segment_result\n") {
			t.Error("types filter leaked segment_result")
		}
		if !strings.Contains(body, "event: job_completed\n") {
			t.Error("types filter dropped job_completed")
		}
	})

	t.Run("job", func(t *testing.T) {
		rec := streamEvents(bus, "/api/v1/events?job=job-2", "bogus-id")
		body := rec.Body.String()
		if !strings.Contains(body, `"job_id":"job-2"`) {
			t.Error("job filter dropped the matching event")
		}
		if strings.Contains(body, `"job_id":"job-1"`) {
			t.Error("job filter leaked another job's events")
		}
	})
}

func TestHandleEventsSubscriberCleanup(t *testing.T) {
	bus := progress.NewBus(16)
	streamEvents(bus, "/api/v1/events", "")

	if n := bus.SubscriberCount(); n != 0 {
		t.Errorf("subscriber leaked after disconnect, count = %d", n)
	}
}

func TestHandleEventsWithoutFlusher(t *testing.T) {
	// A ResponseWriter that cannot stream gets a JSON error.
	w := plainWriter{header: make(http.Header)}
	req := httptest.NewRequest("GET", "/api/v1/events", nil)
	HandleEvents(progress.NewBus(16))(&w, req)

	if w.status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.status)
	}
}

type plainWriter struct {
	header http.Header
	status int
	body   []byte
}

func (w *plainWriter) Header() http.Header { return w.header }
func (w *plainWriter) WriteHeader(s int)   { w.status = s }
func (w *plainWriter) Write(b []byte) (int, error) {
	w.body = append(w.body, b...)
	return len(b), nil
}
