package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/mixid/mixid-engine/internal/progress"
)

const sseKeepaliveInterval = 15 * time.Second

// HandleEvents streams job progress events over SSE. Clients can filter
// with ?types=a,b and ?job=<id> (jobs= also accepted) and resume a dropped
// connection with the Last-Event-ID header.
func HandleEvents(bus *progress.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		filter := progress.Filter{
			Types:  QueryStringList(r, "types"),
			JobIDs: QueryStringListAliased(r, "job", "jobs"),
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
			for _, e := range bus.ReplaySince(lastEventID, filter) {
				writeSSE(w, e)
			}
		}
		flusher.Flush()

		ch, cancel := bus.Subscribe(filter)
		defer cancel()

		keepalive := time.NewTicker(sseKeepaliveInterval)
		defer keepalive.Stop()

		log := hlog.FromRequest(r)
		log.Info().Msg("SSE client connected")

		for {
			select {
			case <-r.Context().Done():
				log.Info().Msg("SSE client disconnected")
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				writeSSE(w, event)
				flusher.Flush()
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, e progress.Event) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}
