package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	logx "bulksend/pkg/logx"
)

const sseKeepAlive = 15 * time.Second

// handleEvents streams job events as server-sent events. ?job=<id> limits
// the stream to one job.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.opts.Events == nil {
		respondError(w, http.StatusNotFound, "event stream is disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	jobID := r.URL.Query().Get("job")

	events, unsub := s.opts.Events.Subscribe(64)
	defer unsub()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	tick := time.NewTicker(sseKeepAlive)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case e, ok := <-events:
			if !ok {
				return
			}
			if jobID != "" && e.JobID != jobID {
				continue
			}
			b, err := json.Marshal(e)
			if err != nil {
				s.log.Warn("event encode failed", logx.String("type", e.Type), logx.Err(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
