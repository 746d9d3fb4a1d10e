package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hw-control/hgc/internal/state"
)

// heartbeatInterval keeps idle SSE connections alive through proxies.
const heartbeatInterval = 15 * time.Second

// handleTelemetry handles GET /telemetry as a server-sent event stream.
// The first event is a full snapshot; every later event carries only the
// channels that changed since the previous event for this connection.
// Delivery is coalescing, so a slow reader gets fewer, newer events
// instead of a growing backlog.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "INTERNAL",
			"Streaming not supported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snaps, cancel := s.store.Subscribe()
	defer cancel()

	last := s.store.GetSnapshot()
	if err := writeEvent(w, "snapshot", last); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			diff := diffSnapshot(last, snap)
			last = snap
			if len(diff.Channels) == 0 {
				continue
			}
			if err := writeEvent(w, "update", diff); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// diffSnapshot keeps only the channels of cur that changed since prev.
// Comparison is by update timestamp and health, which every accepted
// write touches; channel values themselves may not be comparable.
func diffSnapshot(prev, cur state.Snapshot) state.Snapshot {
	diff := state.Snapshot{
		Version:  cur.Version,
		Channels: make(map[state.ChannelID]state.Channel),
	}
	for id, ch := range cur.Channels {
		old, ok := prev.Channels[id]
		if !ok || old.UpdatedAt != ch.UpdatedAt || old.Health != ch.Health {
			diff.Channels[id] = ch
		}
	}
	return diff
}

// writeEvent emits one SSE frame.
func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}
