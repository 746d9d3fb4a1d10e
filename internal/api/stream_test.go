package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hw-control/hgc/internal/state"
)

func TestTelemetryStreamSendsSnapshotThenUpdates(t *testing.T) {
	store := state.NewStore()
	if _, err := store.Set("o", state.ID(state.KindLIN, "temp1"), 21.5); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Set("o", state.ID(state.KindLIN, "hum1"), 40.0); err != nil {
		t.Fatal(err)
	}

	srv := testServer(store, &stubOrchestrator{})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/telemetry", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET telemetry: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	reader := bufio.NewReader(resp.Body)
	event, data := readEvent(t, reader)
	if event != "snapshot" {
		t.Fatalf("first event = %s, expected snapshot", event)
	}

	var snap state.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("snapshot payload: %v", err)
	}
	if snap.Version != 2 || len(snap.Channels) != 2 {
		t.Errorf("snapshot = version %d, %d channels", snap.Version, len(snap.Channels))
	}

	// A store write shows up as an update event carrying only the changed
	// channel, not the whole snapshot.
	if _, err := store.Set("o", state.ID(state.KindLIN, "temp1"), 22.0); err != nil {
		t.Fatal(err)
	}

	event, data = readEvent(t, reader)
	if event != "update" {
		t.Fatalf("second event = %s, expected update", event)
	}
	// Decode into a fresh value: json.Unmarshal merges into a non-nil map,
	// which would carry the snapshot's channels over into the update.
	var upd state.Snapshot
	if err := json.Unmarshal([]byte(data), &upd); err != nil {
		t.Fatalf("update payload: %v", err)
	}
	if upd.Version != 3 {
		t.Errorf("update version = %d", upd.Version)
	}
	if len(upd.Channels) != 1 {
		t.Fatalf("update carried %d channels, expected only the changed one", len(upd.Channels))
	}
	ch, ok := upd.Channels[state.ID(state.KindLIN, "temp1")]
	if !ok || ch.Value != 22.0 {
		t.Errorf("update channel = %+v", upd.Channels)
	}
}

// readEvent consumes one SSE frame, skipping heartbeat comments.
func readEvent(t *testing.T, r *bufio.Reader) (event, data string) {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}
