package pwm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/state"
)

func testClient(url string) (*Client, *state.Store) {
	store := state.NewStore()
	cfg := config.PWMConfig{
		DaemonURL:      url,
		RequestTimeout: time.Second,
		RetryBudget:    2,
		RetryDelay:     time.Millisecond,
		Pins:           []config.PWMPin{{Pin: 12, FrequencyHz: 26_000}},
	}
	return New(cfg, store), store
}

func okDaemon(t *testing.T, requests *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(requests, 1)
		w.WriteHeader(http.StatusOK)
	}))
}

func TestInitThenDutyThenEnable(t *testing.T) {
	var requests int32
	srv := okDaemon(t, &requests)
	defer srv.Close()

	c, store := testClient(srv.URL)
	ctx := context.Background()

	st, err := c.Init(ctx, 12, 26_000)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if st.Lifecycle != Initialized {
		t.Errorf("lifecycle = %s", st.Lifecycle)
	}

	st, err = c.SetDuty(ctx, 12, 75)
	if err != nil {
		t.Fatalf("SetDuty failed: %v", err)
	}
	if st.DutyCycle != 75 {
		t.Errorf("duty = %v", st.DutyCycle)
	}

	st, err = c.Enable(ctx, 12)
	if err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	if st.Lifecycle != Enabled || !st.Enabled {
		t.Errorf("state after enable = %+v", st)
	}

	// Mirror is acknowledged state, published to the store.
	ch, ok := store.Get(state.ID(state.KindPWM, "pin12"))
	if !ok {
		t.Fatal("pwm:pin12 missing from store")
	}
	mirrored := ch.Value.(PinState)
	if mirrored.DutyCycle != 75 || !mirrored.Enabled {
		t.Errorf("mirrored state = %+v", mirrored)
	}
	if atomic.LoadInt32(&requests) != 3 {
		t.Errorf("daemon requests = %d, expected 3", requests)
	}
}

func TestInvalidDutyMakesNoNetworkCall(t *testing.T) {
	var requests int32
	srv := okDaemon(t, &requests)
	defer srv.Close()

	c, _ := testClient(srv.URL)
	ctx := context.Background()

	if _, err := c.Init(ctx, 12, 26_000); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	atomic.StoreInt32(&requests, 0)

	_, err := c.SetDuty(ctx, 12, 101)
	if !errors.Is(err, driver.ErrValidation) {
		t.Fatalf("err = %v, expected VALIDATION", err)
	}
	_, err = c.SetDuty(ctx, 12, -1)
	if !errors.Is(err, driver.ErrValidation) {
		t.Fatalf("err = %v, expected VALIDATION", err)
	}

	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("daemon saw %d requests for invalid input", n)
	}
}

func TestDutyBeforeInitRejected(t *testing.T) {
	var requests int32
	srv := okDaemon(t, &requests)
	defer srv.Close()

	c, _ := testClient(srv.URL)

	_, err := c.SetDuty(context.Background(), 12, 50)
	if !errors.Is(err, driver.ErrValidation) {
		t.Fatalf("err = %v, expected VALIDATION", err)
	}
	if n := atomic.LoadInt32(&requests); n != 0 {
		t.Errorf("daemon saw %d requests before init", n)
	}
}

func TestUnknownPinRejected(t *testing.T) {
	c, _ := testClient("http://127.0.0.1:1")

	_, err := c.Init(context.Background(), 99, 1000)
	if !errors.Is(err, driver.ErrValidation) {
		t.Fatalf("err = %v, expected VALIDATION", err)
	}
}

func TestDaemonRejectionIsTerminal(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		http.Error(w, "pin busy", http.StatusConflict)
	}))
	defer srv.Close()

	c, store := testClient(srv.URL)

	_, err := c.Init(context.Background(), 12, 26_000)
	if !errors.Is(err, driver.ErrDaemon) {
		t.Fatalf("err = %v, expected DAEMON", err)
	}
	// A received error response is a daemon verdict, never retried.
	if n := atomic.LoadInt32(&requests); n != 1 {
		t.Errorf("daemon saw %d requests, expected exactly 1", n)
	}

	// The pin never produced an acknowledged state, so there is nothing
	// to mark Unconfirmed yet.
	if _, ok := store.Get(state.ID(state.KindPWM, "pin12")); ok {
		t.Error("rejected init must not create channel state")
	}
}

func TestTransportFailureRetriesExactly(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		// Drop the connection without a response.
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Fatal("hijacking unsupported")
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Fatalf("hijack: %v", err)
		}
		conn.Close()
	}))
	defer srv.Close()

	c, _ := testClient(srv.URL)

	_, err := c.Init(context.Background(), 12, 26_000)
	// An exhausted retry budget against the daemon is a daemon failure;
	// the command issuer must not see a plain transport error.
	if !errors.Is(err, driver.ErrDaemon) {
		t.Fatalf("err = %v, expected DAEMON", err)
	}
	if n := atomic.LoadInt32(&requests); n != 3 {
		t.Errorf("daemon saw %d requests, expected 1 initial + 2 retries", n)
	}
}

func TestTransportFailureMarksUnconfirmed(t *testing.T) {
	var healthy int32 = 1
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&healthy) == 1 {
			w.WriteHeader(http.StatusOK)
			return
		}
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	defer srv.Close()

	c, store := testClient(srv.URL)
	ctx := context.Background()

	if _, err := c.Init(ctx, 12, 26_000); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	atomic.StoreInt32(&healthy, 0)
	if _, err := c.SetDuty(ctx, 12, 30); err == nil {
		t.Fatal("expected transport failure")
	}

	ch, _ := store.Get(state.ID(state.KindPWM, "pin12"))
	if ch.Health != state.Unconfirmed {
		t.Errorf("health = %s, want unconfirmed", ch.Health)
	}

	// Mirror keeps the last acknowledged duty, not the attempted one.
	mirrored := ch.Value.(PinState)
	if mirrored.DutyCycle != 0 {
		t.Errorf("mirrored duty = %v, must stay at last ack", mirrored.DutyCycle)
	}
}

func TestPollStatusReconcilesMirror(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/status" {
			json.NewEncoder(w).Encode(statusResponse{Pins: []statusPin{
				{Pin: 12, FrequencyHz: 26_000, DutyCycle: 40, Enabled: true},
			}})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, store := testClient(srv.URL)

	if err := c.PollStatus(context.Background()); err != nil {
		t.Fatalf("PollStatus failed: %v", err)
	}

	st, err := c.State(12)
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if st.DutyCycle != 40 || !st.Enabled || st.Lifecycle != Enabled {
		t.Errorf("reconciled state = %+v", st)
	}

	ch, _ := store.Get(state.ID(state.KindPWM, "pin12"))
	if ch.Health != state.Fresh {
		t.Errorf("health = %s after successful status poll", ch.Health)
	}
}

func TestPollStatusFailureMarksUnconfirmed(t *testing.T) {
	srv := okDaemon(t, new(int32))
	c, store := testClient(srv.URL)

	if _, err := c.Init(context.Background(), 12, 26_000); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	srv.Close()

	if err := c.PollStatus(context.Background()); err == nil {
		t.Fatal("expected failure against closed daemon")
	}

	ch, _ := store.Get(state.ID(state.KindPWM, "pin12"))
	if ch.Health != state.Unconfirmed {
		t.Errorf("health = %s, want unconfirmed", ch.Health)
	}
}
