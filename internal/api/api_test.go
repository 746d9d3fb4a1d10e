package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hw-control/hgc/internal/auth"
	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/driver/pwm"
	"github.com/hw-control/hgc/internal/state"
)

// stubOrchestrator scripts actuation outcomes for handler tests.
type stubOrchestrator struct {
	pins  []int
	state pwm.PinState
	err   error
	calls []string
}

func (s *stubOrchestrator) InitPin(ctx context.Context, pin, freq int) (pwm.PinState, error) {
	s.calls = append(s.calls, "init")
	return s.state, s.err
}

func (s *stubOrchestrator) SetDuty(ctx context.Context, pin int, duty float64) (pwm.PinState, error) {
	s.calls = append(s.calls, "duty")
	return s.state, s.err
}

func (s *stubOrchestrator) EnablePin(ctx context.Context, pin int) (pwm.PinState, error) {
	s.calls = append(s.calls, "enable")
	return s.state, s.err
}

func (s *stubOrchestrator) DisablePin(ctx context.Context, pin int) (pwm.PinState, error) {
	s.calls = append(s.calls, "disable")
	return s.state, s.err
}

func (s *stubOrchestrator) PinState(pin int) (pwm.PinState, error) {
	return s.state, s.err
}

func (s *stubOrchestrator) Pins() []int { return s.pins }

func testServer(store *state.Store, orch OrchestratorPort) *httptest.Server {
	s := NewServer(store, orch, nil, auth.NewMiddleware(""), config.Defaults().HTTP)
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return httptest.NewServer(mux)
}

func decodeEnvelope(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var env Response
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if env.CorrelationID == "" {
		t.Error("envelope missing correlationId")
	}
	return env
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(state.NewStore(), &stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Result != "ok" {
		t.Errorf("result = %s", env.Result)
	}
}

func TestChannelsListSorted(t *testing.T) {
	store := state.NewStore()
	if _, err := store.Set("o", state.ID(state.KindLIN, "temp1"), 21.5); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Set("o", state.ID(state.KindADC, "channel_0"), 3.3); err != nil {
		t.Fatal(err)
	}

	srv := testServer(store, &stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/channels")
	if err != nil {
		t.Fatalf("GET channels: %v", err)
	}
	env := decodeEnvelope(t, resp)

	data := env.Data.(map[string]interface{})
	channels := data["channels"].([]interface{})
	if len(channels) != 2 {
		t.Fatalf("channels = %d", len(channels))
	}
	first := channels[0].(map[string]interface{})
	if first["id"] != "adc:channel_0" {
		t.Errorf("first channel = %v, expected sorted order", first["id"])
	}
	if data["version"].(float64) != 2 {
		t.Errorf("version = %v", data["version"])
	}
}

func TestChannelByID(t *testing.T) {
	store := state.NewStore()
	if _, err := store.Set("o", state.ID(state.KindLIN, "temp1"), 21.5); err != nil {
		t.Fatal(err)
	}

	srv := testServer(store, &stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/channels/lin:temp1")
	if err != nil {
		t.Fatalf("GET channel: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	ch := env.Data.(map[string]interface{})
	if ch["value"].(float64) != 21.5 {
		t.Errorf("value = %v", ch["value"])
	}
}

func TestChannelByIDNotFound(t *testing.T) {
	srv := testServer(state.NewStore(), &stubOrchestrator{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/channels/lin:ghost")
	if err != nil {
		t.Fatalf("GET channel: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Code != "NOT_FOUND" {
		t.Errorf("code = %s", env.Code)
	}
}

func TestPinActionValidationMapsTo400(t *testing.T) {
	orch := &stubOrchestrator{
		pins: []int{12},
		err:  driver.Validation("pwm.duty", errors.New("duty cycle must be within [0, 100]")),
	}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/12/duty", "application/json",
		strings.NewReader(`{"duty_cycle": 101}`))
	if err != nil {
		t.Fatalf("POST duty: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Code != "INVALID_RANGE" {
		t.Errorf("code = %s", env.Code)
	}
}

func TestPinActionDaemonErrorMapsTo502(t *testing.T) {
	orch := &stubOrchestrator{
		pins: []int{12},
		err:  driver.Daemon("pwm.post", errors.New("daemon returned 409")),
	}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/12/enable", "application/json", nil)
	if err != nil {
		t.Fatalf("POST enable: %v", err)
	}
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Code != "DAEMON_ERROR" {
		t.Errorf("code = %s", env.Code)
	}
}

func TestPinActionTransportErrorMapsTo503(t *testing.T) {
	orch := &stubOrchestrator{
		pins: []int{12},
		err:  driver.Transport("pwm.post", errors.New("connection refused")),
	}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/12/disable", "application/json", nil)
	if err != nil {
		t.Fatalf("POST disable: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Code != "UNAVAILABLE" {
		t.Errorf("code = %s", env.Code)
	}
}

func TestUnknownPinIs404(t *testing.T) {
	orch := &stubOrchestrator{pins: []int{12}}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/99/enable", "application/json", nil)
	if err != nil {
		t.Fatalf("POST enable: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(orch.calls) != 0 {
		t.Errorf("orchestrator called for unknown pin: %v", orch.calls)
	}
}

func TestStrictJSONRejectsUnknownFields(t *testing.T) {
	orch := &stubOrchestrator{pins: []int{12}}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/12/duty", "application/json",
		strings.NewReader(`{"duty_cycle": 50, "bogus": true}`))
	if err != nil {
		t.Fatalf("POST duty: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if len(orch.calls) != 0 {
		t.Errorf("orchestrator called despite malformed body: %v", orch.calls)
	}
}

func TestStrictJSONRejectsTrailingData(t *testing.T) {
	orch := &stubOrchestrator{pins: []int{12}}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/12/duty", "application/json",
		strings.NewReader(`{"duty_cycle": 50}{"again": 1}`))
	if err != nil {
		t.Fatalf("POST duty: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestPinActionSuccessReturnsState(t *testing.T) {
	orch := &stubOrchestrator{
		pins:  []int{12},
		state: pwm.PinState{Pin: 12, FrequencyHz: 26_000, DutyCycle: 75, Lifecycle: pwm.Initialized},
	}
	srv := testServer(state.NewStore(), orch)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/pwm/12/duty", "application/json",
		strings.NewReader(`{"duty_cycle": 75}`))
	if err != nil {
		t.Fatalf("POST duty: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	st := env.Data.(map[string]interface{})
	if st["duty_cycle"].(float64) != 75 {
		t.Errorf("duty_cycle = %v", st["duty_cycle"])
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := testServer(state.NewStore(), &stubOrchestrator{pins: []int{12}})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/v1/channels", "application/json", nil)
	if err != nil {
		t.Fatalf("POST channels: %v", err)
	}
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", resp.StatusCode)
	}
	resp.Body.Close()
}
