package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hw-control/hgc/internal/auth"
	"github.com/hw-control/hgc/internal/state"
)

// RegisterRoutes registers every endpoint. The middleware is a
// pass-through when auth is disabled, so wrapping is unconditional.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	// Health endpoint (no auth required)
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	mux.HandleFunc(apiV1+"/channels", s.protect(auth.ScopeRead, s.handleChannels))
	mux.HandleFunc(apiV1+"/channels/", s.protect(auth.ScopeRead, s.handleChannelByID))
	mux.HandleFunc(apiV1+"/telemetry", s.protect(auth.ScopeRead, s.handleTelemetry))

	mux.HandleFunc(apiV1+"/pwm", s.protect(auth.ScopeRead, s.handlePins))
	mux.HandleFunc(apiV1+"/pwm/", s.handlePinEndpoints)

	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}
}

// protect wraps a handler with authentication and a scope requirement.
func (s *Server) protect(scope string, next http.HandlerFunc) http.HandlerFunc {
	if s.authMiddleware == nil {
		return next
	}
	return s.authMiddleware.RequireAuth(s.authMiddleware.RequireScope(scope)(next))
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	health := map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(s.startTime).Seconds()),
		"stateVersion":  s.store.Version(),
	}
	if s.scheduler != nil {
		health["tasks"] = s.scheduler.Status()
	}
	WriteSuccess(w, health)
}

// handleChannels handles GET /channels.
func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	snap := s.store.GetSnapshot()
	channels := make([]state.Channel, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i].ID < channels[j].ID })

	WriteSuccess(w, map[string]interface{}{
		"version":  snap.Version,
		"channels": channels,
	})
}

// handleChannelByID handles GET /channels/{id}.
func (s *Server) handleChannelByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/channels/")
	if id == "" || strings.Contains(id, "/") {
		WriteCommandError(w, fmt.Errorf("%w: unknown channel", ErrNotFound))
		return
	}

	ch, ok := s.store.Get(state.ChannelID(id))
	if !ok {
		WriteCommandError(w, fmt.Errorf("%w: unknown channel %q", ErrNotFound, id))
		return
	}
	WriteSuccess(w, ch)
}

// handlePins handles GET /pwm: the mirrored state of every managed pin.
func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	pins := s.orchestrator.Pins()
	sort.Ints(pins)

	states := make([]interface{}, 0, len(pins))
	for _, pin := range pins {
		st, err := s.orchestrator.PinState(pin)
		if err != nil {
			continue
		}
		states = append(states, st)
	}
	WriteSuccess(w, map[string]interface{}{"pins": states})
}

// handlePinEndpoints routes /pwm/{pin} and /pwm/{pin}/{action}.
func (s *Server) handlePinEndpoints(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/pwm/")
	parts := strings.SplitN(rest, "/", 2)

	pin, err := strconv.Atoi(parts[0])
	if err != nil {
		WriteCommandError(w, fmt.Errorf("%w: unknown pin", ErrNotFound))
		return
	}
	if !s.managedPin(pin) {
		WriteCommandError(w, fmt.Errorf("%w: pin %d is not managed", ErrNotFound, pin))
		return
	}

	if len(parts) == 1 || parts[1] == "" {
		s.protect(auth.ScopeRead, func(w http.ResponseWriter, r *http.Request) {
			s.handlePinState(w, r, pin)
		})(w, r)
		return
	}

	action := parts[1]
	s.protect(auth.ScopeControl, func(w http.ResponseWriter, r *http.Request) {
		s.handlePinAction(w, r, pin, action)
	})(w, r)
}

// handlePinState handles GET /pwm/{pin}.
func (s *Server) handlePinState(w http.ResponseWriter, r *http.Request, pin int) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	st, err := s.orchestrator.PinState(pin)
	if err != nil {
		WriteCommandError(w, err)
		return
	}
	WriteSuccess(w, st)
}

// handlePinAction handles POST /pwm/{pin}/{init|duty|enable|disable}.
func (s *Server) handlePinAction(w http.ResponseWriter, r *http.Request, pin int, action string) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only POST method is allowed", nil)
		return
	}

	switch action {
	case "init":
		var req struct {
			FrequencyHz int `json:"frequency_hz"`
		}
		if !decodeStrict(w, r, &req) {
			return
		}
		if req.FrequencyHz == 0 {
			// Fall back to the configured frequency for this pin.
			st, err := s.orchestrator.PinState(pin)
			if err != nil {
				WriteCommandError(w, err)
				return
			}
			req.FrequencyHz = st.FrequencyHz
		}
		st, err := s.orchestrator.InitPin(r.Context(), pin, req.FrequencyHz)
		if err != nil {
			WriteCommandError(w, err)
			return
		}
		WriteSuccess(w, st)

	case "duty":
		var req struct {
			DutyCycle float64 `json:"duty_cycle"`
		}
		if !decodeStrict(w, r, &req) {
			return
		}
		st, err := s.orchestrator.SetDuty(r.Context(), pin, req.DutyCycle)
		if err != nil {
			WriteCommandError(w, err)
			return
		}
		WriteSuccess(w, st)

	case "enable":
		st, err := s.orchestrator.EnablePin(r.Context(), pin)
		if err != nil {
			WriteCommandError(w, err)
			return
		}
		WriteSuccess(w, st)

	case "disable":
		st, err := s.orchestrator.DisablePin(r.Context(), pin)
		if err != nil {
			WriteCommandError(w, err)
			return
		}
		WriteSuccess(w, st)

	default:
		WriteCommandError(w, fmt.Errorf("%w: unknown action %q", ErrNotFound, action))
	}
}

// managedPin reports whether the orchestrator knows this pin.
func (s *Server) managedPin(pin int) bool {
	for _, p := range s.orchestrator.Pins() {
		if p == pin {
			return true
		}
	}
	return false
}

// decodeStrict parses a JSON body rejecting unknown fields and trailing
// data. An empty body decodes to the zero value.
func decodeStrict(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			return true
		}
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Malformed JSON or unknown fields", nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		WriteError(w, http.StatusBadRequest, "BAD_REQUEST", "Trailing data after JSON object", nil)
		return false
	}
	return true
}
