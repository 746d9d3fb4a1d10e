package pwm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/state"
)

// Owner is the store-owner identity of this client.
const Owner = "driver/pwm"

// Lifecycle tracks how far a pin has progressed through the daemon's
// init/enable protocol.
type Lifecycle string

const (
	Uninitialized Lifecycle = "uninitialized"
	Initialized   Lifecycle = "initialized"
	Enabled       Lifecycle = "enabled"
	Disabled      Lifecycle = "disabled"
)

// PinState is the mirrored, acknowledged state of one pin. It only changes
// when the daemon confirms a request.
type PinState struct {
	Pin         int       `json:"pin"`
	FrequencyHz int       `json:"frequency_hz"`
	DutyCycle   float64   `json:"duty_cycle"`
	Enabled     bool      `json:"enabled"`
	Lifecycle   Lifecycle `json:"lifecycle"`
	AckAt       time.Time `json:"ack_at"`
}

// pin couples the mirrored state with the mutex serializing its requests.
type pin struct {
	mu    sync.Mutex
	state PinState
}

// Client mirrors daemon-side pin state and issues actuation requests.
type Client struct {
	baseURL string
	http    *http.Client
	retry   driver.RetryPolicy
	store   *state.Store

	pins map[int]*pin
}

// New creates the client. Only pins declared in cfg are addressable.
func New(cfg config.PWMConfig, store *state.Store) *Client {
	c := &Client{
		baseURL: cfg.DaemonURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		retry: driver.RetryPolicy{
			Budget: cfg.RetryBudget,
			Delay:  cfg.RetryDelay,
		},
		store: store,
		pins:  make(map[int]*pin),
	}
	for _, p := range cfg.Pins {
		c.pins[p.Pin] = &pin{state: PinState{
			Pin:         p.Pin,
			FrequencyHz: p.FrequencyHz,
			Lifecycle:   Uninitialized,
		}}
	}
	return c
}

// channelID names the store channel for one pin.
func channelID(n int) state.ChannelID {
	return state.ID(state.KindPWM, fmt.Sprintf("pin%d", n))
}

// Pins lists the configured pin numbers.
func (c *Client) Pins() []int {
	out := make([]int, 0, len(c.pins))
	for n := range c.pins {
		out = append(out, n)
	}
	return out
}

// Init configures the pin's frequency on the daemon. It is the required
// first request for every pin and may be repeated to change frequency.
func (c *Client) Init(ctx context.Context, pinNum, frequencyHz int) (PinState, error) {
	p, err := c.lookup(pinNum)
	if err != nil {
		return PinState{}, err
	}
	if frequencyHz <= 0 {
		return PinState{}, driver.Validation("pwm.init",
			fmt.Errorf("frequency must be positive, got %d", frequencyHz))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = c.post(ctx, "/init", map[string]any{
		"gpio_pin":  pinNum,
		"frequency": frequencyHz,
	})
	if err != nil {
		c.markUnconfirmed(pinNum, err)
		return PinState{}, err
	}

	p.state.FrequencyHz = frequencyHz
	p.state.Lifecycle = Initialized
	p.state.Enabled = false
	return c.ack(p)
}

// SetDuty sets the pin's duty cycle in percent.
func (c *Client) SetDuty(ctx context.Context, pinNum int, duty float64) (PinState, error) {
	p, err := c.lookup(pinNum)
	if err != nil {
		return PinState{}, err
	}
	if duty < 0 || duty > 100 {
		return PinState{}, driver.Validation("pwm.duty",
			fmt.Errorf("duty cycle must be within [0, 100], got %g", duty))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Lifecycle == Uninitialized {
		return PinState{}, driver.Validation("pwm.duty",
			fmt.Errorf("pin %d is not initialized", pinNum))
	}

	err = c.post(ctx, "/duty", map[string]any{
		"gpio_pin":   pinNum,
		"duty_cycle": duty,
	})
	if err != nil {
		c.markUnconfirmed(pinNum, err)
		return PinState{}, err
	}

	p.state.DutyCycle = duty
	return c.ack(p)
}

// Enable starts output on the pin.
func (c *Client) Enable(ctx context.Context, pinNum int) (PinState, error) {
	return c.switchOutput(ctx, pinNum, "/enable", true)
}

// Disable stops output on the pin. The duty cycle setting is retained.
func (c *Client) Disable(ctx context.Context, pinNum int) (PinState, error) {
	return c.switchOutput(ctx, pinNum, "/disable", false)
}

func (c *Client) switchOutput(ctx context.Context, pinNum int, path string, on bool) (PinState, error) {
	p, err := c.lookup(pinNum)
	if err != nil {
		return PinState{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Lifecycle == Uninitialized {
		return PinState{}, driver.Validation("pwm"+path,
			fmt.Errorf("pin %d is not initialized", pinNum))
	}

	err = c.post(ctx, path, map[string]any{"gpio_pin": pinNum})
	if err != nil {
		c.markUnconfirmed(pinNum, err)
		return PinState{}, err
	}

	p.state.Enabled = on
	if on {
		p.state.Lifecycle = Enabled
	} else {
		p.state.Lifecycle = Disabled
	}
	return c.ack(p)
}

// State returns the mirrored state of one pin.
func (c *Client) State(pinNum int) (PinState, error) {
	p, err := c.lookup(pinNum)
	if err != nil {
		return PinState{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, nil
}

// statusPin is one entry of the daemon's /status payload.
type statusPin struct {
	Pin         int     `json:"gpio_pin"`
	FrequencyHz int     `json:"frequency"`
	DutyCycle   float64 `json:"duty_cycle"`
	Enabled     bool    `json:"enabled"`
}

// statusResponse is the daemon's /status payload.
type statusResponse struct {
	Pins []statusPin `json:"pins"`
}

// PollStatus is the scheduler entry point: it fetches the daemon's view of
// every pin and reconciles the mirror. The daemon is authoritative, so a
// drifted mirror is overwritten, not reported as an error.
func (c *Client) PollStatus(ctx context.Context) error {
	var status statusResponse
	err := driver.Retry(ctx, c.retry, func(ctx context.Context) error {
		var rerr error
		status, rerr = c.fetchStatus(ctx)
		return rerr
	})
	if errors.Is(err, driver.ErrTransport) {
		err = driver.Daemon("pwm.status", err)
	}
	if err != nil {
		for n := range c.pins {
			c.store.SetHealth(Owner, channelID(n), state.Unconfirmed)
		}
		return err
	}

	for _, sp := range status.Pins {
		p, ok := c.pins[sp.Pin]
		if !ok {
			continue
		}
		p.mu.Lock()
		p.state.FrequencyHz = sp.FrequencyHz
		p.state.DutyCycle = sp.DutyCycle
		p.state.Enabled = sp.Enabled
		if p.state.Lifecycle == Uninitialized {
			p.state.Lifecycle = Initialized
		}
		if sp.Enabled {
			p.state.Lifecycle = Enabled
		}
		if _, serr := c.ack(p); serr != nil && err == nil {
			err = serr
		}
		p.mu.Unlock()
	}
	return err
}

// lookup resolves a configured pin or reports a validation failure before
// any network traffic.
func (c *Client) lookup(pinNum int) (*pin, error) {
	p, ok := c.pins[pinNum]
	if !ok {
		return nil, driver.Validation("pwm.lookup",
			fmt.Errorf("pin %d is not managed by this gateway", pinNum))
	}
	return p, nil
}

// ack timestamps the mirrored state and publishes it. Caller holds p.mu.
func (c *Client) ack(p *pin) (PinState, error) {
	p.state.AckAt = time.Now().UTC()
	st := p.state
	_, err := c.store.Set(Owner, channelID(st.Pin), st)
	return st, err
}

// markUnconfirmed flags the pin after a request whose effect is unknown.
// Validation failures never reach the daemon and do not land here.
func (c *Client) markUnconfirmed(pinNum int, err error) {
	if errors.Is(err, driver.ErrValidation) {
		return
	}
	c.store.SetHealth(Owner, channelID(pinNum), state.Unconfirmed)
}

// post sends one JSON command to the daemon. Transport failures are
// retried within the request budget and surface as a daemon failure once
// the budget is spent; any HTTP response outside 2xx is a daemon rejection
// and is terminal.
func (c *Client) post(ctx context.Context, path string, body map[string]any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return driver.Validation("pwm.post", err)
	}

	err = driver.Retry(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return driver.Validation("pwm.post", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return driver.Transport("pwm.post", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return driver.Daemon("pwm.post",
				fmt.Errorf("daemon returned %d for %s: %s", resp.StatusCode, path, bytes.TrimSpace(msg)))
		}
		io.Copy(io.Discard, resp.Body)
		return nil
	})
	if errors.Is(err, driver.ErrTransport) {
		return driver.Daemon("pwm.post", err)
	}
	return err
}

// fetchStatus performs one GET /status round trip.
func (c *Client) fetchStatus(ctx context.Context) (statusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return statusResponse{}, driver.Validation("pwm.status", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return statusResponse{}, driver.Transport("pwm.status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusResponse{}, driver.Daemon("pwm.status",
			fmt.Errorf("daemon returned %d for /status", resp.StatusCode))
	}

	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return statusResponse{}, driver.Protocol("pwm.status", err)
	}
	return status, nil
}
