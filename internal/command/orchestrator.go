package command

import (
	"context"
	"fmt"
	"time"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver/pwm"
)

// CommandMetrics records actuation outcomes for the metrics endpoint.
type CommandMetrics interface {
	ObserveCommand(action string, latency time.Duration, err error)
}

// Orchestrator routes validated API intents to the PWM daemon client.
type Orchestrator struct {
	client  PWMClient
	timing  config.TimingConfig
	audit   AuditLogger
	metrics CommandMetrics
}

// Compile-time assertion that Orchestrator implements OrchestratorPort.
var _ OrchestratorPort = (*Orchestrator)(nil)

// NewOrchestrator creates the orchestrator.
func NewOrchestrator(client PWMClient, timing config.TimingConfig) *Orchestrator {
	return &Orchestrator{client: client, timing: timing}
}

// SetAuditLogger attaches the audit trail. A nil logger disables auditing.
func (o *Orchestrator) SetAuditLogger(logger AuditLogger) {
	o.audit = logger
}

// SetMetrics attaches the metrics recorder.
func (o *Orchestrator) SetMetrics(m CommandMetrics) {
	o.metrics = m
}

// InitPin configures a pin's frequency on the daemon.
func (o *Orchestrator) InitPin(ctx context.Context, pin, frequencyHz int) (pwm.PinState, error) {
	return o.run(ctx, "initPin", pin, map[string]any{"frequency_hz": frequencyHz},
		func(ctx context.Context) (pwm.PinState, error) {
			return o.client.Init(ctx, pin, frequencyHz)
		})
}

// SetDuty sets a pin's duty cycle in percent.
func (o *Orchestrator) SetDuty(ctx context.Context, pin int, duty float64) (pwm.PinState, error) {
	return o.run(ctx, "setDuty", pin, map[string]any{"duty_cycle": duty},
		func(ctx context.Context) (pwm.PinState, error) {
			return o.client.SetDuty(ctx, pin, duty)
		})
}

// EnablePin starts output on a pin.
func (o *Orchestrator) EnablePin(ctx context.Context, pin int) (pwm.PinState, error) {
	return o.run(ctx, "enablePin", pin, nil,
		func(ctx context.Context) (pwm.PinState, error) {
			return o.client.Enable(ctx, pin)
		})
}

// DisablePin stops output on a pin.
func (o *Orchestrator) DisablePin(ctx context.Context, pin int) (pwm.PinState, error) {
	return o.run(ctx, "disablePin", pin, nil,
		func(ctx context.Context) (pwm.PinState, error) {
			return o.client.Disable(ctx, pin)
		})
}

// PinState returns the mirrored acknowledged state of a pin. Reads are not
// audited.
func (o *Orchestrator) PinState(pin int) (pwm.PinState, error) {
	return o.client.State(pin)
}

// Pins lists the managed pin numbers.
func (o *Orchestrator) Pins() []int {
	return o.client.Pins()
}

// run executes one actuation with the shared command timeout, then records
// audit and metrics whatever the outcome.
func (o *Orchestrator) run(ctx context.Context, action string, pin int, params map[string]any,
	fn func(ctx context.Context) (pwm.PinState, error)) (pwm.PinState, error) {

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, o.timing.CommandTimeout)
	defer cancel()

	st, err := fn(ctx)
	latency := time.Since(start)

	channel := fmt.Sprintf("pwm:pin%d", pin)
	if o.audit != nil {
		o.audit.LogAction(ctx, action, channel, params, err, latency)
	}
	if o.metrics != nil {
		o.metrics.ObserveCommand(action, latency, err)
	}
	return st, err
}
