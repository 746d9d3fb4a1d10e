package command

import (
	"context"
	"time"

	"github.com/hw-control/hgc/internal/driver/pwm"
)

// PWMClient is the orchestrator's view of the daemon client.
type PWMClient interface {
	Init(ctx context.Context, pin, frequencyHz int) (pwm.PinState, error)
	SetDuty(ctx context.Context, pin int, duty float64) (pwm.PinState, error)
	Enable(ctx context.Context, pin int) (pwm.PinState, error)
	Disable(ctx context.Context, pin int) (pwm.PinState, error)
	State(pin int) (pwm.PinState, error)
	Pins() []int
}

// AuditLogger records actuation attempts.
type AuditLogger interface {
	LogAction(ctx context.Context, action, channel string, params map[string]any, err error, latency time.Duration)
}

// OrchestratorPort is the API server's view of the orchestrator.
type OrchestratorPort interface {
	InitPin(ctx context.Context, pin, frequencyHz int) (pwm.PinState, error)
	SetDuty(ctx context.Context, pin int, duty float64) (pwm.PinState, error)
	EnablePin(ctx context.Context, pin int) (pwm.PinState, error)
	DisablePin(ctx context.Context, pin int) (pwm.PinState, error)
	PinState(pin int) (pwm.PinState, error)
	Pins() []int
}
