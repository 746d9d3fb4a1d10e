package can

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	canbus "go.einride.tech/can"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/state"
)

// Owner is the store-owner identity of this driver.
const Owner = "driver/can"

// responseTimeout bounds one correlation wait. The scheduler also applies
// a per-task timeout, so a silent bus cannot wedge the poll loop.
const responseTimeout = 1 * time.Second

// busChannel reports overall bus liveness next to the per-probe channels.
const busChannel = "bus"

// Driver polls each configured probe with a request/response exchange.
type Driver struct {
	bus    Bus
	probes []config.CANProbe
	retry  driver.RetryPolicy
	store  *state.Store
}

// New creates the CAN driver over an open bus.
func New(bus Bus, cfg config.CANConfig, timing config.TimingConfig, store *state.Store) *Driver {
	return &Driver{
		bus:    bus,
		probes: cfg.Probes,
		retry: driver.RetryPolicy{
			Budget:  timing.RetryBudget,
			Delay:   timing.RetryDelay,
			Backoff: timing.BackoffFactor,
		},
		store: store,
	}
}

// Poll is the scheduler entry point: one exchange per probe. A probe that
// exhausts its retry budget goes Stale without affecting the others. The
// bus channel reflects whether any probe answered this cycle.
func (d *Driver) Poll(ctx context.Context) error {
	var firstErr error
	answered := false

	for _, probe := range d.probes {
		id := state.ID(state.KindCAN, probe.Name)

		var value float64
		err := driver.Retry(ctx, d.retry, func(ctx context.Context) error {
			var rerr error
			value, rerr = d.Exchange(ctx, probe)
			return rerr
		})
		if err != nil {
			d.store.SetHealth(Owner, id, state.Stale)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		answered = true
		if _, serr := d.store.Set(Owner, id, value); serr != nil && firstErr == nil {
			firstErr = serr
		}
	}

	busID := state.ID(state.KindCAN, busChannel)
	if answered {
		if _, serr := d.store.Set(Owner, busID, true); serr != nil && firstErr == nil {
			firstErr = serr
		}
	} else if len(d.probes) > 0 {
		d.store.SetHealth(Owner, busID, state.Stale)
	}
	return firstErr
}

// Exchange transmits the probe's request frame and waits for a frame with
// the configured response identifier. Frames from other bus participants
// are skipped, not treated as errors.
func (d *Driver) Exchange(ctx context.Context, probe config.CANProbe) (float64, error) {
	req := canbus.Frame{ID: probe.RequestID}
	if err := d.bus.Send(ctx, req); err != nil {
		return 0, driver.Transport("can.send", err)
	}

	deadline := time.Now().Add(responseTimeout)
	for {
		select {
		case <-ctx.Done():
			return 0, driver.Transport("can.recv", ctx.Err())
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, driver.Transport("can.recv",
				fmt.Errorf("no response for ID 0x%03X within %v", probe.ResponseID, responseTimeout))
		}

		frame, err := d.bus.Recv(remaining)
		if err != nil {
			return 0, driver.Transport("can.recv", err)
		}
		if frame.ID != probe.ResponseID {
			continue
		}
		return decode(frame, probe.Scale)
	}
}

// decode extracts the little-endian 16-bit payload and applies the probe
// scale, rounded to two decimals.
func decode(frame canbus.Frame, scale float64) (float64, error) {
	if frame.Length < 2 {
		return 0, driver.Protocol("can.decode",
			fmt.Errorf("response frame 0x%03X carries %d bytes, need 2", frame.ID, frame.Length))
	}
	raw := binary.LittleEndian.Uint16(frame.Data[:2])
	v := float64(raw) * scale
	return math.Round(v*100) / 100, nil
}
