package adc

import (
	"context"
	"fmt"
	"math"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/state"
)

// Owner is the store-owner identity of this driver.
const Owner = "driver/adc"

const (
	maWindowVoltage    = 20
	maWindowResistance = 30
	emaAlphaVoltage    = 0.2
	emaAlphaResistance = 0.1
)

// Conn is the subset of an SPI connection the sampler needs.
type Conn interface {
	// Tx performs one full-duplex transaction. len(w) == len(r).
	Tx(w, r []byte) error
}

// Driver samples all configured MCP3008 channels on each duty cycle and
// writes scaled, filtered values into the store.
type Driver struct {
	conn  Conn
	cfg   config.ADCConfig
	store *state.Store
	retry driver.RetryPolicy

	filters []*filter
}

// New creates the ADC driver over an open SPI connection.
func New(conn Conn, cfg config.ADCConfig, timing config.TimingConfig, store *state.Store) *Driver {
	total := cfg.VoltageChannels + cfg.ResistanceChannels
	filters := make([]*filter, total)
	for ch := 0; ch < total; ch++ {
		if ch < cfg.VoltageChannels {
			filters[ch] = newFilter(maWindowVoltage, emaAlphaVoltage)
		} else {
			filters[ch] = newFilter(maWindowResistance, emaAlphaResistance)
		}
	}
	return &Driver{
		conn:  conn,
		cfg:   cfg,
		store: store,
		retry: driver.RetryPolicy{
			Budget:  timing.RetryBudget,
			Delay:   timing.RetryDelay,
			Backoff: timing.BackoffFactor,
		},
		filters: filters,
	}
}

// Poll is the scheduler entry point: one synchronous sample of every
// channel. A channel that exhausts its retry budget goes Stale; the others
// are unaffected.
func (d *Driver) Poll(ctx context.Context) error {
	var firstErr error
	total := d.cfg.VoltageChannels + d.cfg.ResistanceChannels

	for ch := 0; ch < total; ch++ {
		var raw int
		err := driver.Retry(ctx, d.retry, func(context.Context) error {
			var rerr error
			raw, rerr = d.readRaw(ch)
			return rerr
		})

		id := state.ID(state.KindADC, fmt.Sprintf("channel_%d", ch))
		if err != nil {
			d.store.SetHealth(Owner, id, state.Stale)
			d.filters[ch].Reset()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		value := d.scale(ch, raw)
		if _, serr := d.store.Set(Owner, id, value); serr != nil && firstErr == nil {
			firstErr = serr
		}
	}
	return firstErr
}

// readRaw performs one MCP3008 transaction for a single input.
func (d *Driver) readRaw(channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, driver.Validation("adc.read", fmt.Errorf("channel %d out of range 0-7", channel))
	}

	// MCP3008 single-ended framing: start bit, then SGL/DIFF + channel in
	// the high nibble of the second byte.
	w := []byte{1, byte(8+channel) << 4, 0}
	r := make([]byte, 3)
	if err := d.conn.Tx(w, r); err != nil {
		return 0, driver.Transport("adc.read", err)
	}
	return int(r[1]&0x03)<<8 | int(r[2]), nil
}

// scale converts a raw 10-bit reading into the channel's engineering unit
// and runs it through the smoothing chain.
func (d *Driver) scale(channel int, raw int) float64 {
	var v float64
	if channel < d.cfg.VoltageChannels {
		v = float64(raw) / d.cfg.Resolution * d.cfg.VRef * d.cfg.VoltageMultiplier
		v = d.filters[channel].Apply(v)
		if v < d.cfg.VoltageThreshold {
			v = 0.0
		}
	} else {
		if raw > 0 {
			v = (d.cfg.ResistanceRefOhms * (d.cfg.Resolution - float64(raw)) / float64(raw)) / 10
		}
		v = d.filters[channel].Apply(v)
	}
	return math.Round(v*100) / 100
}
