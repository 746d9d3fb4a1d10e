package lin

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver"
	"github.com/hw-control/hgc/internal/state"
)

// Owner is the store-owner identity of this driver.
const Owner = "driver/lin"

// syncByte starts every LIN header.
const syncByte = 0x55

// responseLen is two data bytes plus the checksum.
const responseLen = 3

// Checksum is the enhanced LIN checksum: inverted 8-bit sum of PID and
// data bytes.
func Checksum(pid byte, data []byte) byte {
	sum := int(pid)
	for _, b := range data {
		sum += int(b)
	}
	return byte(^(sum & 0xFF))
}

// Driver polls each configured sensor with a request/response transaction.
type Driver struct {
	port    Port
	sensors []config.LINSensor
	timeout time.Duration
	retry   driver.RetryPolicy
	store   *state.Store
}

// New creates the LIN driver over an open port.
func New(port Port, cfg config.LINConfig, timing config.TimingConfig, store *state.Store) *Driver {
	return &Driver{
		port:    port,
		sensors: cfg.Sensors,
		timeout: cfg.ResponseTimeout,
		retry: driver.RetryPolicy{
			Budget:  timing.RetryBudget,
			Delay:   timing.RetryDelay,
			Backoff: timing.BackoffFactor,
		},
		store: store,
	}
}

// Poll is the scheduler entry point: one transaction per sensor. A sensor
// that exhausts its retry budget goes Stale without affecting the others.
func (d *Driver) Poll(ctx context.Context) error {
	var firstErr error
	for _, sensor := range d.sensors {
		id := state.ID(state.KindLIN, sensor.Name)

		var value float64
		err := driver.Retry(ctx, d.retry, func(ctx context.Context) error {
			var rerr error
			value, rerr = d.request(ctx, sensor.PID)
			return rerr
		})
		if err != nil {
			d.store.SetHealth(Owner, id, state.Stale)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if _, serr := d.store.Set(Owner, id, value); serr != nil && firstErr == nil {
			firstErr = serr
		}
	}
	return firstErr
}

// request performs one header/response transaction for pid and returns the
// decoded value.
func (d *Driver) request(ctx context.Context, pid byte) (float64, error) {
	if err := d.sendHeader(pid); err != nil {
		return 0, err
	}

	frame, err := d.readResponse(ctx, pid)
	if err != nil {
		return 0, err
	}

	data := frame[:2]
	if got, want := frame[2], Checksum(pid, data); got != want {
		return 0, driver.Protocol("lin.request",
			fmt.Errorf("checksum mismatch for PID 0x%02X: got 0x%02X, want 0x%02X", pid, got, want))
	}
	return float64(binary.LittleEndian.Uint16(data)) / 100.0, nil
}

// sendHeader clears the receive buffer and writes break + SYNC + PID.
func (d *Driver) sendHeader(pid byte) error {
	if err := d.port.ResetInput(); err != nil {
		return driver.Transport("lin.header", err)
	}
	if err := d.port.SendBreak(); err != nil {
		return driver.Transport("lin.header", err)
	}
	if _, err := d.port.Write([]byte{syncByte, pid}); err != nil {
		return driver.Transport("lin.header", err)
	}
	return nil
}

// readResponse scans incoming bytes for the SYNC+PID marker and returns
// the responseLen bytes that follow it. The bus echoes our own header and
// may carry noise, so correlation is by content, not arrival order.
func (d *Driver) readResponse(ctx context.Context, pid byte) ([]byte, error) {
	deadline := time.Now().Add(d.timeout)
	marker := []byte{syncByte, pid}
	var buf []byte
	chunk := make([]byte, 64)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, driver.Transport("lin.read", ctx.Err())
		default:
		}

		n, err := d.port.Read(chunk)
		if err != nil {
			return nil, driver.Transport("lin.read", err)
		}
		if n == 0 {
			continue
		}
		buf = append(buf, chunk[:n]...)

		if i := bytes.Index(buf, marker); i >= 0 {
			buf = buf[i+len(marker):]
			if len(buf) >= responseLen {
				return buf[:responseLen], nil
			}
			// Marker found but payload incomplete: keep the remainder
			// and prepend the marker so a later chunk completes it.
			buf = append(append([]byte{}, marker...), buf...)
		}
	}
	return nil, driver.Transport("lin.read",
		fmt.Errorf("no response for PID 0x%02X within %v", pid, d.timeout))
}
