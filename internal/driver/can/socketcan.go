package can

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

// Bus abstracts the CAN socket so tests can script frame exchanges.
type Bus interface {
	Send(ctx context.Context, f can.Frame) error
	// Recv returns the next frame, or an error once timeout elapses.
	Recv(timeout time.Duration) (can.Frame, error)
	Close() error
}

// socketcanBus is the Linux SocketCAN implementation of Bus.
type socketcanBus struct {
	conn net.Conn
	tx   *socketcan.Transmitter
	rx   *socketcan.Receiver
}

// Open dials the named SocketCAN interface. A missing interface is a
// startup failure.
func Open(iface string) (Bus, error) {
	conn, err := socketcan.Dial("can", iface)
	if err != nil {
		return nil, fmt.Errorf("CAN interface %s not present: %w", iface, err)
	}
	return &socketcanBus{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
		rx:   socketcan.NewReceiver(conn),
	}, nil
}

func (b *socketcanBus) Send(ctx context.Context, f can.Frame) error {
	return b.tx.TransmitFrame(ctx, f)
}

func (b *socketcanBus) Recv(timeout time.Duration) (can.Frame, error) {
	if err := b.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return can.Frame{}, err
	}
	if !b.rx.Receive() {
		err := b.rx.Err()
		if err == nil {
			err = fmt.Errorf("receive failed")
		}
		return can.Frame{}, err
	}
	return b.rx.Frame(), nil
}

func (b *socketcanBus) Close() error {
	return b.conn.Close()
}
