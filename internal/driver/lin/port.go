package lin

import (
	"time"

	"github.com/goburrow/serial"
)

// Port abstracts the UART handle so tests can script byte streams.
type Port interface {
	// Read fills p with whatever arrives before the port's read timeout.
	// A timeout with zero bytes is reported as (0, nil).
	Read(p []byte) (int, error)
	// Write sends p on the wire.
	Write(p []byte) (int, error)
	// SendBreak signals the start of a LIN frame.
	SendBreak() error
	// ResetInput discards anything pending in the receive buffer.
	ResetInput() error
	Close() error
}

// readSlice is the per-call read timeout of the underlying serial port.
// It bounds the granularity of response deadline checks.
const readSlice = 20 * time.Millisecond

// serialPort adapts a goburrow serial handle to Port.
type serialPort struct {
	port serial.Port
}

// OpenPort opens the UART device. A missing device is a startup failure.
func OpenPort(address string, baudRate int) (Port, error) {
	p, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: baudRate,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readSlice,
	})
	if err != nil {
		return nil, err
	}
	return &serialPort{port: p}, nil
}

func (s *serialPort) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err == serial.ErrTimeout {
		return n, nil
	}
	return n, err
}

func (s *serialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// SendBreak approximates the LIN break field with a dominant 0x00 byte.
// The UART cannot hold the line low for 13 bit times; slaves on this bus
// synchronize on the SYNC byte that follows.
func (s *serialPort) SendBreak() error {
	if _, err := s.port.Write([]byte{0x00}); err != nil {
		return err
	}
	time.Sleep(1350 * time.Microsecond)
	return nil
}

// ResetInput drains the receive buffer by reading until a timeout returns
// nothing.
func (s *serialPort) ResetInput() error {
	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		if err == serial.ErrTimeout || n == 0 {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (s *serialPort) Close() error {
	return s.port.Close()
}
