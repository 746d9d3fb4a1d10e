package adc

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// OpenSPI initializes the host SPI drivers and connects to the named bus.
// A missing device is a startup failure: the process must not come up
// without its sampling transport.
func OpenSPI(bus string, speedHz int) (Conn, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("host init failed: %w", err)
	}

	port, err := spireg.Open(bus)
	if err != nil {
		return nil, nil, fmt.Errorf("SPI bus %s not present: %w", bus, err)
	}

	conn, err := port.Connect(physic.Frequency(speedHz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		port.Close()
		return nil, nil, fmt.Errorf("SPI connect on %s failed: %w", bus, err)
	}

	return conn, port.Close, nil
}
