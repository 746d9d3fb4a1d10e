// Package lin implements a LIN master over a UART serial port.
//
// Each transaction sends a break plus a SYNC+PID header, then scans the
// receive stream for the correlated SYNC+PID echo followed by the expected
// data and checksum. Responses that fail length or checksum validation
// never reach the state store.
package lin
