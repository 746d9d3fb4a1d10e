// Package pwm is the client for the privileged PWM daemon.
//
// The gateway never touches PWM hardware directly. Every actuation is an
// HTTP call to a small root-owned daemon, and the daemon's acknowledgement
// is the only thing that advances the mirrored pin state. Requests for the
// same pin are serialized so acknowledgements cannot interleave.
package pwm
