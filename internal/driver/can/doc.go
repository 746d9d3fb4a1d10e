// Package can implements the CAN bus client.
//
// CAN is a multi-sender broadcast bus with no inherent request/response
// pairing, so every probe transmits a request frame and then filters the
// receive stream for the configured response identifier, discarding
// unrelated traffic.
package can
