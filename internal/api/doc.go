// Package api serves the dashboard HTTP surface: channel reads, the SSE
// telemetry stream, PWM actuation and the metrics scrape endpoint. Every
// response uses one JSON envelope with a correlation id.
package api
