// Package adc samples an MCP3008 analog-to-digital converter over SPI.
//
// Channels are split into a voltage group and a resistance group, each with
// its own scaling transform and smoothing (moving average plus exponential
// moving average). One sample per duty cycle, no response correlation.
package adc
