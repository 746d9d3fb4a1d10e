// Package audit writes an append-only JSONL trail of actuation commands.
// Telemetry reads are never audited; only requests that can change
// hardware state land here.
package audit
