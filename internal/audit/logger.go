package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hw-control/hgc/internal/auth"
	"github.com/hw-control/hgc/internal/driver"
)

// Entry is one audit record.
type Entry struct {
	Timestamp time.Time      `json:"ts"`
	User      string         `json:"user"`
	Channel   string         `json:"channel"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Outcome   string         `json:"outcome"`
	Code      string         `json:"code"`
	LatencyMs int64          `json:"latency_ms"`
}

// Logger appends audit records to a JSONL file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
}

// NewLogger creates the audit logger under logDir.
func NewLogger(logDir string) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, "audit.jsonl")
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{filePath: filePath, file: file}, nil
}

// LogAction records one actuation attempt. err==nil means the command was
// acknowledged.
func (l *Logger) LogAction(ctx context.Context, action, channel string, params map[string]any, err error, latency time.Duration) {
	outcome := "SUCCESS"
	if err != nil {
		outcome = "FAILURE"
	}

	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		User:      auth.Subject(ctx),
		Channel:   channel,
		Action:    action,
		Params:    params,
		Outcome:   outcome,
		Code:      codeFor(err),
		LatencyMs: latency.Milliseconds(),
	})
}

// codeFor maps an error to its normalized audit code.
func codeFor(err error) string {
	switch {
	case err == nil:
		return "SUCCESS"
	case errors.Is(err, driver.ErrValidation):
		return "INVALID_RANGE"
	case errors.Is(err, driver.ErrDaemon):
		return "DAEMON_ERROR"
	case errors.Is(err, driver.ErrTransport), errors.Is(err, driver.ErrProtocol):
		return "UNAVAILABLE"
	default:
		return "ERROR"
	}
}

// writeEntry appends one JSON line and syncs. Audit failures are reported
// on stderr and never propagate to the command path.
func (l *Logger) writeEntry(entry Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal audit entry: %v\n", err)
		return
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write audit entry: %v\n", err)
		return
	}
	if err := l.file.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to sync audit log: %v\n", err)
	}
}

// FilePath returns the path of the active audit file.
func (l *Logger) FilePath() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.filePath
}

// Rotate renames the active file with a timestamp suffix and starts a
// fresh one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
		l.file = nil
	}

	rotated := fmt.Sprintf("%s.%s", l.filePath, time.Now().Format("20060102-150405"))
	if err := os.Rename(l.filePath, rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	file, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open new log file: %w", err)
	}
	l.file = file
	return nil
}

// Close closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}
