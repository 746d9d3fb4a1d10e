package api

import (
	"errors"
	"net/http"

	"github.com/hw-control/hgc/internal/driver"
)

// ErrNotFound marks a request for a channel or pin this gateway does not
// manage.
var ErrNotFound = errors.New("NOT_FOUND")

// WriteCommandError maps a command failure to its HTTP status and
// normalized code. The taxonomy is fixed: local validation is the
// caller's fault, a daemon rejection is the daemon's, and transport or
// protocol trouble means the backend is temporarily unusable.
func WriteCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, driver.ErrValidation):
		WriteError(w, http.StatusBadRequest, "INVALID_RANGE", err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		WriteError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, driver.ErrDaemon):
		WriteError(w, http.StatusBadGateway, "DAEMON_ERROR", err.Error(), nil)
	case errors.Is(err, driver.ErrTransport), errors.Is(err, driver.ErrProtocol):
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error(), nil)
	default:
		WriteError(w, http.StatusInternalServerError, "INTERNAL", err.Error(), nil)
	}
}
