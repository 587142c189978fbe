package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

// retryable is implemented by errors that know whether repeating the call
// could help, such as HTTP status errors from the vendor clients.
type retryable interface {
	Retryable() bool
}

// notReady holds messages servers send while still starting.
var notReady = []string{
	"the database system is starting up",
	"the database system is in recovery mode",
	"loading the dataset in memory",
	"temporary failure in name resolution",
	"server closed idle connection",
}

// IsTransient reports whether err looks like a dependency that is not ready
// yet: a timeout, a refused or reset connection, or a known startup message.
// Errors carrying their own Retryable verdict are taken at their word.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, m := range notReady {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
