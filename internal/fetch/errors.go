package fetch

import (
	"errors"
	"fmt"
)

// Fetch errors.
//
// Design decision: both are wrapped rather than returned bare so the
// underlying cause (status code, dial error) stays visible in logs while
// callers can still branch with errors.Is.
var (
	// ErrStatus is returned when the server answered with a non-2xx status.
	// The Response returned alongside it carries the status code.
	ErrStatus = errors.New("unexpected HTTP status")

	// ErrTransport is returned when no usable response was received:
	// DNS and dial failures, timeouts, TLS errors, truncated bodies.
	ErrTransport = errors.New("transport error")

	// ErrInvalidProxyAddress is returned when the proxy address cannot be parsed.
	// Accepted forms are "host:port" and "socks5://[user:pass@]host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port or socks5://host:port")

	// ErrProxyNotSOCKS5 is returned by CheckProxy when the proxy does not
	// speak SOCKS5.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyCannotConnect is returned by CheckProxy when the proxy is unreachable.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")
)

// statusError builds an ErrStatus error for the given code.
func statusError(code int) error {
	return fmt.Errorf("%w: %d", ErrStatus, code)
}

// transportError wraps err as an ErrTransport error.
func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}
