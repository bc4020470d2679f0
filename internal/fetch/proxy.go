package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// checkProxyTimeout bounds the SOCKS5 greeting performed by CheckProxy.
const checkProxyTimeout = 2 * time.Second

// SOCKS5 protocol constants used by the greeting.
const (
	socks5Version      = 0x05
	socks5AuthNone     = 0x00
	socks5AuthPassword = 0x02
	socks5AuthNoAccept = 0xFF
)

// parseProxy turns a proxy address into a dial address and a dialer.
// "host:port" dials without authentication; a socks5:// URL may carry
// user:password.
func parseProxy(address string) (string, proxy.Dialer, error) {
	if strings.Contains(address, "://") {
		u, err := url.Parse(address)
		if err != nil || (u.Scheme != "socks5" && u.Scheme != "socks5h") || !isValidProxyAddress(u.Host) {
			return "", nil, ErrInvalidProxyAddress
		}
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		return u.Host, d, nil
	}

	if !isValidProxyAddress(address) {
		return "", nil, ErrInvalidProxyAddress
	}
	d, err := proxy.SOCKS5("tcp", address, nil, proxy.Direct)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}
	return address, d, nil
}

// isValidProxyAddress checks that address is "host:port" with a non-empty
// host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// dialContextFunc adapts a proxy.Dialer for http.Transport.DialContext.
func dialContextFunc(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		resultCh := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			resultCh <- dialResult{conn, err}
		}()
		select {
		case r := <-resultCh:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// CheckProxy verifies that the configured proxy accepts a SOCKS5 greeting.
// It returns nil when no proxy is configured.
//
// The check only performs method negotiation: it proves the endpoint speaks
// SOCKS5 without asking it to connect anywhere.
func (c *Client) CheckProxy(ctx context.Context) error {
	if c.proxyAddress == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, checkProxyTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.proxyAddress)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(checkProxyTimeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	// version, number of methods, methods
	if _, err := conn.Write([]byte{socks5Version, 0x02, socks5AuthNone, socks5AuthPassword}); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyCannotConnect, err)
	}

	resp := make([]byte, 2)
	if _, err := io.ReadFull(conn, resp); err != nil {
		return fmt.Errorf("%w: %w", ErrProxyNotSOCKS5, err)
	}
	if resp[0] != socks5Version || resp[1] == socks5AuthNoAccept {
		return ErrProxyNotSOCKS5
	}
	return nil
}
