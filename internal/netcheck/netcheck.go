// Package netcheck reports whether the network is reachable before polling
// resumes.
package netcheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// Checker reports network connectivity.
type Checker interface {
	Online(ctx context.Context) bool
}

// Always reports connectivity unconditionally.
type Always struct{}

func (Always) Online(context.Context) bool { return true }

// Func adapts a function to Checker.
type Func func(ctx context.Context) bool

func (f Func) Online(ctx context.Context) bool { return f(ctx) }

// DialChecker is online when a TCP connection to Address succeeds within
// Timeout.
type DialChecker struct {
	Address string
	Timeout time.Duration
	logger  *logrus.Entry
}

// NewDialChecker returns a DialChecker for address ("host:port").
func NewDialChecker(address string, timeout time.Duration, logger *logrus.Entry) *DialChecker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &DialChecker{
		Address: address,
		Timeout: timeout,
		logger:  logger.WithField("component", "netcheck"),
	}
}

func (d *DialChecker) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", d.Address)
	if err != nil {
		d.logger.WithError(err).WithField("address", d.Address).Debug("connectivity probe failed")
		return false
	}
	_ = conn.Close()
	return true
}

// AddressFromURL derives a "host:port" dial target from an absolute URL,
// defaulting the port from the scheme.
func AddressFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("%q has no host", raw)
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", fmt.Errorf("%q has no port and unknown scheme %q", raw, u.Scheme)
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
