// Package probe answers "can the remote be reached right now?".
//
// A probe is a single check with no retries and no remembered state. Any
// failure reads as "not connected".
package probe

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"
)

// Prober reports current connectivity.
type Prober interface {
	Connected(ctx context.Context) bool
}

// Func adapts a plain function to Prober.
type Func func(ctx context.Context) bool

// Connected implements Prober.
func (f Func) Connected(ctx context.Context) bool {
	return f(ctx)
}

// Always returns a Prober with a fixed answer.
func Always(connected bool) Prober {
	return Func(func(context.Context) bool { return connected })
}

// DefaultAddress is dialed when no better target is known.
const DefaultAddress = "1.1.1.1:443"

// TCP dials Address and reports whether the handshake completed within
// Timeout.
type TCP struct {
	Address string
	Timeout time.Duration
}

// NewTCP returns a TCP probe. An empty address means DefaultAddress and a
// non-positive timeout means 3 seconds.
func NewTCP(address string, timeout time.Duration) *TCP {
	if address == "" {
		address = DefaultAddress
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &TCP{Address: address, Timeout: timeout}
}

// Connected implements Prober.
func (p *TCP) Connected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// AddressFromDSN extracts host:port from a Postgres URL or key=value DSN so
// the probe targets the remote database itself. It returns "" when the DSN
// carries no host.
func AddressFromDSN(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return ""
	}

	if strings.Contains(dsn, "://") {
		u, err := url.Parse(dsn)
		if err != nil || u.Hostname() == "" {
			return ""
		}
		port := u.Port()
		if port == "" {
			port = "5432"
		}
		return net.JoinHostPort(u.Hostname(), port)
	}

	var host, port string
	for _, field := range strings.Fields(dsn) {
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch k {
		case "host":
			host = v
		case "port":
			port = v
		}
	}
	if host == "" || strings.HasPrefix(host, "/") {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	return net.JoinHostPort(host, port)
}
