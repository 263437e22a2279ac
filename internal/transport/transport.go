// Package transport implements the pluggable transport adapter: by
// default the server talks directly to the net.Conn returned by Accept,
// but an optional TLS adapter can be installed so the rest of the system
// never has to know the difference.
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
)

// Config configures the optional TLS adapter. A zero Config (Enabled
// false) leaves connections unwrapped.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// Adapter wraps newly accepted connections, installing TLS when
// configured. The zero Adapter is a no-op passthrough.
type Adapter struct {
	tlsConfig *tls.Config
}

// New builds an Adapter from cfg. When cfg.Enabled, it loads the given
// certificate/key pair once at startup so every accepted connection
// reuses the same *tls.Config.
func New(cfg Config) (*Adapter, error) {
	if !cfg.Enabled {
		return &Adapter{}, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS key pair: %w", err)
	}
	return &Adapter{
		tlsConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// Wrap adapts a freshly accepted connection. When TLS is configured it
// returns a server-side TLS connection whose handshake runs on its first
// read or write. The returned net.Conn is exactly what the caller already
// has when TLS is disabled.
func (a *Adapter) Wrap(conn net.Conn) net.Conn {
	if a == nil || a.tlsConfig == nil {
		return conn
	}
	return tls.Server(conn, a.tlsConfig)
}

// Enabled reports whether this Adapter installs TLS.
func (a *Adapter) Enabled() bool {
	return a != nil && a.tlsConfig != nil
}
