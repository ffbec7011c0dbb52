// Package tlscert supplies server certificates for the HTTPS listener, either from files
// on disk or from a generated self-signed pair for local use.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// Mode matches the server.tls_mode setting.
type Mode string

const (
	ModeOff  Mode = "off"
	ModeFile Mode = "file"
	ModeAuto Mode = "auto"
)

// MinTLSVersion is the minimum protocol version the server accepts.
const MinTLSVersion = tls.VersionTLS12

// Config selects and configures a certificate source.
type Config struct {
	Mode Mode

	CertFile string
	KeyFile  string

	// AutoCertDir holds the generated pair in auto mode.
	AutoCertDir string
	// Hosts are the DNS names and IPs the generated certificate covers.
	Hosts []string
}

// Manager hands out the TLS configuration for the listener.
type Manager interface {
	TLSConfig() (*tls.Config, error)
	Description() string
}

// NewManager returns the manager for cfg.Mode.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeFile:
		return newFileSource(cfg, logger)
	case ModeAuto:
		return newAutoSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported tls mode %q (expected %q or %q)", cfg.Mode, ModeFile, ModeAuto)
	}
}

// Enabled reports whether mode serves HTTPS.
func Enabled(mode string) bool {
	return mode != "" && Mode(mode) != ModeOff
}
