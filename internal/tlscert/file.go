package tlscert

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileSource serves a certificate pair from disk and reloads it when either file's
// modification time changes, so rotated certificates apply without a restart.
type fileSource struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	modTime time.Time
}

func newFileSource(cfg Config, logger *slog.Logger) (*fileSource, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("tls_cert_file and tls_key_file are required when tls_mode=file")
	}
	if err := checkKeyPermissions(cfg.KeyFile); err != nil {
		return nil, err
	}
	s := &fileSource{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// load returns the cached pair, reading it again when the files changed.
func (s *fileSource) load() (*tls.Certificate, error) {
	modTime, err := latestModTime(s.certFile, s.keyFile)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cert != nil && modTime.Equal(s.modTime) {
		return s.cert, nil
	}
	cert, err := tls.LoadX509KeyPair(s.certFile, s.keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate pair: %w", err)
	}
	if s.cert != nil {
		s.logger.Info("reloaded TLS certificate", slog.String("cert_file", s.certFile))
	}
	s.cert = &cert
	s.modTime = modTime
	return s.cert, nil
}

func (s *fileSource) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion: MinTLSVersion,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			cert, err := s.load()
			if err != nil {
				s.logger.Error("failed to load TLS certificate",
					slog.String("cert_file", s.certFile),
					slog.String("error", err.Error()))
				return nil, err
			}
			return cert, nil
		},
	}, nil
}

func (s *fileSource) Description() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", s.certFile, s.keyFile)
}

func latestModTime(paths ...string) (time.Time, error) {
	var latest time.Time
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return time.Time{}, fmt.Errorf("certificate file not accessible: %w", err)
		}
		if info.IsDir() {
			return time.Time{}, fmt.Errorf("certificate path %s is a directory", path)
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
	}
	return latest, nil
}

// checkKeyPermissions rejects private keys readable by group or others.
func checkKeyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("key file not accessible: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("key file %s has permissions %o, expected 0600 or 0400", path, perm)
	}
	return nil
}
