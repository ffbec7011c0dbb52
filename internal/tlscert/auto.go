package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	autoCertName = "listquery.crt"
	autoKeyName  = "listquery.key"

	autoValidity = 90 * 24 * time.Hour
	// autoRenewBefore regenerates a pair that expires within this window.
	autoRenewBefore = 7 * 24 * time.Hour
)

var defaultHosts = []string{"localhost", "127.0.0.1", "::1"}

// autoSource serves a self-signed pair kept in a directory, generating it on first use
// and whenever it is close to expiry or covers different hosts.
type autoSource struct {
	certPath string
	cert     tls.Certificate
}

func newAutoSource(cfg Config, logger *slog.Logger) (*autoSource, error) {
	dir := cfg.AutoCertDir
	if dir == "" {
		dir = ".tls"
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = defaultHosts
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}
	certPath := filepath.Join(dir, autoCertName)
	keyPath := filepath.Join(dir, autoKeyName)

	reuse, err := reusable(certPath, keyPath, hosts, time.Now())
	if err != nil {
		return nil, err
	}
	if !reuse {
		if err := generatePair(certPath, keyPath, hosts, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		logger.Warn("generated self-signed TLS certificate; use tls_mode=file in production",
			slog.String("cert_path", certPath),
			slog.Any("hosts", hosts))
	}

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
	}
	return &autoSource{certPath: certPath, cert: cert}, nil
}

func (s *autoSource) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{s.cert},
	}, nil
}

func (s *autoSource) Description() string {
	return fmt.Sprintf("self-signed (cert=%s)", s.certPath)
}

// reusable reports whether an existing pair can be served for hosts at now.
func reusable(certPath, keyPath string, hosts []string, now time.Time) (bool, error) {
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		return false, nil
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		return false, nil
	}
	data, err := os.ReadFile(certPath)
	if err != nil {
		return false, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return false, nil
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false, nil
	}
	if now.Before(cert.NotBefore) || now.Add(autoRenewBefore).After(cert.NotAfter) {
		return false, nil
	}
	if !slices.Equal(certHosts(cert), sortedHosts(hosts)) {
		return false, nil
	}
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return false, nil
	}
	return true, nil
}

func generatePair(certPath, keyPath string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"listquery self-signed"}, CommonName: hosts[0]},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(autoValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600)
}

func certHosts(cert *x509.Certificate) []string {
	hosts := slices.Clone(cert.DNSNames)
	for _, ip := range cert.IPAddresses {
		hosts = append(hosts, ip.String())
	}
	slices.Sort(hosts)
	return slices.Compact(hosts)
}

func sortedHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			host = ip.String()
		}
		out = append(out, host)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
