package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name the custom TLS config is registered under with the MySQL driver.
const tlsConfigName = "listquery-custom"

// DSN returns the data source name for the configured driver. An explicit
// connection string is used as given, except that MySQL DSNs are normalized
// to parse times in UTC and pick up the configured TLS mode.
func (d *DatabaseConfig) DSN() (string, error) {
	if d.IsPostgres() {
		return d.postgresDSN(), nil
	}
	return d.mysqlDSN()
}

func (d *DatabaseConfig) mysqlDSN() (string, error) {
	var cfg *mysql.Config
	if d.ConnectionString != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if param := d.mysqlTLSParam(); param != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = param
	}
	return cfg.FormatDSN(), nil
}

func (d *DatabaseConfig) postgresDSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	query := url.Values{}
	if mode := postgresSSLMode(d.TLS.Mode); mode != "" {
		query.Set("sslmode", mode)
	}
	if ca := d.TLS.resolveCAFile(); ca != "" {
		query.Set("sslrootcert", ca)
	}
	if cert := d.TLS.resolveCertFile(); cert != "" {
		query.Set("sslcert", cert)
	}
	if key := d.TLS.resolveKeyFile(); key != "" {
		query.Set("sslkey", key)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Database,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func postgresSSLMode(mode string) string {
	switch mode {
	case "off":
		return "disable"
	case "skip-verify":
		return "require"
	case "verify-ca", "verify-full":
		return mode
	default:
		return ""
	}
}

// EffectiveDatabaseName returns the database the service connects to.
func (d *DatabaseConfig) EffectiveDatabaseName() (name string, source string, err error) {
	if d.IsPostgres() {
		return resolvePostgresDatabaseName(d.Database, d.ConnectionString)
	}
	return resolveEffectiveDatabaseName(d.Database, d.ConnectionString, d.MyCnfFile)
}

func resolvePostgresDatabaseName(databaseName, connectionString string) (string, string, error) {
	if name := strings.TrimSpace(databaseName); name != "" {
		return name, "database.database", nil
	}
	dsn := strings.TrimSpace(connectionString)
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		if name := strings.TrimPrefix(u.Path, "/"); name != "" {
			return name, "dsn", nil
		}
	}
	for _, field := range strings.Fields(dsn) {
		if key, value, ok := strings.Cut(field, "="); ok && key == "dbname" {
			return value, "dsn", nil
		}
	}
	return "", "", errors.New("no effective database name configured: set database.database or include the database in database.dsn")
}

func resolveEffectiveDatabaseName(databaseName string, connectionString string, myCnfFile string) (name string, source string, err error) {
	configDatabase := strings.TrimSpace(databaseName)
	dsn := strings.TrimSpace(connectionString)
	myCnfPath := strings.TrimSpace(myCnfFile)
	dsnDatabase, err := parseDSNDatabaseName(dsn)
	if err != nil {
		return "", "", err
	}

	switch {
	case configDatabase != "" && dsnDatabase != "" && configDatabase != dsnDatabase:
		return "", "", fmt.Errorf("database mismatch: database.database=%q but database.dsn targets %q", configDatabase, dsnDatabase)
	case configDatabase != "" && myCnfPath != "" && dsn == "":
		return configDatabase, "mycnf", nil
	case configDatabase != "":
		return configDatabase, "database.database", nil
	case dsnDatabase != "":
		return dsnDatabase, "dsn", nil
	case myCnfPath != "":
		return "", "", errors.New("database.mycnf_file does not provide a database name and database.database is not set")
	default:
		return "", "", errors.New("no effective database name configured: set database.database or include /<database> in database.dsn, database.dsn_file or database.mycnf_file")
	}
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	if connectionString == "" {
		return "", nil
	}
	parsed, err := mysql.ParseDSN(connectionString)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

func (d *DatabaseConfig) mysqlTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the custom TLS config with the MySQL driver. It must run
// before the connection is opened and is a no-op unless the mode verifies certificates.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.IsPostgres() || (d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full") {
		return nil
	}
	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if caFile := d.TLS.resolveCAFile(); caFile != "" {
		caCert, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", caFile)
		}
		tlsCfg.RootCAs = pool
	}

	certFile, keyFile := d.TLS.resolveCertFile(), d.TLS.resolveKeyFile()
	switch {
	case certFile != "" && keyFile != "":
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	case certFile != "" || keyFile != "":
		return nil, errors.New("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.Mode == "verify-ca" {
		// Chain is verified against RootCAs without matching the host name.
		roots := tlsCfg.RootCAs
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyChain(rawCerts, roots)
		}
	} else if d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}
	return tlsCfg, nil
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return errors.New("server presented no certificate")
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return fmt.Errorf("failed to parse server certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	intermediates := x509.NewCertPool()
	for _, cert := range certs[1:] {
		intermediates.AddCert(cert)
	}
	_, err := certs[0].Verify(x509.VerifyOptions{Roots: roots, Intermediates: intermediates})
	return err
}

func envOr(envName, fallback string) string {
	if envName != "" {
		if path := os.Getenv(envName); path != "" {
			return path
		}
	}
	return fallback
}

func (t *DatabaseTLSConfig) resolveCAFile() string   { return envOr(t.CAFileEnv, t.CAFile) }
func (t *DatabaseTLSConfig) resolveCertFile() string { return envOr(t.CertFileEnv, t.CertFile) }
func (t *DatabaseTLSConfig) resolveKeyFile() string  { return envOr(t.KeyFileEnv, t.KeyFile) }
