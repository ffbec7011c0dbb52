package config

import (
	"strings"
	"time"

	"listquery/internal/naming"
	"listquery/internal/restrict"
	"listquery/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Database      DatabaseConfig      `mapstructure:"database"`
	Server        ServerConfig        `mapstructure:"server"`
	Query         QueryConfig         `mapstructure:"query"`
	Schema        SchemaConfig        `mapstructure:"schema"`
	Restrictions  RestrictionsConfig  `mapstructure:"restrictions"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
)

// PoolConfig holds connection pool parameters.
type PoolConfig struct {
	MaxOpen     int           `mapstructure:"max_open"`
	MaxIdle     int           `mapstructure:"max_idle"`
	MaxLifetime time.Duration `mapstructure:"max_lifetime"`
}

// DatabaseTLSConfig holds TLS settings for database connections. For MySQL a
// custom config is registered with the driver; for PostgreSQL the mode maps to sslmode.
type DatabaseTLSConfig struct {
	// Mode is one of off, skip-verify, verify-ca, verify-full.
	Mode string `mapstructure:"mode"`

	CAFile string `mapstructure:"ca_file"`
	// CAFileEnv names an environment variable holding the CA path.
	CAFileEnv string `mapstructure:"ca_file_env"`

	CertFile    string `mapstructure:"cert_file"`
	CertFileEnv string `mapstructure:"cert_file_env"`
	KeyFile     string `mapstructure:"key_file"`
	KeyFileEnv  string `mapstructure:"key_file_env"`

	// ServerName overrides the host name checked in verify-full mode.
	ServerName string `mapstructure:"server_name"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	// Driver is mysql, postgres (lib/pq) or pgx.
	Driver string `mapstructure:"driver"`
	// ConnectionString is a complete driver DSN and overrides the discrete fields.
	ConnectionString string `mapstructure:"dsn"`
	// ConnectionStringFile reads the DSN from a file; "@-" reads stdin.
	ConnectionStringFile string `mapstructure:"dsn_file"`
	// MyCnfFile is a MySQL defaults file. Keys are read from [client].
	MyCnfFile string `mapstructure:"mycnf_file"`

	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	PasswordFile   string `mapstructure:"password_file"`
	PasswordPrompt bool   `mapstructure:"password_prompt"`
	// Database is the MySQL database. For PostgreSQL it is the database to
	// connect to, and Schema names the schema to introspect.
	Database string `mapstructure:"database"`
	Schema   string `mapstructure:"schema"`

	TLS  DatabaseTLSConfig `mapstructure:"tls"`
	Pool PoolConfig        `mapstructure:"pool"`

	// ConnectionTimeout is the max time to wait for the database on startup.
	ConnectionTimeout       time.Duration `mapstructure:"connection_timeout"`
	ConnectionRetryInterval time.Duration `mapstructure:"connection_retry_interval"`
}

// IsPostgres reports whether the configured driver speaks the PostgreSQL protocol.
func (d *DatabaseConfig) IsPostgres() bool {
	return d.Driver == DriverPostgres || d.Driver == DriverPgx
}

// IntrospectionSchema is the information_schema scope: the MySQL database or the PostgreSQL schema.
func (d *DatabaseConfig) IntrospectionSchema() string {
	if d.IsPostgres() {
		if d.Schema == "" {
			return "public"
		}
		return d.Schema
	}
	return d.Database
}

type myCnfSettings struct {
	Host      string
	Port      int
	User      string
	Password  string
	Database  string
	TLSMode   string
	HasPort   bool
	HasDBName bool
}

// AuthConfig selects how callers are authenticated and which claim names their role.
type AuthConfig struct {
	OIDCEnabled   bool          `mapstructure:"oidc_enabled"`
	OIDCIssuerURL string        `mapstructure:"oidc_issuer_url"`
	OIDCAudience  string        `mapstructure:"oidc_audience"`
	OIDCClockSkew time.Duration `mapstructure:"oidc_clock_skew"`
	OIDCCAFile    string        `mapstructure:"oidc_ca_file"`

	JWTEnabled    bool          `mapstructure:"jwt_enabled"`
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTSecretFile string        `mapstructure:"jwt_secret_file"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	JWTAudience   string        `mapstructure:"jwt_audience"`
	JWTClockSkew  time.Duration `mapstructure:"jwt_clock_skew"`

	// RoleClaim names the token claim that selects a restriction policy set.
	RoleClaim string `mapstructure:"role_claim"`
	// DBRoleEnabled runs each list query under SET ROLE <caller role>.
	DBRoleEnabled bool `mapstructure:"db_role_enabled"`
	// DBRoles lists the database roles callers may assume. Empty allows any role.
	DBRoles []string `mapstructure:"db_roles"`
}

// AdminConfig controls the schema reload endpoint.
type AdminConfig struct {
	SchemaReloadEnabled bool   `mapstructure:"schema_reload_enabled"`
	AuthToken           string `mapstructure:"auth_token"`
	AuthTokenFile       string `mapstructure:"auth_token_file"`
}

// CORSConfig holds cross-origin settings.
type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	ExposeHeaders    []string `mapstructure:"expose_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig holds token bucket settings.
type RateLimitConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
	PerClient bool    `mapstructure:"per_client"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port               int             `mapstructure:"port"`
	ReadTimeout        time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout        time.Duration   `mapstructure:"idle_timeout"`
	ShutdownTimeout    time.Duration   `mapstructure:"shutdown_timeout"`
	HealthCheckTimeout time.Duration   `mapstructure:"health_check_timeout"`
	CORS               CORSConfig      `mapstructure:"cors"`
	RateLimit          RateLimitConfig `mapstructure:"rate_limit"`
	Auth               AuthConfig      `mapstructure:"auth"`
	Admin              AdminConfig     `mapstructure:"admin"`

	TLSMode        string `mapstructure:"tls_mode"` // off, auto, file
	TLSCertFile    string `mapstructure:"tls_cert_file"`
	TLSKeyFile     string `mapstructure:"tls_key_file"`
	TLSAutoCertDir string `mapstructure:"tls_auto_cert_dir"`
}

// QueryConfig bounds list queries.
type QueryConfig struct {
	// DefaultLimit applies when a request sets no limit.
	DefaultLimit int `mapstructure:"default_limit"`
	// MaxLimit clamps the rendered LIMIT. Zero disables clamping.
	MaxLimit int `mapstructure:"max_limit"`
	// Timeout bounds the database round trip of one request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// SchemaConfig selects and filters the entities the service exposes.
type SchemaConfig struct {
	// Source is database or file.
	Source      string              `mapstructure:"source"`
	File        string              `mapstructure:"file"`
	Filters     schemafilter.Config `mapstructure:"filters"`
	Naming      naming.Config       `mapstructure:"naming"`
	Concurrency int                 `mapstructure:"concurrency"`
	// RefreshMinInterval enables periodic rebuilds when positive.
	RefreshMinInterval time.Duration `mapstructure:"refresh_min_interval"`
	RefreshMaxInterval time.Duration `mapstructure:"refresh_max_interval"`
}

// RestrictionsConfig maps entities to restriction policies. Role policies
// replace default ones entity by entity. Keys are matched case-insensitively.
type RestrictionsConfig struct {
	Default map[string]restrict.Policy            `mapstructure:"default"`
	Roles   map[string]map[string]restrict.Policy `mapstructure:"roles"`
}

// PolicyFor returns the policy for entity under role, or nil when the entity is unrestricted.
func (r RestrictionsConfig) PolicyFor(role, entity string) *restrict.Policy {
	entity = strings.ToLower(entity)
	if role != "" {
		if policies, ok := r.Roles[strings.ToLower(role)]; ok {
			if policy, ok := policies[entity]; ok {
				return &policy
			}
		}
	}
	if policy, ok := r.Default[entity]; ok {
		return &policy
	}
	return nil
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	ExportsEnabled bool   `mapstructure:"exports_enabled"`
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName         string        `mapstructure:"service_name"`
	ServiceVersion      string        `mapstructure:"service_version"`
	Environment         string        `mapstructure:"environment"`
	MetricsEnabled      bool          `mapstructure:"metrics_enabled"`
	TracingEnabled      bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio    float64       `mapstructure:"trace_sample_ratio"`
	SQLCommenterEnabled bool          `mapstructure:"sqlcommenter_enabled"`
	Logging             LoggingConfig `mapstructure:"logging"`

	OTLP OTLPConfig `mapstructure:"otlp"`
	// Per-signal overrides of OTLP.
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration.
type OTLPConfig struct {
	Endpoint          string            `mapstructure:"endpoint"`
	Protocol          string            `mapstructure:"protocol"` // grpc, http/protobuf
	Insecure          bool              `mapstructure:"insecure"`
	TLSCertFile       string            `mapstructure:"tls_cert_file"`
	TLSClientCertFile string            `mapstructure:"tls_client_cert_file"`
	TLSClientKeyFile  string            `mapstructure:"tls_client_key_file"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	Compression       string            `mapstructure:"compression"` // none, gzip
	RetryEnabled      bool              `mapstructure:"retry_enabled"`
	RetryMaxAttempts  int               `mapstructure:"retry_max_attempts"`
}

// TracesConfig returns the effective OTLP settings for traces.
func (c *ObservabilityConfig) TracesConfig() OTLPConfig {
	return c.OTLP.overlay(c.Traces)
}

// LogsConfig returns the effective OTLP settings for logs.
func (c *ObservabilityConfig) LogsConfig() OTLPConfig {
	return c.OTLP.overlay(c.Logs)
}

// overlay applies the non-zero fields of override on top of c. Insecure is
// taken from override whenever an override block exists.
func (c OTLPConfig) overlay(override *OTLPConfig) OTLPConfig {
	if override == nil {
		return c
	}
	out := c
	setString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	setString(&out.Endpoint, override.Endpoint)
	setString(&out.Protocol, override.Protocol)
	setString(&out.TLSCertFile, override.TLSCertFile)
	setString(&out.TLSClientCertFile, override.TLSClientCertFile)
	setString(&out.TLSClientKeyFile, override.TLSClientKeyFile)
	setString(&out.Compression, override.Compression)
	out.Insecure = override.Insecure

	if override.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers)+len(override.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
		for k, v := range override.Headers {
			out.Headers[k] = v
		}
	}
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.RetryMaxAttempts != 0 {
		out.RetryEnabled = override.RetryEnabled
		out.RetryMaxAttempts = override.RetryMaxAttempts
	}
	return out
}
