package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"listquery/internal/restrict"
	"listquery/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}
	c.Database.validate(result)
	c.Server.validate(result)
	c.Query.validate(result)
	c.Schema.validate(result)
	c.Restrictions.validate(result)
	c.Observability.validate(result)
	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	switch d.Driver {
	case DriverMySQL, DriverPostgres, DriverPgx:
	default:
		result.fail("database.driver", fmt.Sprintf("unsupported driver %q", d.Driver), "valid values are: mysql, postgres, pgx")
	}

	if strings.TrimSpace(d.MyCnfFile) != "" {
		if d.IsPostgres() {
			result.fail("database.mycnf_file", "mycnf_file is only supported with the mysql driver", "")
		}
		if strings.TrimSpace(d.ConnectionString) != "" || strings.TrimSpace(d.ConnectionStringFile) != "" {
			result.fail("database.mycnf_file", "mycnf_file is mutually exclusive with dsn/dsn_file", "set either mycnf_file or dsn/dsn_file, not both")
		}
	}

	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.fail("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.fail("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.fail("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.warn("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.fail("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.fail("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.fail("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.warn("database.connection_retry_interval", "connection_retry_interval is greater than connection_timeout", "only one connection attempt will be made")
	}

	name, _, err := d.EffectiveDatabaseName()
	if err != nil {
		field := "database.database"
		if strings.HasPrefix(err.Error(), "database.dsn") {
			field = "database.dsn"
		}
		result.fail(field, err.Error(), "")
		return
	}
	d.Database = name
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	switch t.Mode {
	case "", "off", "skip-verify", "verify-ca", "verify-full":
	default:
		result.fail("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}

	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.resolveCAFile() == "" {
		result.fail("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "set ca_file or ca_file_env")
	}
	if (t.resolveCertFile() == "") != (t.resolveKeyFile() == "") {
		result.fail("database.tls.cert_file", "both cert_file and key_file must be specified for client certificate authentication", "provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.warn("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	rl := s.RateLimit
	if rl.Enabled {
		if rl.RPS <= 0 {
			result.fail("server.rate_limit.rps", "rps must be greater than 0 when rate limiting is enabled", "")
		}
		if rl.Burst <= 0 {
			result.fail("server.rate_limit.burst", "burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if rl.RPS > 0 || rl.Burst > 0 {
		result.warn("server.rate_limit.enabled", "rate limit values are set but rate limiting is disabled", "set server.rate_limit.enabled to apply them")
	}

	s.CORS.validate(result, s.TLSMode != "" && s.TLSMode != "off")
	s.Auth.validate(result)

	if s.Admin.SchemaReloadEnabled && s.Admin.AuthToken == "" {
		result.fail("server.admin.auth_token", "admin token is required when schema reload is enabled", "set server.admin.auth_token or server.admin.auth_token_file")
	}

	switch s.TLSMode {
	case "", "off", "auto":
	case "file":
		if s.TLSCertFile == "" {
			result.fail("server.tls_cert_file", "TLS cert file required when tls_mode is 'file'", "")
		}
		if s.TLSKeyFile == "" {
			result.fail("server.tls_key_file", "TLS key file required when tls_mode is 'file'", "")
		}
	default:
		result.fail("server.tls_mode", fmt.Sprintf("invalid TLS mode %q", s.TLSMode), "valid values are: off, auto, file")
	}
}

func (c *CORSConfig) validate(result *ValidationResult, tlsEnabled bool) {
	if !c.Enabled {
		return
	}
	if len(c.AllowedOrigins) == 0 {
		result.fail("server.cors.allowed_origins", "CORS enabled but no allowed origins configured", "set allowed_origins or disable CORS")
		return
	}

	wildcard, onlyHTTP := false, true
	for _, origin := range c.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			wildcard = true
		}
		if !strings.HasPrefix(origin, "http://") {
			onlyHTTP = false
		}
	}
	if wildcard && c.AllowCredentials {
		result.fail("server.cors.allowed_origins", "wildcard origin (*) cannot be used with credentials", "use specific origins with credentials")
	}
	if wildcard {
		result.warn("server.cors.allowed_origins", "CORS wildcard origin enabled", "use specific origins in production")
	}
	if tlsEnabled && onlyHTTP {
		result.warn("server.cors.allowed_origins", "CORS allowed origins are http:// only while TLS is enabled", "use https:// origins when serving over TLS")
	}
}

func (a *AuthConfig) validate(result *ValidationResult) {
	if a.OIDCEnabled && a.JWTEnabled {
		result.fail("server.auth.jwt_enabled", "oidc and jwt authentication are mutually exclusive", "enable one bearer token scheme")
	}
	if a.OIDCEnabled {
		if a.OIDCIssuerURL == "" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL is required when OIDC is enabled", "")
		} else if u, err := url.Parse(a.OIDCIssuerURL); err != nil || u.Scheme != "https" {
			result.fail("server.auth.oidc_issuer_url", "issuer URL must be an https URL", "")
		}
		if a.OIDCAudience == "" {
			result.fail("server.auth.oidc_audience", "audience is required when OIDC is enabled", "")
		}
	}
	if a.JWTEnabled && strings.TrimSpace(a.JWTSecret) == "" {
		result.fail("server.auth.jwt_secret", "secret is required when JWT authentication is enabled", "set jwt_secret or jwt_secret_file")
	}
	if a.JWTEnabled && len(a.JWTSecret) > 0 && len(a.JWTSecret) < 32 {
		result.warn("server.auth.jwt_secret", "jwt secret is shorter than 32 bytes", "use a longer random secret")
	}
	if a.DBRoleEnabled && !a.OIDCEnabled && !a.JWTEnabled {
		result.fail("server.auth.db_role_enabled", "db_role_enabled requires bearer authentication", "enable oidc or jwt authentication")
	}
	if (a.OIDCEnabled || a.JWTEnabled) && strings.TrimSpace(a.RoleClaim) == "" {
		result.fail("server.auth.role_claim", "role claim name cannot be empty", "")
	}
}

func (q *QueryConfig) validate(result *ValidationResult) {
	if q.DefaultLimit < 0 {
		result.fail("query.default_limit", "default_limit cannot be negative", "")
	}
	if q.MaxLimit < 0 {
		result.fail("query.max_limit", "max_limit cannot be negative", "")
	}
	if q.MaxLimit > 0 && q.DefaultLimit > q.MaxLimit {
		result.warn("query.default_limit", "default_limit is greater than max_limit", "rendered limits are clamped to max_limit")
	}
	if q.Timeout < 0 {
		result.fail("query.timeout", "timeout cannot be negative", "")
	}
}

func (s *SchemaConfig) validate(result *ValidationResult) {
	switch s.Source {
	case "database":
	case "file":
		if strings.TrimSpace(s.File) == "" {
			result.fail("schema.file", "schema file is required when schema.source is file", "")
		}
	default:
		result.fail("schema.source", fmt.Sprintf("unsupported schema source %q", s.Source), "valid values are: database, file")
	}
	if s.RefreshMinInterval < 0 {
		result.fail("schema.refresh_min_interval", "refresh_min_interval cannot be negative", "")
	}
	if s.RefreshMinInterval > 0 && s.RefreshMaxInterval < s.RefreshMinInterval {
		result.warn("schema.refresh_max_interval", "refresh_max_interval is less than refresh_min_interval", "polling will use refresh_min_interval")
	}
	if s.Concurrency < 0 {
		result.fail("schema.concurrency", "concurrency cannot be negative", "")
	}
	validateSchemaFilters(result, s.Filters)
	for singular, plural := range s.Naming.PluralOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.fail("schema.naming.plural_overrides", "override entries cannot be empty", "")
		}
	}
	for plural, singular := range s.Naming.SingularOverrides {
		if strings.TrimSpace(singular) == "" || strings.TrimSpace(plural) == "" {
			result.fail("schema.naming.singular_overrides", "override entries cannot be empty", "")
		}
	}
}

func (r *RestrictionsConfig) validate(result *ValidationResult) {
	validatePolicies(result, "restrictions.default", r.Default)
	for role, policies := range r.Roles {
		validatePolicies(result, "restrictions.roles."+role, policies)
	}
}

func validatePolicies(result *ValidationResult, field string, policies map[string]restrict.Policy) {
	for entity, policy := range policies {
		if err := policy.Validate(); err != nil {
			result.fail(field+"."+entity, err.Error(), "")
		}
		if policy.Mode == restrict.Whitelist && policy.WhereFields == nil && policy.Relations == nil {
			result.warn(field+"."+entity, "whitelist policy lists nothing and restricts nothing", "list where_fields or relations")
		}
	}
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema.filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "schema.filters.deny_tables", filters.DenyTables)
	validatePatternMap(result, "schema.filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "schema.filters.deny_columns", filters.DenyColumns)
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.fail(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.fail(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		validateGlobList(result, field, []string{tablePattern})
		validateGlobList(result, field, columnPatterns)
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio", "trace_sample_ratio must be between 0 and 1", "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	switch o.Protocol {
	case "", "grpc":
	case "http/protobuf":
		if !validOTLPEndpoint(o.Endpoint) {
			result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
		}
	default:
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	switch o.Compression {
	case "", "none", "gzip":
	default:
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
	if o.RetryMaxAttempts < 0 {
		result.fail(prefix+".retry_max_attempts", "retry_max_attempts cannot be negative", "")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		return err == nil && parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
