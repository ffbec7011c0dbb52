package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable, e.g. LISTQ_DATABASE_HOST.
const EnvPrefix = "LISTQ"

var defineFlagsOnce sync.Once

// Load reads configuration with the following precedence:
//  1. Command line flags
//  2. Environment variables (LISTQ_*)
//  3. Config file (listquery.yaml)
//  4. Default values
//
// Secrets read from files or an interactive prompt are applied on top.
func Load() (*Config, error) {
	defineFlagsOnce.Do(func() { defineFlags(pflag.CommandLine) })
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return load(pflag.CommandLine)
}

func load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("listquery")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/listquery/")
		v.AddConfigPath("$HOME/.listquery")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(fs, v)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}
	if err := applySecretFiles(v); err != nil {
		return nil, err
	}
	if err := applyMyCnf(fs, v); err != nil {
		return nil, err
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetInt("database.port") == 0 {
		v.Set("database.port", defaultPort(v.GetString("database.driver")))
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	name, _, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database name: %w", err)
	}
	cfg.Database.Database = name
	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToStringSliceHookFunc(","),
	)
}

func defaultPort(driver string) int {
	switch driver {
	case DriverPostgres, DriverPgx:
		return 5432
	default:
		return 3306
	}
}

// secretFiles maps a value key to the key naming a file that holds it.
var secretFiles = []struct{ value, file, label string }{
	{"database.dsn", "database.dsn_file", "database DSN"},
	{"database.password", "database.password_file", "database password"},
	{"server.auth.jwt_secret", "server.auth.jwt_secret_file", "jwt secret"},
	{"server.admin.auth_token", "server.admin.auth_token_file", "admin auth token"},
}

func applySecretFiles(v *viper.Viper) error {
	for _, s := range secretFiles {
		path := v.GetString(s.file)
		if v.GetString(s.value) != "" || path == "" {
			continue
		}
		secret, err := readSecretFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s file: %w", s.label, err)
		}
		if secret == "" {
			return fmt.Errorf("%s file %q is empty", s.label, path)
		}
		v.Set(s.value, secret)
	}
	return nil
}

func applyMyCnf(fs *pflag.FlagSet, v *viper.Viper) error {
	path := strings.TrimSpace(v.GetString("database.mycnf_file"))
	if path == "" {
		return nil
	}
	settings, err := parseMyCnfFile(path)
	if err != nil {
		return fmt.Errorf("failed to load database my.cnf file: %w", err)
	}
	set := func(key string, value any, ok bool) {
		if ok {
			v.Set(key, value)
		}
	}
	set("database.host", settings.Host, settings.Host != "")
	set("database.port", settings.Port, settings.HasPort)
	set("database.user", settings.User, settings.User != "")
	set("database.password", settings.Password, settings.Password != "")
	set("database.tls.mode", settings.TLSMode, settings.TLSMode != "")
	set("database.database", settings.Database, settings.HasDBName && !databaseNameExplicitlyConfigured(fs, v))
	return nil
}

func bindChangedFlagsToViper(fs *pflag.FlagSet, v *viper.Viper) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}
		switch f.Value.Type() {
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// defineFlags registers flags under the canonical dotted snake_case keys.
func defineFlags(fs *pflag.FlagSet) {
	fs.String("database.driver", "", "Database driver (mysql, postgres, pgx)")
	fs.String("database.dsn", "", "Complete driver DSN")
	fs.String("database.dsn_file", "", "Path to file containing the DSN (use @- for stdin)")
	fs.String("database.mycnf_file", "", "Path to MySQL defaults file (.my.cnf format)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing the database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for the database password")
	fs.String("database.database", "", "Database name")
	fs.String("database.schema", "", "PostgreSQL schema to introspect (default public)")
	fs.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("database.tls.ca_file", "", "Path to CA certificate for server verification")
	fs.String("database.tls.cert_file", "", "Path to client certificate for mTLS")
	fs.String("database.tls.key_file", "", "Path to client private key for mTLS")
	fs.String("database.tls.server_name", "", "Override TLS server name for verification")
	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m)")
	fs.Duration("database.connection_timeout", 0, "Max time to wait for the database on startup (0 = fail immediately)")
	fs.Duration("database.connection_retry_interval", 0, "Initial interval between connection retries")

	fs.Int("server.port", 0, "HTTP server port")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "Graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Health check timeout")
	fs.Bool("server.cors.enabled", false, "Enable CORS")
	fs.StringSlice("server.cors.allowed_origins", nil, "Allowed CORS origins")
	fs.Bool("server.rate_limit.enabled", false, "Enable rate limiting")
	fs.Float64("server.rate_limit.rps", 0, "Rate limit requests per second")
	fs.Int("server.rate_limit.burst", 0, "Rate limit burst size")
	fs.Bool("server.rate_limit.per_client", false, "Keep one bucket per client IP")
	fs.Bool("server.auth.oidc_enabled", false, "Enable OIDC bearer authentication")
	fs.String("server.auth.oidc_issuer_url", "", "OIDC issuer URL")
	fs.String("server.auth.oidc_audience", "", "Expected token audience")
	fs.String("server.auth.oidc_ca_file", "", "CA bundle for reaching the OIDC issuer")
	fs.Bool("server.auth.jwt_enabled", false, "Enable HMAC JWT bearer authentication")
	fs.String("server.auth.jwt_secret_file", "", "Path to file containing the JWT secret")
	fs.String("server.auth.role_claim", "", "Token claim naming the caller's role")
	fs.Bool("server.auth.db_role_enabled", false, "Run queries under SET ROLE <caller role>")
	fs.Bool("server.admin.schema_reload_enabled", false, "Enable POST /admin/schema/reload")
	fs.String("server.admin.auth_token_file", "", "Path to file containing the admin token (use @- for stdin)")
	fs.String("server.tls_mode", "", "TLS mode: off, auto (self-signed), file")
	fs.String("server.tls_cert_file", "", "TLS certificate file (file mode)")
	fs.String("server.tls_key_file", "", "TLS private key file (file mode)")

	fs.Int("query.default_limit", 0, "Limit applied when a request sets none")
	fs.Int("query.max_limit", 0, "Upper bound on any rendered LIMIT (0 = unbounded)")
	fs.Duration("query.timeout", 0, "Database timeout per list request")

	fs.String("schema.source", "", "Schema source (database, file)")
	fs.String("schema.file", "", "YAML schema file for the file source")
	fs.Duration("schema.refresh_min_interval", 0, "Minimum interval between schema rebuilds (0 = never)")
	fs.Duration("schema.refresh_max_interval", 0, "Maximum interval between schema rebuilds")

	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.environment", "", "Environment name")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics")
	fs.Bool("observability.tracing_enabled", false, "Enable tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")
	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Export logs over OTLP")
	fs.String("observability.otlp.endpoint", "", "OTLP endpoint")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use a plaintext OTLP connection")

	fs.StringP("config", "c", "", "Config file path")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", DriverMySQL)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.mycnf_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.user", "listquery")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")
	v.SetDefault("database.schema", "")
	v.SetDefault("database.tls.mode", "")
	v.SetDefault("database.tls.ca_file", "")
	v.SetDefault("database.tls.ca_file_env", "")
	v.SetDefault("database.tls.cert_file", "")
	v.SetDefault("database.tls.cert_file_env", "")
	v.SetDefault("database.tls.key_file", "")
	v.SetDefault("database.tls.key_file_env", "")
	v.SetDefault("database.tls.server_name", "")
	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 60*time.Second)
	v.SetDefault("database.connection_retry_interval", 2*time.Second)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)
	v.SetDefault("server.cors.enabled", false)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.cors.allowed_methods", []string{"GET", "OPTIONS"})
	v.SetDefault("server.cors.allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors.expose_headers", []string{"X-Request-ID"})
	v.SetDefault("server.cors.allow_credentials", false)
	v.SetDefault("server.cors.max_age", 86400)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.rate_limit.rps", 0.0)
	v.SetDefault("server.rate_limit.burst", 0)
	v.SetDefault("server.rate_limit.per_client", false)
	v.SetDefault("server.auth.oidc_enabled", false)
	v.SetDefault("server.auth.oidc_issuer_url", "")
	v.SetDefault("server.auth.oidc_audience", "")
	v.SetDefault("server.auth.oidc_clock_skew", 2*time.Minute)
	v.SetDefault("server.auth.oidc_ca_file", "")
	v.SetDefault("server.auth.jwt_enabled", false)
	v.SetDefault("server.auth.jwt_secret", "")
	v.SetDefault("server.auth.jwt_secret_file", "")
	v.SetDefault("server.auth.jwt_issuer", "")
	v.SetDefault("server.auth.jwt_audience", "")
	v.SetDefault("server.auth.jwt_clock_skew", 30*time.Second)
	v.SetDefault("server.auth.role_claim", "role")
	v.SetDefault("server.auth.db_role_enabled", false)
	v.SetDefault("server.auth.db_roles", []string{})
	v.SetDefault("server.admin.schema_reload_enabled", false)
	v.SetDefault("server.admin.auth_token", "")
	v.SetDefault("server.admin.auth_token_file", "")
	v.SetDefault("server.tls_mode", "off")
	v.SetDefault("server.tls_cert_file", "")
	v.SetDefault("server.tls_key_file", "")
	v.SetDefault("server.tls_auto_cert_dir", ".tls")

	v.SetDefault("query.default_limit", 50)
	v.SetDefault("query.max_limit", 1000)
	v.SetDefault("query.timeout", 10*time.Second)

	v.SetDefault("schema.source", "database")
	v.SetDefault("schema.file", "")
	v.SetDefault("schema.concurrency", 4)
	v.SetDefault("schema.refresh_min_interval", time.Duration(0))
	v.SetDefault("schema.refresh_max_interval", 5*time.Minute)
	v.SetDefault("schema.filters.allow_tables", []string{"*"})
	v.SetDefault("schema.filters.deny_tables", []string{})
	v.SetDefault("schema.filters.scan_views_enabled", false)
	v.SetDefault("schema.filters.allow_columns", map[string][]string{"*": {"*"}})
	v.SetDefault("schema.filters.deny_columns", map[string][]string{})
	v.SetDefault("schema.naming.plural_overrides", map[string]string{})
	v.SetDefault("schema.naming.singular_overrides", map[string]string{})

	v.SetDefault("restrictions.default", map[string]any{})
	v.SetDefault("restrictions.roles", map[string]any{})

	v.SetDefault("observability.service_name", "listquery")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)
	v.SetDefault("observability.sqlcommenter_enabled", true)
	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)
	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
	v.SetDefault("observability.otlp.retry_max_attempts", 3)
}

func promptPassword() (string, error) {
	fmt.Print("Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readRawFile(path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func readSecretFile(path string) (string, error) {
	raw, err := readRawFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// validateSingleStdinFileSource rejects configurations where more than one
// file-backed setting reads from stdin.
func validateSingleStdinFileSource(v *viper.Viper) error {
	keys := []string{"database.mycnf_file"}
	for _, s := range secretFiles {
		keys = append(keys, s.file)
	}

	var configured []string
	for _, key := range keys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}
	if len(configured) > 1 {
		return fmt.Errorf("multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "))
	}
	return nil
}

func parseMyCnfFile(path string) (myCnfSettings, error) {
	raw, err := readRawFile(path)
	if err != nil {
		return myCnfSettings{}, err
	}
	return parseMyCnf(raw)
}

func parseMyCnf(raw string) (myCnfSettings, error) {
	var settings myCnfSettings
	section := ""

	for i, line := range strings.Split(raw, "\n") {
		lineno := i + 1
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			section = strings.ToLower(strings.TrimSpace(line[1 : len(line)-1]))
			continue
		}

		key, value, ok := parseMyCnfKeyValue(line)
		if !ok {
			return myCnfSettings{}, fmt.Errorf("invalid my.cnf syntax on line %d", lineno)
		}
		key = strings.ToLower(key)

		if section == "mysql" && key == "database" && !settings.HasDBName {
			settings.Database, settings.HasDBName = value, true
			continue
		}
		if section != "client" {
			continue
		}
		switch key {
		case "host":
			settings.Host = value
		case "port":
			port, err := parsePort(value)
			if err != nil {
				return myCnfSettings{}, fmt.Errorf("invalid my.cnf port on line %d: %w", lineno, err)
			}
			settings.Port, settings.HasPort = port, true
		case "user":
			settings.User = value
		case "password":
			settings.Password = value
		case "database":
			settings.Database, settings.HasDBName = value, true
		case "ssl-mode":
			mode, err := mapMyCnfSSLMode(value)
			if err != nil {
				return myCnfSettings{}, fmt.Errorf("invalid my.cnf ssl-mode on line %d: %w", lineno, err)
			}
			settings.TLSMode = mode
		}
	}
	return settings, nil
}

func parseMyCnfKeyValue(line string) (string, string, bool) {
	if key, value, found := strings.Cut(line, "="); found {
		key = strings.TrimSpace(key)
		return key, stripOptionalQuotes(strings.TrimSpace(value)), key != ""
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[0], stripOptionalQuotes(strings.Join(parts[1:], " ")), true
}

func stripOptionalQuotes(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '\'' || first == '"') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d is out of valid range (1-65535)", port)
	}
	return port, nil
}

func mapMyCnfSSLMode(value string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "":
		return "", nil
	case "DISABLED":
		return "off", nil
	case "REQUIRED", "PREFERRED":
		return "skip-verify", nil
	case "VERIFY_CA":
		return "verify-ca", nil
	case "VERIFY_IDENTITY":
		return "verify-full", nil
	default:
		return "", fmt.Errorf("unsupported ssl-mode %q", value)
	}
}

func databaseNameExplicitlyConfigured(fs *pflag.FlagSet, v *viper.Viper) bool {
	if _, ok := os.LookupEnv(EnvPrefix + "_DATABASE_DATABASE"); ok {
		return true
	}
	if flag := fs.Lookup("database.database"); flag != nil && flag.Changed {
		return true
	}
	return v.InConfig("database.database")
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}
		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}
		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
