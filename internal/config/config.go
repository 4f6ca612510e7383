// Package config loads service configuration from an optional YAML file and
// AYRENE_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "AYRENE_"

// Config is the fully resolved service configuration.
type Config struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	// TrustedProxies are the CIDRs or addresses allowed to set
	// X-Forwarded-For. Empty means the TCP peer is the client.
	TrustedProxies []string `yaml:"trusted_proxies"`

	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Auth     AuthConfig     `yaml:"auth"`
	CORS     CORSConfig     `yaml:"cors"`
	Admin    AdminSeed      `yaml:"admin"`
	Tracing  TracingConfig  `yaml:"tracing"`

	PolicyEnabled bool `yaml:"policy_enabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PostgresConfig holds the SQL store settings. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

type AuthConfig struct {
	JWTSecret       string   `yaml:"jwt_secret"`
	AssignableRoles []string `yaml:"assignable_roles"`
	DefaultRole     string   `yaml:"default_role"`
	LoginRateBurst  int      `yaml:"login_rate_burst"`
	LoginRatePerSec int      `yaml:"login_rate_per_sec"`
}

type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

// AdminSeed describes the account created when no admin exists yet.
type AdminSeed struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type TracingConfig struct {
	Endpoint string `yaml:"otlp_endpoint"`
	Insecure bool   `yaml:"otlp_insecure"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		HTTPAddr:        ":5000",
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		Log:             LogConfig{Level: "info", Format: "json"},
		Postgres: PostgresConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			AssignableRoles: []string{"admin", "staff", "user"},
			DefaultRole:     "staff",
			LoginRateBurst:  10,
			LoginRatePerSec: 5,
		},
		CORS: CORSConfig{
			Origins: []string{"http://localhost:3000", "https://ayrene.com", "https://www.ayrene.com"},
			Methods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			Headers: []string{"Content-Type", "Authorization", "Cache-Control", "Pragma", "Expires"},
		},
		Admin: AdminSeed{
			Name:     "Super Admin",
			Email:    "admin@ayrene.com",
			Password: "Admin@123",
		},
		PolicyEnabled: true,
	}
}

// Load builds the configuration from defaults, the file named by
// AYRENE_CONFIG_FILE (if any) and the environment.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(getenv(envPrefix + "CONFIG_FILE")); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	e := env{get: getenv}
	e.str("HTTP_ADDR", &cfg.HTTPAddr)
	e.str("GRPC_ADDR", &cfg.GRPCAddr)
	e.duration("SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout)
	e.int64("MAX_BODY_BYTES", &cfg.MaxBodyBytes)
	e.list("TRUSTED_PROXIES", &cfg.TrustedProxies)
	e.str("LOG_LEVEL", &cfg.Log.Level)
	e.str("LOG_FORMAT", &cfg.Log.Format)
	e.str("PG_DSN", &cfg.Postgres.DSN)
	e.int("PG_MAX_OPEN_CONNS", &cfg.Postgres.MaxOpenConns)
	e.int("PG_MAX_IDLE_CONNS", &cfg.Postgres.MaxIdleConns)
	e.duration("PG_CONN_MAX_LIFETIME", &cfg.Postgres.ConnMaxLifetime)
	e.bool("MIGRATE_ON_START", &cfg.Postgres.MigrateOnStart)
	e.str("JWT_SECRET", &cfg.Auth.JWTSecret)
	e.list("ASSIGNABLE_ROLES", &cfg.Auth.AssignableRoles)
	e.str("DEFAULT_ROLE", &cfg.Auth.DefaultRole)
	e.int("LOGIN_RATE_BURST", &cfg.Auth.LoginRateBurst)
	e.int("LOGIN_RATE_PER_SEC", &cfg.Auth.LoginRatePerSec)
	e.list("CORS_ORIGINS", &cfg.CORS.Origins)
	e.list("CORS_METHODS", &cfg.CORS.Methods)
	e.list("CORS_HEADERS", &cfg.CORS.Headers)
	e.str("ADMIN_NAME", &cfg.Admin.Name)
	e.str("ADMIN_EMAIL", &cfg.Admin.Email)
	e.str("ADMIN_PASSWORD", &cfg.Admin.Password)
	e.bool("POLICY_ENABLED", &cfg.PolicyEnabled)
	e.str("OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	e.bool("OTLP_INSECURE", &cfg.Tracing.Insecure)
	if e.err != nil {
		return nil, e.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports configuration that the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New(envPrefix+"JWT_SECRET is required"))
	}
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http address is empty"))
	}
	if c.Auth.DefaultRole != "" && !contains(c.Auth.AssignableRoles, c.Auth.DefaultRole) {
		errs = append(errs, fmt.Errorf("default role %q is not assignable", c.Auth.DefaultRole))
	}
	if c.Auth.LoginRateBurst <= 0 || c.Auth.LoginRatePerSec <= 0 {
		errs = append(errs, errors.New("login rate limit must be positive"))
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(p) {
			errs = append(errs, fmt.Errorf("trusted proxy %q is not an address or CIDR", p))
		}
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

func validProxy(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, err := netip.ParsePrefix(s)
		return err == nil
	}
	_, err := netip.ParseAddr(s)
	return err == nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// env applies AYRENE_* overrides, remembering the first parse error.
type env struct {
	get func(string) string
	err error
}

func (e *env) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.get(envPrefix + key))
	return v, v != ""
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
}

func (e *env) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *env) int(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *env) int64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = n
	}
}

func (e *env) bool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = b
	}
}

func (e *env) duration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(key, err)
			return
		}
		*dst = d
	}
}

func (e *env) list(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}
