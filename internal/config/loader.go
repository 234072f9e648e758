package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// MinSessionSecretLen is the shortest accepted SESSION_SECRET.
const MinSessionSecretLen = 32

// LookupFunc returns the value of an environment variable.
type LookupFunc func(key string) string

// Load reads configuration from environment variables, applies defaults and
// validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := populate(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envTag is the parsed form of a field's env, envAlt, default and required tags.
type envTag struct {
	name     string
	alt      string
	fallback string
	required bool
}

func parseTag(f reflect.StructField) (envTag, bool) {
	name := f.Tag.Get("env")
	if name == "" {
		return envTag{}, false
	}
	return envTag{
		name:     name,
		alt:      f.Tag.Get("envAlt"),
		fallback: f.Tag.Get("default"),
		required: f.Tag.Get("required") == "true",
	}, true
}

// resolve returns the raw value for the tag. ok is false when nothing, not
// even a default, is available.
func (e envTag) resolve(lookup LookupFunc) (value string, ok bool, err error) {
	for _, key := range []string{e.name, e.alt} {
		if key == "" {
			continue
		}
		if v := lookup(key); v != "" {
			return v, true, nil
		}
	}
	if e.required {
		return "", false, fmt.Errorf("required environment variable %s is not set", e.name)
	}
	return e.fallback, e.fallback != "", nil
}

// populate walks nested section structs and fills every tagged field. All
// failures are reported together.
func populate(v reflect.Value, lookup LookupFunc) error {
	var errs []error
	t := v.Type()

	for i := range t.NumField() {
		field, dst := t.Field(i), v.Field(i)
		if !dst.CanSet() {
			continue
		}
		if field.Type.Kind() == reflect.Struct {
			if err := populate(dst, lookup); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		tag, tagged := parseTag(field)
		if !tagged {
			continue
		}
		raw, ok, err := tag.resolve(lookup)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		if err := assign(dst, raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", tag.name, raw, err))
		}
	}
	return errors.Join(errs...)
}

var durationType = reflect.TypeFor[time.Duration]()

// assign parses raw into dst according to dst's type.
func assign(dst reflect.Value, raw string) error {
	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, dst.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		dst.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		dst.SetBool(b)
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", dst.Type().Elem().Kind())
		}
		dst.Set(reflect.ValueOf(splitList(raw)))
	default:
		return fmt.Errorf("unsupported field type: %s", dst.Kind())
	}
	return nil
}

// splitList splits a comma separated value, dropping blank entries.
func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// problems accumulates validation failures.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

func oneOf(v string, allowed ...string) bool {
	v = strings.ToLower(v)
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate checks settings shared by the server and the CLI and reports every
// failure at once.
func (c *Config) Validate() error {
	var p problems

	db := c.Database
	p.check(db.URL != "", "DATABASE_URL is required")
	p.check(db.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(db.MinConns >= 0, "DB_MIN_CONNS must be non-negative")
	p.check(db.MaxConns >= db.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", db.MaxConns, db.MinConns)

	srv := c.Server
	p.check(srv.Port > 0 && srv.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", srv.Port)
	p.check(srv.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(srv.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")

	up := c.Upload
	p.check(up.MaxFileSize > 0, "UPLOAD_MAX_FILE_SIZE must be positive")
	p.check(up.MaxConcurrent > 0, "UPLOAD_MAX_CONCURRENT must be positive")
	p.check(up.MaxWaitTime > 0, "UPLOAD_MAX_WAIT_TIME must be positive")
	p.check(up.Timeout > 0, "UPLOAD_TIMEOUT must be positive")

	if c.Rate.Enabled {
		p.check(c.Rate.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		p.check(c.Rate.LoginLimit > 0, "RATE_LIMIT_LOGIN must be positive when rate limiting is enabled")
	}

	sec := c.Security
	p.check(sec.BcryptCost >= 4 && sec.BcryptCost <= 31, "BCRYPT_COST (%d) must be 4-31", sec.BcryptCost)
	p.check(sec.SessionTTL > 0, "SESSION_TTL must be positive")

	domain := c.Import.EmailDomain
	p.check(strings.TrimSpace(domain) != "" && !strings.Contains(domain, "@"),
		"IMPORT_EMAIL_DOMAIN (%q) must be a bare domain", domain)

	p.check(oneOf(c.Logging.Level, "debug", "info", "warn", "error"),
		"LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	p.check(oneOf(c.Logging.Format, "text", "json"),
		"LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if len(c.Security.SessionSecret) < MinSessionSecretLen {
		return fmt.Errorf("SESSION_SECRET must be at least %d bytes", MinSessionSecretLen)
	}
	return nil
}

// String renders the config for logging with the database URL and session
// secret masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: {Host: %q, Port: %d}, "+
		"Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, "+
		"Upload: {MaxFileSize: %d, MaxConcurrent: %d}, "+
		"Rate: {Enabled: %v, RequestsPerMinute: %d}, "+
		"Security: {SessionSecret: [MASKED], SessionTTL: %s}, "+
		"Import: {EmailDomain: %q, PredictablePasswords: %v}, "+
		"Logging: {Level: %q, Format: %q}}",
		c.Server.Host, c.Server.Port,
		c.Database.MaxConns, c.Database.MinConns,
		c.Upload.MaxFileSize, c.Upload.MaxConcurrent,
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Security.SessionTTL,
		c.Import.EmailDomain, c.Import.PredictablePasswords,
		c.Logging.Level, c.Logging.Format)
}
