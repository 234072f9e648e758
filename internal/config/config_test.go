package config

import (
	"strings"
	"testing"
	"time"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) string { return vars[key] }
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Upload.MaxConcurrent != 1 {
		t.Errorf("Upload.MaxConcurrent = %d, want 1", cfg.Upload.MaxConcurrent)
	}
	if cfg.Upload.MaxFileSize != 10<<20 {
		t.Errorf("Upload.MaxFileSize = %d, want %d", cfg.Upload.MaxFileSize, 10<<20)
	}
	if cfg.Upload.Timeout != 5*time.Minute {
		t.Errorf("Upload.Timeout = %v, want 5m", cfg.Upload.Timeout)
	}
	if cfg.Security.SessionTTL != 12*time.Hour {
		t.Errorf("Security.SessionTTL = %v, want 12h", cfg.Security.SessionTTL)
	}
	if !cfg.Security.CookieSecure {
		t.Error("Security.CookieSecure should default to true")
	}
	if cfg.Import.EmailDomain != "school.edu" || !cfg.Import.PredictablePasswords {
		t.Errorf("Import = %+v", cfg.Import)
	}
	if !cfg.Database.AutoMigrate {
		t.Error("Database.AutoMigrate should default to true")
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL":                 "sqlite://portal.db",
		"SERVER_PORT":                  "9090",
		"UPLOAD_MAX_CONCURRENT":        "3",
		"IMPORT_PREDICTABLE_PASSWORDS": "false",
		"LOG_FORMAT":                   "json",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Upload.MaxConcurrent != 3 {
		t.Errorf("Upload.MaxConcurrent = %d, want 3", cfg.Upload.MaxConcurrent)
	}
	if cfg.Import.PredictablePasswords {
		t.Error("Import.PredictablePasswords should be false")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_AlternateEnvVars(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DB_URL": "postgres://alt/test",
		"PORT":   "3000",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Database.URL != "postgres://alt/test" {
		t.Errorf("Database.URL = %q, want DB_URL value", cfg.Database.URL)
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want 3000", cfg.Server.Port)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	_, err := LoadFrom(env(nil))
	if err == nil {
		t.Fatal("LoadFrom() should fail without DATABASE_URL")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %v, want it to name DATABASE_URL", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad integer", "SERVER_PORT", "eighty"},
		{"bad duration", "UPLOAD_TIMEOUT", "5 minutes"},
		{"bad boolean", "RATE_LIMIT_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(env(map[string]string{
				"DATABASE_URL": "postgres://localhost/test",
				tt.key:         tt.val,
			}))
			if err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Errorf("LoadFrom() error = %v, want it to name %s", err, tt.key)
			}
		})
	}
}

func TestLoad_ReportsEveryBadValue(t *testing.T) {
	_, err := LoadFrom(env(map[string]string{
		"SERVER_PORT":    "eighty",
		"UPLOAD_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatal("LoadFrom() expected error")
	}
	for _, want := range []string{"DATABASE_URL", "SERVER_PORT", "UPLOAD_TIMEOUT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		"DATABASE_URL":    "postgres://localhost/test",
		"TRUSTED_PROXIES": "10.0.0.0/8, 192.168.0.0/16,,",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	want := []string{"10.0.0.0/8", "192.168.0.0/16"}
	if len(cfg.Security.TrustedProxies) != len(want) {
		t.Fatalf("TrustedProxies = %v, want %v", cfg.Security.TrustedProxies, want)
	}
	for i := range want {
		if cfg.Security.TrustedProxies[i] != want[i] {
			t.Errorf("TrustedProxies[%d] = %q, want %q", i, cfg.Security.TrustedProxies[i], want[i])
		}
	}
}

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: time.Second},
		Database: DatabaseConfig{URL: "postgres://x", MaxConns: 10, MinConns: 2},
		Upload:   UploadConfig{MaxFileSize: 1, MaxConcurrent: 1, MaxWaitTime: time.Second, Timeout: time.Second},
		Rate:     RateLimitConfig{Enabled: true, RequestsPerMinute: 100, LoginLimit: 20},
		Security: SecurityConfig{BcryptCost: 10, SessionTTL: time.Hour},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Import:   ImportConfig{EmailDomain: "school.edu"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: "SERVER_PORT"},
		{name: "min conns above max", mutate: func(c *Config) { c.Database.MinConns = 20 }, wantErr: "DB_MAX_CONNS (10) must be >= DB_MIN_CONNS (20)"},
		{name: "zero upload slots", mutate: func(c *Config) { c.Upload.MaxConcurrent = 0 }, wantErr: "UPLOAD_MAX_CONCURRENT"},
		{name: "bcrypt cost too low", mutate: func(c *Config) { c.Security.BcryptCost = 2 }, wantErr: "BCRYPT_COST"},
		{name: "email domain with at sign", mutate: func(c *Config) { c.Import.EmailDomain = "a@b.edu" }, wantErr: "IMPORT_EMAIL_DOMAIN"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: "LOG_LEVEL"},
		{name: "rate limit disabled skips check", mutate: func(c *Config) { c.Rate.Enabled = false; c.Rate.RequestsPerMinute = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	for _, want := range []string{"SERVER_PORT", "LOG_FORMAT"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %s", err, want)
		}
	}
}

func TestValidateServer(t *testing.T) {
	cfg := validConfig()
	if err := cfg.ValidateServer(); err == nil {
		t.Error("ValidateServer() should reject an empty secret")
	}
	cfg.Security.SessionSecret = strings.Repeat("k", MinSessionSecretLen)
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("ValidateServer() error = %v", err)
	}
}

func TestString_MasksSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.URL = "postgres://user:hunter2@db/portal"
	cfg.Security.SessionSecret = "super-secret-session-key-material"

	s := cfg.String()
	if strings.Contains(s, "hunter2") || strings.Contains(s, "super-secret") {
		t.Errorf("String() leaked a secret: %s", s)
	}
}

func TestServerAddr(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := c.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q", got)
	}
}
