package config

import (
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const (
	testPlatform = "0x00000000000000000000000000000000000000fe"
	testEscrow   = "0x00000000000000000000000000000000000000ff"
)

// validConfig returns defaults patched with the fields Validate requires.
func validConfig() Config {
	cfg := Defaults()
	cfg.Market.PlatformAccount = testPlatform
	cfg.Market.EscrowAccount = testEscrow
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Mode != "full" {
		t.Errorf("Mode = %q, want full", cfg.Mode)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Server.Port = %d, want 8000", cfg.Server.Port)
	}
	if got := cfg.Market.CommissionInt(); got == nil || got.Cmp(big.NewInt(0)) <= 0 {
		t.Errorf("default commission %q does not parse to a positive integer", cfg.Market.Commission)
	}
	if cfg.Archive.Interval.Duration != 24*time.Hour {
		t.Errorf("Archive.Interval = %v, want 24h", cfg.Archive.Interval.Duration)
	}
	if cfg.Archive.Enabled {
		t.Error("archive enabled by default")
	}
}

func TestValidate(t *testing.T) {
	t.Run("patched defaults pass", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("missing accounts fail", func(t *testing.T) {
		cfg := Defaults()
		err := cfg.Validate()
		if err == nil {
			t.Fatal("expected error for missing accounts")
		}
		if !strings.Contains(err.Error(), "platform_account") {
			t.Errorf("error does not mention platform_account: %v", err)
		}
		if !strings.Contains(err.Error(), "escrow_account") {
			t.Errorf("error does not mention escrow_account: %v", err)
		}
	})

	t.Run("rejects bad values", func(t *testing.T) {
		cases := []struct {
			name   string
			mutate func(*Config)
			want   string
		}{
			{"bad mode", func(c *Config) { c.Mode = "worker" }, "unknown mode"},
			{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "unknown log_level"},
			{"non-numeric commission", func(c *Config) { c.Market.Commission = "2.5%" }, "decimal integer"},
			{"negative commission", func(c *Config) { c.Market.Commission = "-1" }, "negative"},
			{"bad platform address", func(c *Config) { c.Market.PlatformAccount = "platform" }, "not a valid address"},
			{"keyfile without password", func(c *Config) { c.Signing.EncryptedKeyPath = "/etc/key.json" }, "key_password"},
			{"empty registry url", func(c *Config) { c.Registry.BaseURL = "" }, "registry"},
			{"bad postgres port", func(c *Config) { c.Postgres.Port = 0 }, "postgres: port"},
			{"pool min above max", func(c *Config) { c.Postgres.PoolMinConns = 99 }, "pool_min_conns"},
			{"empty redis addr", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
			{"bad server port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				cfg := validConfig()
				tc.mutate(&cfg)
				err := cfg.Validate()
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !strings.Contains(err.Error(), tc.want) {
					t.Errorf("error %v does not mention %q", err, tc.want)
				}
			})
		}
	})

	t.Run("s3 required only when archiving", func(t *testing.T) {
		cfg := validConfig()
		cfg.S3.Bucket = ""

		cfg.Mode = "serve"
		if err := cfg.Validate(); err != nil {
			t.Errorf("serve mode should not require s3: %v", err)
		}

		cfg.Mode = "archive"
		if err := cfg.Validate(); err == nil {
			t.Error("archive mode should require s3 bucket")
		}

		cfg.Mode = "full"
		cfg.Archive.Enabled = true
		if err := cfg.Validate(); err == nil {
			t.Error("full mode with archiving should require s3 bucket")
		}
	})

	t.Run("dsn bypasses host checks", func(t *testing.T) {
		cfg := validConfig()
		cfg.Postgres.DSN = "postgres://u:p@db:5432/marketd"
		cfg.Postgres.Host = ""
		cfg.Postgres.Port = 0
		cfg.Postgres.Database = ""
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate with DSN: %v", err)
		}
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "serve"
log_level = "debug"

[market]
commission = "100"
platform_account = "` + testPlatform + `"
escrow_account = "` + testEscrow + `"

[server]
port = 9090

[archive]
interval = "30m"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Mode != "serve" {
			t.Errorf("Mode = %q, want serve", cfg.Mode)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
		}
		if cfg.Archive.Interval.Duration != 30*time.Minute {
			t.Errorf("Archive.Interval = %v, want 30m", cfg.Archive.Interval.Duration)
		}
		// Untouched sections keep their defaults.
		if cfg.Redis.Addr != "localhost:6379" {
			t.Errorf("Redis.Addr = %q, want default", cfg.Redis.Addr)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("loaded config should validate: %v", err)
		}
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("MARKETD_SERVER_PORT", "7070")
		t.Setenv("MARKETD_MARKET_COMMISSION", "250")
		t.Setenv("MARKETD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
		}
		if cfg.Market.Commission != "250" {
			t.Errorf("Commission = %q, want 250", cfg.Market.Commission)
		}
		want := []string{"https://a.example", "https://b.example"}
		if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
			t.Errorf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "nope.toml")); err == nil {
			t.Error("expected error for missing file")
		}
	})
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Signing.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.Password = "hunter2"
	cfg.S3.SecretKey = "hunter2"
	cfg.Server.ApiKey = "hunter2"
	cfg.Registry.ApiKey = "hunter2"

	red := RedactedConfig(&cfg)

	for name, got := range map[string]string{
		"signing private key": red.Signing.PrivateKey,
		"postgres password":   red.Postgres.Password,
		"redis password":      red.Redis.Password,
		"s3 secret key":       red.S3.SecretKey,
		"server api key":      red.Server.ApiKey,
		"registry api key":    red.Registry.ApiKey,
	} {
		if got == "hunter2" || got == "deadbeef" {
			t.Errorf("%s not redacted", name)
		}
	}

	// Redaction must not touch the original.
	if cfg.Postgres.Password != "hunter2" {
		t.Error("Redacted mutated the source config")
	}
}
