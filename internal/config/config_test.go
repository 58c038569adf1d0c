package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  port: 9090
database:
  path: /tmp/test.db
twelvedata:
  api_key: td-key
assets:
  - symbol: SPY
    name: S&P 500 ETF
    class: equities
    market: US
    source: twelvedata
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want /tmp/test.db", cfg.Database.Path)
	}
	if len(cfg.Assets) != 1 || cfg.Assets[0].Symbol != "SPY" {
		t.Errorf("unexpected assets: %+v", cfg.Assets)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_TD_KEY", "secret123")

	yaml := `
twelvedata:
  api_key: ${TEST_TD_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.TwelveData.APIKey != "secret123" {
		t.Errorf("TwelveData.APIKey = %q, want secret123", cfg.TwelveData.APIKey)
	}
}

func TestLoadAndValidate_AppliesDefaults(t *testing.T) {
	path := writeTempFile(t, `
twelvedata:
  api_key: td-key
`)

	cfg, err := LoadAndValidate(path)
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.RateLimit.PerMinute != DefaultCreditsPerMinute {
		t.Errorf("RateLimit.PerMinute = %d, want default %d", cfg.RateLimit.PerMinute, DefaultCreditsPerMinute)
	}
	if cfg.RateLimit.InteractiveReserve != DefaultInteractiveReserve {
		t.Errorf("RateLimit.InteractiveReserve = %d, want default %d", cfg.RateLimit.InteractiveReserve, DefaultInteractiveReserve)
	}
	if cfg.Schedule.DailyAppend != DefaultDailyAppend {
		t.Errorf("Schedule.DailyAppend = %q, want default %q", cfg.Schedule.DailyAppend, DefaultDailyAppend)
	}
	if len(cfg.Assets) == 0 {
		t.Error("expected the default asset universe")
	}
	if _, ok := cfg.Markets["US"]; !ok {
		t.Error("expected default market hours for US")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("TWELVE_DATA_API_KEY", "env-td")
	t.Setenv("FRED_API_KEY", "env-fred")

	cfg := Default()
	if cfg.TwelveData.APIKey != "env-td" {
		t.Errorf("TwelveData.APIKey = %q, want env-td", cfg.TwelveData.APIKey)
	}
	if cfg.FRED.APIKey != "env-fred" {
		t.Errorf("FRED.APIKey = %q, want env-fred", cfg.FRED.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid defaults",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "reserve at limit",
			mutate:  func(c *Config) { c.RateLimit.InteractiveReserve = c.RateLimit.PerMinute },
			wantErr: "rate_limit.interactive_reserve (55) must be below per_minute (55)",
		},
		{
			name:    "bad schedule time",
			mutate:  func(c *Config) { c.Schedule.CloseSummary = "25:99" },
			wantErr: `schedule.close_summary: invalid HH:MM time "25:99"`,
		},
		{
			name:    "bad market hours",
			mutate:  func(c *Config) { c.Markets["US"] = MarketHours{Open: "nine", Close: "16:00"} },
			wantErr: `markets.US.open: invalid HH:MM time "nine"`,
		},
		{
			name:    "unknown asset source",
			mutate:  func(c *Config) { c.Assets[0].Source = "yahoo" },
			wantErr: `assets[0].source must be twelvedata or fred, got "yahoo"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error %q, got nil", tt.wantErr)
			}
			if err.Error() != tt.wantErr {
				t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSourceFor(t *testing.T) {
	cfg := Default()

	if got := cfg.SourceFor("DGS10"); got != "fred" {
		t.Errorf("SourceFor(DGS10) = %q, want fred", got)
	}
	if got := cfg.SourceFor("SPY"); got != "twelvedata" {
		t.Errorf("SourceFor(SPY) = %q, want twelvedata", got)
	}
	// Ad-hoc symbols outside the configured universe default to Twelve Data.
	if got := cfg.SourceFor("AAPL"); got != "twelvedata" {
		t.Errorf("SourceFor(AAPL) = %q, want twelvedata", got)
	}
}
