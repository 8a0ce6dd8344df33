package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv blanks every variable Load consults so a test starts from
// the built-in defaults regardless of the host environment.
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRADELAB_CONFIG", "TRADELAB_ENV", "LOG_LEVEL", "TRADELAB_PORT",
		"DEV_MODE", "VENUE_COMP_ID", "VENUE_CALENDAR",
		"VENUE_SETTLEMENT_CYCLE", "VENUE_KEY_PREFIX", "LEDGER_PRECISION",
		"LEDGER_TOLERANCE", "AI_PROVIDER", "AI_MODEL", "AI_BASE_URL",
		"AI_API_KEY", "REST_BASE_URL", "OAUTH2_TOKEN_URL",
		"OAUTH2_CLIENT_ID", "OAUTH2_CLIENT_SECRET", "CI", "GITHUB_ACTIONS",
	} {
		t.Setenv(key, "")
	}
	// Point at a file that does not exist so a tradelab.yml in the working
	// directory cannot leak into the test.
	t.Setenv("TRADELAB_CONFIG", filepath.Join(t.TempDir(), "absent.yml"))
	t.Setenv("VENUE_INITIATOR_COMP_ID", "")
}

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvLocal, cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, "TRADELAB", cfg.Venue.CompID)
	assert.Equal(t, "HARNESS", cfg.Venue.InitiatorCompID)
	assert.Equal(t, "NYSE", cfg.Venue.Calendar)
	assert.Equal(t, "T2", cfg.Venue.SettlementCycle)
	assert.Equal(t, 8, cfg.Ledger.AmountPrecision)
	assert.InDelta(t, 0.0001, cfg.Ledger.Tolerance, 1e-12)
	assert.Equal(t, "ollama", cfg.AI.Provider)
}

func TestLoadFromFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("TL_TEST_SECRET", "hunter2")

	yml := `
tradelab:
  environment: staging
  logLevel: debug
  server:
    port: 9090
    devMode: true
  venue:
    compId: SYNTH-VENUE
    initiatorCompId: SYNTH-CLIENT
    calendar: LSE
    settlementCycle: T1
    keyPrefix: SYN
  ledger:
    amountPrecision: 6
    defaultTolerance: 0.01
  ai:
    provider: openai
    model: gpt-4o-mini
    baseUrl: https://api.example.com
    apiKey: ${TL_TEST_SECRET}
  rest:
    baseUrl: https://venue.example.com
    oauth2:
      tokenUrl: https://auth.example.com/token
      clientId: harness
      clientSecret: ${TL_TEST_SECRET}
`
	path := filepath.Join(t.TempDir(), "tradelab.yml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("TRADELAB_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvStaging, cfg.Environment)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, "SYNTH-VENUE", cfg.Venue.CompID)
	assert.Equal(t, "SYNTH-CLIENT", cfg.Venue.InitiatorCompID)
	assert.Equal(t, "LSE", cfg.Venue.Calendar)
	assert.Equal(t, "T1", cfg.Venue.SettlementCycle)
	assert.Equal(t, "SYN", cfg.Venue.KeyPrefix)
	assert.Equal(t, 6, cfg.Ledger.AmountPrecision)
	assert.InDelta(t, 0.01, cfg.Ledger.Tolerance, 1e-12)
	assert.Equal(t, "hunter2", cfg.AI.APIKey)
	assert.Equal(t, "hunter2", cfg.Rest.OAuth2.ClientSecret)
}

func TestEnvOverridesFile(t *testing.T) {
	clearConfigEnv(t)

	yml := `
tradelab:
  logLevel: debug
  server:
    port: 9090
`
	path := filepath.Join(t.TempDir(), "tradelab.yml")
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))
	t.Setenv("TRADELAB_CONFIG", path)
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("TRADELAB_PORT", "7070")
	t.Setenv("TRADELAB_ENV", "staging")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, EnvStaging, cfg.Environment)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	clearConfigEnv(t)

	path := filepath.Join(t.TempDir(), "tradelab.yml")
	require.NoError(t, os.WriteFile(path, []byte("tradelab: [not: a: map"), 0o644))
	t.Setenv("TRADELAB_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults pass", func(c *Config) {}, true},
		{"zero port", func(c *Config) { c.Port = 0 }, false},
		{"port too large", func(c *Config) { c.Port = 70000 }, false},
		{"zero precision", func(c *Config) { c.Ledger.AmountPrecision = 0 }, false},
		{"negative tolerance", func(c *Config) { c.Ledger.Tolerance = -1 }, false},
		{"unknown provider", func(c *Config) { c.AI.Provider = "skynet" }, false},
		{"no provider", func(c *Config) { c.AI.Provider = "" }, true},
		{"bad settlement cycle", func(c *Config) { c.Venue.SettlementCycle = "T9" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TL_EXPAND_A", "alpha")
	t.Setenv("TL_EXPAND_B", "beta")

	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"${TL_EXPAND_A}", "alpha"},
		{"x-${TL_EXPAND_A}-${TL_EXPAND_B}", "x-alpha-beta"},
		{"${TL_EXPAND_MISSING}", ""},
		{"${not valid}", "${not valid}"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, expandEnv(tt.in), "input %q", tt.in)
	}
}

func TestModelAllowed(t *testing.T) {
	cfg := defaults()

	cfg.Environment = EnvLocal
	assert.True(t, cfg.ModelAllowed())

	cfg.Environment = EnvCI
	assert.False(t, cfg.ModelAllowed())

	cfg.Environment = EnvLocal
	cfg.AI.Provider = ""
	assert.False(t, cfg.ModelAllowed())
}

func TestSettlementCycleParsed(t *testing.T) {
	cfg := defaults()
	assert.Equal(t, 2, cfg.SettlementCycle().Days())

	cfg.Venue.SettlementCycle = "T+0"
	assert.Equal(t, 0, cfg.SettlementCycle().Days())
}
