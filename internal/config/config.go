// Package config provides configuration management functionality.
//
// Settings come from three layers, later layers winning: built-in defaults,
// an optional tradelab.yml file, and environment variables. String values in
// the YAML file may reference environment variables as ${VAR_NAME}.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/tradelab/internal/calendar"
)

// Config holds the venue daemon configuration.
type Config struct {
	Environment Environment
	LogLevel    string
	Port        int
	DevMode     bool
	Venue       VenueConfig
	Ledger      LedgerConfig
	AI          AIConfig
	Rest        RestConfig
}

// VenueConfig describes the synthetic venue: the comp id it answers as, the
// comp id of the in-process initiator session, the market calendar it
// settles against, and the request-key prefix the data generator mints.
type VenueConfig struct {
	CompID          string
	InitiatorCompID string
	Calendar        string
	SettlementCycle string
	KeyPrefix       string
}

// LedgerConfig sets the reconciliation comparison parameters.
type LedgerConfig struct {
	AmountPrecision int
	Tolerance       float64
}

// AIConfig points the scenario translator at a model backend. An empty
// provider disables model calls entirely; an empty model or base URL leaves
// the provider's own defaults in force.
type AIConfig struct {
	Provider string // "ollama" or "openai"
	Model    string
	BaseURL  string
	APIKey   string
}

// RestConfig configures the outbound REST client side of the harness.
type RestConfig struct {
	BaseURL string
	OAuth2  OAuth2Config
}

// OAuth2Config holds client-credentials grant settings. An empty token URL
// means unauthenticated requests.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// Load reads configuration from the defaults, an optional YAML file and
// environment variables, in that order of precedence.
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := defaults()

	envName := ""
	path := getEnv("TRADELAB_CONFIG", "tradelab.yml")
	name, err := cfg.applyFile(path)
	if err != nil {
		return nil, err
	}
	if name != "" {
		envName = name
	}
	envName = getEnv("TRADELAB_ENV", envName)
	cfg.applyEnv()
	cfg.Environment = ResolveEnvironment(envName)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		LogLevel: "info",
		Port:     8080,
		DevMode:  false,
		Venue: VenueConfig{
			CompID:          "TRADELAB",
			InitiatorCompID: "HARNESS",
			Calendar:        "NYSE",
			SettlementCycle: "T2",
			KeyPrefix:       "TRADELAB",
		},
		Ledger: LedgerConfig{
			AmountPrecision: 8,
			Tolerance:       0.0001,
		},
		AI: AIConfig{
			// Model and BaseURL stay empty: each provider supplies its own
			// defaults when unset.
			Provider: "ollama",
		},
		Rest: RestConfig{
			BaseURL: "http://localhost:8080",
		},
	}
}

// fileConfig mirrors the tradelab.yml layout. All scalars are optional;
// absent keys leave the previous layer's value in place.
type fileConfig struct {
	Tradelab struct {
		Environment string `yaml:"environment"`
		LogLevel    string `yaml:"logLevel"`
		Server      struct {
			Port    int   `yaml:"port"`
			DevMode *bool `yaml:"devMode"`
		} `yaml:"server"`
		Venue struct {
			CompID          string `yaml:"compId"`
			InitiatorCompID string `yaml:"initiatorCompId"`
			Calendar        string `yaml:"calendar"`
			SettlementCycle string `yaml:"settlementCycle"`
			KeyPrefix       string `yaml:"keyPrefix"`
		} `yaml:"venue"`
		Ledger struct {
			AmountPrecision  int      `yaml:"amountPrecision"`
			DefaultTolerance *float64 `yaml:"defaultTolerance"`
		} `yaml:"ledger"`
		AI struct {
			Provider string `yaml:"provider"`
			Model    string `yaml:"model"`
			BaseURL  string `yaml:"baseUrl"`
			APIKey   string `yaml:"apiKey"`
		} `yaml:"ai"`
		Rest struct {
			BaseURL string `yaml:"baseUrl"`
			OAuth2  struct {
				TokenURL     string `yaml:"tokenUrl"`
				ClientID     string `yaml:"clientId"`
				ClientSecret string `yaml:"clientSecret"`
			} `yaml:"oauth2"`
		} `yaml:"rest"`
	} `yaml:"tradelab"`
}

// applyFile overlays the YAML file at path onto the config. A missing file
// is not an error; a malformed one is. It returns the environment name the
// file declares, if any.
func (c *Config) applyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	t := fc.Tradelab

	setString(&c.LogLevel, t.LogLevel)
	if t.Server.Port != 0 {
		c.Port = t.Server.Port
	}
	if t.Server.DevMode != nil {
		c.DevMode = *t.Server.DevMode
	}
	setString(&c.Venue.CompID, t.Venue.CompID)
	setString(&c.Venue.InitiatorCompID, t.Venue.InitiatorCompID)
	setString(&c.Venue.Calendar, t.Venue.Calendar)
	setString(&c.Venue.SettlementCycle, t.Venue.SettlementCycle)
	setString(&c.Venue.KeyPrefix, t.Venue.KeyPrefix)
	if t.Ledger.AmountPrecision != 0 {
		c.Ledger.AmountPrecision = t.Ledger.AmountPrecision
	}
	if t.Ledger.DefaultTolerance != nil {
		c.Ledger.Tolerance = *t.Ledger.DefaultTolerance
	}
	setString(&c.AI.Provider, t.AI.Provider)
	setString(&c.AI.Model, t.AI.Model)
	setString(&c.AI.BaseURL, t.AI.BaseURL)
	setString(&c.AI.APIKey, t.AI.APIKey)
	setString(&c.Rest.BaseURL, t.Rest.BaseURL)
	setString(&c.Rest.OAuth2.TokenURL, t.Rest.OAuth2.TokenURL)
	setString(&c.Rest.OAuth2.ClientID, t.Rest.OAuth2.ClientID)
	setString(&c.Rest.OAuth2.ClientSecret, t.Rest.OAuth2.ClientSecret)

	return expandEnv(t.Environment), nil
}

// applyEnv overlays environment variables onto the config. Each variable
// falls back to the value the earlier layers produced.
func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Port = getEnvAsInt("TRADELAB_PORT", c.Port)
	c.DevMode = getEnvAsBool("DEV_MODE", c.DevMode)

	c.Venue.CompID = getEnv("VENUE_COMP_ID", c.Venue.CompID)
	c.Venue.InitiatorCompID = getEnv("VENUE_INITIATOR_COMP_ID", c.Venue.InitiatorCompID)
	c.Venue.Calendar = getEnv("VENUE_CALENDAR", c.Venue.Calendar)
	c.Venue.SettlementCycle = getEnv("VENUE_SETTLEMENT_CYCLE", c.Venue.SettlementCycle)
	c.Venue.KeyPrefix = getEnv("VENUE_KEY_PREFIX", c.Venue.KeyPrefix)

	c.Ledger.AmountPrecision = getEnvAsInt("LEDGER_PRECISION", c.Ledger.AmountPrecision)
	c.Ledger.Tolerance = getEnvAsFloat("LEDGER_TOLERANCE", c.Ledger.Tolerance)

	c.AI.Provider = getEnv("AI_PROVIDER", c.AI.Provider)
	c.AI.Model = getEnv("AI_MODEL", c.AI.Model)
	c.AI.BaseURL = getEnv("AI_BASE_URL", c.AI.BaseURL)
	c.AI.APIKey = getEnv("AI_API_KEY", c.AI.APIKey)

	c.Rest.BaseURL = getEnv("REST_BASE_URL", c.Rest.BaseURL)
	c.Rest.OAuth2.TokenURL = getEnv("OAUTH2_TOKEN_URL", c.Rest.OAuth2.TokenURL)
	c.Rest.OAuth2.ClientID = getEnv("OAUTH2_CLIENT_ID", c.Rest.OAuth2.ClientID)
	c.Rest.OAuth2.ClientSecret = getEnv("OAUTH2_CLIENT_SECRET", c.Rest.OAuth2.ClientSecret)
}

// Validate checks the loaded configuration for values no component can run
// with.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Ledger.AmountPrecision < 1 {
		return fmt.Errorf("invalid ledger precision %d", c.Ledger.AmountPrecision)
	}
	if c.Ledger.Tolerance < 0 {
		return fmt.Errorf("invalid ledger tolerance %g", c.Ledger.Tolerance)
	}
	switch c.AI.Provider {
	case "", "ollama", "openai":
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	if _, err := calendar.ParseSettlementCycle(c.Venue.SettlementCycle); err != nil {
		return fmt.Errorf("invalid settlement cycle: %w", err)
	}
	return nil
}

// SettlementCycle returns the parsed venue settlement cycle.
func (c *Config) SettlementCycle() calendar.SettlementCycle {
	cycle, err := calendar.ParseSettlementCycle(c.Venue.SettlementCycle)
	if err != nil {
		// Validate rejects unparseable cycles, so this is unreachable after
		// a successful Load.
		return calendar.T2
	}
	return cycle
}

// ModelAllowed reports whether the scenario translator may call a language
// model. CI runs stay deterministic regardless of the configured provider.
func (c *Config) ModelAllowed() bool {
	return c.AI.Provider != "" && !c.Environment.IsCI()
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv resolves ${VAR_NAME} placeholders against the environment.
// Unset variables expand to the empty string.
func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// setString assigns src to dst when src is non-empty, expanding ${VAR}
// placeholders on the way.
func setString(dst *string, src string) {
	if src != "" {
		*dst = expandEnv(src)
	}
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
