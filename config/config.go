package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/polysim/internal/domain"
)

// Config is the full simulator configuration. Values are validated at
// startup and immutable for the process lifetime.
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	Risk    RiskConfig    `yaml:"risk"`
	API     APIConfig     `yaml:"api"`
	Export  ExportConfig  `yaml:"export"`
	Log     LogConfig     `yaml:"log"`
}

// TradingConfig controls the cycle loop cadence.
type TradingConfig struct {
	CycleIntervalSeconds  int `yaml:"cycle_interval_seconds"`
	ReportIntervalSeconds int `yaml:"report_interval_seconds"`
	FetchTimeoutSeconds   int `yaml:"fetch_timeout_seconds"`
	OracleTimeoutSeconds  int `yaml:"oracle_timeout_seconds"`
}

// RiskConfig holds the portfolio limits enforced on every admission.
type RiskConfig struct {
	PortfolioSizeUSD       float64 `yaml:"portfolio_size_usd"`
	MaxPositionSizeUSD     float64 `yaml:"max_position_size_usd"`
	DailyLossLimitUSD      float64 `yaml:"daily_loss_limit_usd"`
	MaxOpenPositions       int     `yaml:"max_open_positions"`
	MinConfidenceThreshold int     `yaml:"min_confidence_threshold"`
}

// APIConfig contains the external endpoints and credentials. Keys come
// from the environment only, never from YAML.
type APIConfig struct {
	DataBase       string `yaml:"data_base"`
	BitqueryBase   string `yaml:"bitquery_base"`
	BitqueryAPIKey string `yaml:"-"`
	OpenAIBase     string `yaml:"openai_base"`
	OpenAIAPIKey   string `yaml:"-"`
	OpenAIModel    string `yaml:"openai_model"`
}

// ExportConfig controls where the record streams are written.
type ExportConfig struct {
	Format string `yaml:"format"` // sqlite | xlsx
	DSN    string `yaml:"dsn"`    // SQLite file path, or ":memory:"
	Dir    string `yaml:"dir"`    // XLSX output directory
}

// LogConfig controls the log format and level.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML file and the .env file if present. Environment
// variables override YAML for the keys they cover.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// CycleInterval returns the trading cycle interval as a Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Trading.CycleIntervalSeconds) * time.Second
}

// ReportInterval returns the PnL report cadence as a Duration.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Trading.ReportIntervalSeconds) * time.Second
}

// FetchTimeout bounds one data feed call.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Trading.FetchTimeoutSeconds) * time.Second
}

// OracleTimeout bounds one decision-maker call.
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Trading.OracleTimeoutSeconds) * time.Second
}

// RiskLimits maps the risk section to the ledger's limit set.
func (c *Config) RiskLimits() domain.RiskLimits {
	return domain.RiskLimits{
		PortfolioSizeUSD:   c.Risk.PortfolioSizeUSD,
		MaxPositionSizeUSD: c.Risk.MaxPositionSizeUSD,
		DailyLossLimitUSD:  c.Risk.DailyLossLimitUSD,
		MaxOpenPositions:   c.Risk.MaxOpenPositions,
		MinConfidence:      c.Risk.MinConfidenceThreshold,
	}
}

// Validate rejects configurations the risk policy cannot run with.
func (c *Config) Validate() error {
	r := c.Risk
	if r.PortfolioSizeUSD <= 0 {
		return fmt.Errorf("portfolio_size_usd must be positive, got %v", r.PortfolioSizeUSD)
	}
	if r.MaxPositionSizeUSD <= 0 {
		return fmt.Errorf("max_position_size_usd must be positive, got %v", r.MaxPositionSizeUSD)
	}
	if r.MaxPositionSizeUSD > r.PortfolioSizeUSD {
		return fmt.Errorf("max_position_size_usd %v exceeds portfolio_size_usd %v",
			r.MaxPositionSizeUSD, r.PortfolioSizeUSD)
	}
	if r.DailyLossLimitUSD <= 0 {
		return fmt.Errorf("daily_loss_limit_usd must be positive, got %v", r.DailyLossLimitUSD)
	}
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("max_open_positions must be positive, got %d", r.MaxOpenPositions)
	}
	if r.MinConfidenceThreshold < 0 || r.MinConfidenceThreshold > 100 {
		return fmt.Errorf("min_confidence_threshold must be in [0,100], got %d", r.MinConfidenceThreshold)
	}
	if f := c.Export.Format; f != "sqlite" && f != "xlsx" {
		return fmt.Errorf("export format must be sqlite or xlsx, got %q", f)
	}
	return nil
}

// applyEnvOverrides overrides config values with environment variables
// where present. The risk limit variable names match the original
// deployment surface.
func applyEnvOverrides(cfg *Config) {
	envFloat("PORTFOLIO_SIZE_USD", &cfg.Risk.PortfolioSizeUSD)
	envFloat("MAX_POSITION_SIZE_USD", &cfg.Risk.MaxPositionSizeUSD)
	envFloat("DAILY_LOSS_LIMIT_USD", &cfg.Risk.DailyLossLimitUSD)
	envInt("MAX_OPEN_POSITIONS", &cfg.Risk.MaxOpenPositions)
	envInt("MIN_CONFIDENCE_THRESHOLD", &cfg.Risk.MinConfidenceThreshold)
	envInt("CYCLE_INTERVAL_SECONDS", &cfg.Trading.CycleIntervalSeconds)
	envInt("REPORT_INTERVAL_SECONDS", &cfg.Trading.ReportIntervalSeconds)

	cfg.API.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.API.BitqueryAPIKey = os.Getenv("BITQUERY_API_KEY")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults fills required values with sensible defaults.
func setDefaults(cfg *Config) {
	if cfg.Trading.CycleIntervalSeconds <= 0 {
		cfg.Trading.CycleIntervalSeconds = 60
	}
	if cfg.Trading.ReportIntervalSeconds <= 0 {
		cfg.Trading.ReportIntervalSeconds = 300
	}
	if cfg.Trading.FetchTimeoutSeconds <= 0 {
		cfg.Trading.FetchTimeoutSeconds = 15
	}
	if cfg.Trading.OracleTimeoutSeconds <= 0 {
		cfg.Trading.OracleTimeoutSeconds = 60
	}
	if cfg.Risk.PortfolioSizeUSD <= 0 {
		cfg.Risk.PortfolioSizeUSD = 10
	}
	if cfg.Risk.MaxPositionSizeUSD <= 0 {
		cfg.Risk.MaxPositionSizeUSD = 1.5
	}
	if cfg.Risk.DailyLossLimitUSD <= 0 {
		cfg.Risk.DailyLossLimitUSD = 3
	}
	if cfg.Risk.MaxOpenPositions <= 0 {
		cfg.Risk.MaxOpenPositions = 2
	}
	if cfg.Risk.MinConfidenceThreshold <= 0 {
		cfg.Risk.MinConfidenceThreshold = 30
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.BitqueryBase == "" {
		cfg.API.BitqueryBase = "https://streaming.bitquery.io/graphql"
	}
	if cfg.API.OpenAIBase == "" {
		cfg.API.OpenAIBase = "https://api.openai.com/v1"
	}
	if cfg.API.OpenAIModel == "" {
		cfg.API.OpenAIModel = "gpt-4o"
	}
	if cfg.Export.Format == "" {
		cfg.Export.Format = "sqlite"
	}
	if cfg.Export.DSN == "" {
		cfg.Export.DSN = "polysim.db"
	}
	if cfg.Export.Dir == "" {
		cfg.Export.Dir = "logs"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
