// Package config handles configuration loading for diligence.
// It supports YAML config files, a .env file and environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "DILIGENCE"

// Config represents the complete application configuration.
type Config struct {
	LLM          LLMConfig          `mapstructure:"llm"          yaml:"llm"`
	Providers    ProvidersConfig    `mapstructure:"providers"    yaml:"providers"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	Cache        CacheConfig        `mapstructure:"cache"        yaml:"cache"`
	Storage      StorageConfig      `mapstructure:"storage"      yaml:"storage"`
	Currency     CurrencyConfig     `mapstructure:"currency"     yaml:"currency"`
	API          APIConfig          `mapstructure:"api"          yaml:"api"`
	Logging      LoggingConfig      `mapstructure:"logging"      yaml:"logging"`
}

// LLMConfig holds generative backend configuration.
type LLMConfig struct {
	Primary      string   `mapstructure:"primary"       yaml:"primary"       validate:"omitempty,oneof=openai ollama gemini anthropic"`
	Fallbacks    []string `mapstructure:"fallbacks"     yaml:"fallbacks"     validate:"dive,oneof=openai ollama gemini anthropic"`
	OpenAIKey    string   `mapstructure:"openai_key"    yaml:"openai_key"`
	OpenAIURL    string   `mapstructure:"openai_url"    yaml:"openai_url"`
	OllamaURL    string   `mapstructure:"ollama_url"    yaml:"ollama_url"`
	GeminiKey    string   `mapstructure:"gemini_key"    yaml:"gemini_key"`
	AnthropicKey string   `mapstructure:"anthropic_key" yaml:"anthropic_key"`
	Model        string   `mapstructure:"model"         yaml:"model"`
	Temperature  float64  `mapstructure:"temperature"   yaml:"temperature"   validate:"gte=0,lte=2"`
	MaxTokens    int      `mapstructure:"max_tokens"    yaml:"max_tokens"    validate:"gt=0"`
	TimeoutSec   int      `mapstructure:"timeout_sec"   yaml:"timeout_sec"   validate:"gt=0"`
	Retries      int      `mapstructure:"retries"       yaml:"retries"       validate:"gte=0"`
}

// Timeout returns the generative call deadline.
func (c LLMConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// ProviderConfig holds the settings of one data provider.
type ProviderConfig struct {
	Enabled     bool   `mapstructure:"enabled"       yaml:"enabled"`
	APIKey      string `mapstructure:"api_key"       yaml:"api_key"`
	BaseURL     string `mapstructure:"base_url"      yaml:"base_url"      validate:"omitempty,url"`
	MaxRequests int    `mapstructure:"max_requests"  yaml:"max_requests"  validate:"gt=0"`
	WindowSec   int    `mapstructure:"window_sec"    yaml:"window_sec"    validate:"gt=0"`
	TimeoutSec  int    `mapstructure:"timeout_sec"   yaml:"timeout_sec"   validate:"gt=0"`
	Retries     int    `mapstructure:"retries"       yaml:"retries"       validate:"gte=0"`
	BaseDelayMs int    `mapstructure:"base_delay_ms" yaml:"base_delay_ms" validate:"gt=0"`
	MaxDelayMs  int    `mapstructure:"max_delay_ms"  yaml:"max_delay_ms"  validate:"gtefield=BaseDelayMs"`
}

// Window returns the rate-limit window.
func (c ProviderConfig) Window() time.Duration { return time.Duration(c.WindowSec) * time.Second }

// Timeout returns the per-fetch deadline.
func (c ProviderConfig) Timeout() time.Duration { return time.Duration(c.TimeoutSec) * time.Second }

// BaseDelay returns the first retry backoff.
func (c ProviderConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMs) * time.Millisecond
}

// MaxDelay returns the backoff cap.
func (c ProviderConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// ProvidersConfig holds per-provider settings.
type ProvidersConfig struct {
	Market  ProviderConfig `mapstructure:"market"  yaml:"market"`
	News    ProviderConfig `mapstructure:"news"    yaml:"news"`
	SEC     ProviderConfig `mapstructure:"sec"     yaml:"sec"`
	Network ProviderConfig `mapstructure:"network" yaml:"network"`
	Funding ProviderConfig `mapstructure:"funding" yaml:"funding"`
	Analyst ProviderConfig `mapstructure:"analyst" yaml:"analyst"`

	// SECUserAgent identifies the caller to EDGAR, which requires a contact.
	SECUserAgent string `mapstructure:"sec_user_agent" yaml:"sec_user_agent"`

	// SECTickersURL is the EDGAR CIK<->ticker mapping file.
	SECTickersURL string `mapstructure:"sec_tickers_url" yaml:"sec_tickers_url"`

	// NewsRSSURL is the feed template used when no news API key is set.
	NewsRSSURL string `mapstructure:"news_rss_url" yaml:"news_rss_url"`
}

// OrchestratorConfig holds fan-out settings.
type OrchestratorConfig struct {
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec" validate:"gt=0"`
}

// Timeout returns the overall aggregation budget.
func (c OrchestratorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// CacheConfig selects the provider-response cache backend.
type CacheConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend" validate:"oneof=memory badger"`
	Dir     string `mapstructure:"dir"     yaml:"dir"     validate:"required_if=Backend badger"`
	TTLSec  int    `mapstructure:"ttl_sec" yaml:"ttl_sec" validate:"gt=0"`
}

// TTL returns the default cache entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// StorageConfig selects where generated reports are persisted.
type StorageConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=memory badger sqlite postgres"`
	Dir    string `mapstructure:"dir"    yaml:"dir"`
	DSN    string `mapstructure:"dsn"    yaml:"dsn"    validate:"required_if=Driver postgres"`
}

// CurrencyConfig holds exchange-rate settings.
type CurrencyConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey  string `mapstructure:"api_key"  yaml:"api_key"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host              string   `mapstructure:"host"                yaml:"host"`
	Port              int      `mapstructure:"port"                yaml:"port"                validate:"gt=0,lte=65535"`
	CORSOrigins       []string `mapstructure:"cors_origins"        yaml:"cors_origins"`
	RateLimit         int      `mapstructure:"rate_limit"          yaml:"rate_limit"          validate:"gte=0"`
	RateWindowSec     int      `mapstructure:"rate_window_sec"     yaml:"rate_window_sec"     validate:"gt=0"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec" yaml:"request_timeout_sec" validate:"gt=0"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// RateWindow returns the inbound rate-limit window.
func (c APIConfig) RateWindow() time.Duration { return time.Duration(c.RateWindowSec) * time.Second }

// RequestTimeout returns the per-request handler deadline.
func (c APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.diligence/config.yaml (home directory)
//  3. /etc/diligence/config.yaml (system)
//
// A .env file in the working directory is loaded first. Environment
// variables override config file values.
// Format: DILIGENCE_<SECTION>_<KEY>, e.g., DILIGENCE_PROVIDERS_NEWS_API_KEY
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".diligence"))
	v.AddConfigPath("/etc/diligence")

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// LLM defaults
	v.SetDefault("llm.primary", "")
	v.SetDefault("llm.fallbacks", []string{})
	v.SetDefault("llm.openai_key", "")
	v.SetDefault("llm.openai_url", "https://api.openai.com/v1")
	v.SetDefault("llm.ollama_url", "")
	v.SetDefault("llm.gemini_key", "")
	v.SetDefault("llm.anthropic_key", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout_sec", 90)
	v.SetDefault("llm.retries", 2)

	// Provider defaults: rate limits follow each service's free tier.
	providerDefaults(v, "market", "https://www.alphavantage.co", 5, 60)
	providerDefaults(v, "news", "https://newsapi.org/v2", 10, 60)
	providerDefaults(v, "sec", "https://data.sec.gov", 10, 1)
	providerDefaults(v, "network", "https://nubela.co/proxycurl/api", 10, 60)
	providerDefaults(v, "funding", "https://api.crunchbase.com/api/v4", 10, 60)
	providerDefaults(v, "analyst", "https://api.terminal.example.com", 10, 60)
	v.SetDefault("providers.sec_user_agent", "diligence research contact@example.com")
	v.SetDefault("providers.sec_tickers_url", "https://www.sec.gov/files/company_tickers.json")
	v.SetDefault("providers.news_rss_url", "https://news.google.com/rss/search?q=%s&hl=en-US&gl=US&ceid=US:en")

	// Orchestrator defaults
	v.SetDefault("orchestrator.timeout_sec", 90)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.dir", filepath.Join(homeDir(), ".diligence", "cache"))
	v.SetDefault("cache.ttl_sec", 3600) // 1 hour

	// Storage defaults
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dir", filepath.Join(homeDir(), ".diligence", "reports"))
	v.SetDefault("storage.dsn", "")

	// Currency defaults
	v.SetDefault("currency.base_url", "https://open.er-api.com/v6")
	v.SetDefault("currency.api_key", "")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("api.rate_limit", 100)
	v.SetDefault("api.rate_window_sec", 900) // 15 minutes
	v.SetDefault("api.request_timeout_sec", 180)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func providerDefaults(v *viper.Viper, name, baseURL string, maxRequests, windowSec int) {
	prefix := "providers." + name + "."
	v.SetDefault(prefix+"enabled", true)
	v.SetDefault(prefix+"api_key", "")
	v.SetDefault(prefix+"base_url", baseURL)
	v.SetDefault(prefix+"max_requests", maxRequests)
	v.SetDefault(prefix+"window_sec", windowSec)
	v.SetDefault(prefix+"timeout_sec", 60)
	v.SetDefault(prefix+"retries", 3)
	v.SetDefault(prefix+"base_delay_ms", 1000)
	v.SetDefault(prefix+"max_delay_ms", 10000)
}

// overrideFromEnv fills unset secrets from the conventional variable names
// the upstream services document.
func overrideFromEnv(cfg *Config) {
	fallback := func(dst *string, names ...string) {
		if *dst != "" {
			return
		}
		for _, n := range names {
			if v := os.Getenv(n); v != "" {
				*dst = v
				return
			}
		}
	}
	fallback(&cfg.LLM.OpenAIKey, "OPENAI_API_KEY")
	fallback(&cfg.LLM.GeminiKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	fallback(&cfg.LLM.AnthropicKey, "ANTHROPIC_API_KEY")
	fallback(&cfg.Providers.Market.APIKey, "ALPHA_VANTAGE_API_KEY")
	fallback(&cfg.Providers.News.APIKey, "NEWS_API_KEY")
	fallback(&cfg.Providers.Network.APIKey, "PROXYCURL_API_KEY")
	fallback(&cfg.Providers.Funding.APIKey, "CRUNCHBASE_API_KEY")
	fallback(&cfg.Providers.Analyst.APIKey, "TERMINAL_API_KEY")
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
