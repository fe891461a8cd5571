package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sk-...abc"
}

// CheckAPIKeys returns the status of every credential the engine can use.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("OpenAI API Key", cfg.LLM.OpenAIKey, "DILIGENCE_LLM_OPENAI_KEY", "OPENAI_API_KEY"),
		checkKey("Gemini API Key", cfg.LLM.GeminiKey, "DILIGENCE_LLM_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"),
		checkKey("Anthropic API Key", cfg.LLM.AnthropicKey, "DILIGENCE_LLM_ANTHROPIC_KEY", "ANTHROPIC_API_KEY"),
		checkKey("Alpha Vantage API Key", cfg.Providers.Market.APIKey, "DILIGENCE_PROVIDERS_MARKET_API_KEY", "ALPHA_VANTAGE_API_KEY"),
		checkKey("NewsAPI Key", cfg.Providers.News.APIKey, "DILIGENCE_PROVIDERS_NEWS_API_KEY", "NEWS_API_KEY"),
		checkKey("Professional Network API Key", cfg.Providers.Network.APIKey, "DILIGENCE_PROVIDERS_NETWORK_API_KEY", "PROXYCURL_API_KEY"),
		checkKey("Funding API Key", cfg.Providers.Funding.APIKey, "DILIGENCE_PROVIDERS_FUNDING_API_KEY", "CRUNCHBASE_API_KEY"),
		checkKey("Analyst Terminal API Key", cfg.Providers.Analyst.APIKey, "DILIGENCE_PROVIDERS_ANALYST_API_KEY", "TERMINAL_API_KEY"),
	}
}

// HasLLMBackend reports whether any generative backend is configured.
func HasLLMBackend(cfg *Config) bool {
	return cfg.LLM.OpenAIKey != "" || cfg.LLM.GeminiKey != "" ||
		cfg.LLM.AnthropicKey != "" || cfg.LLM.OllamaURL != ""
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value string, envVars ...string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value == "" {
		status.Source = KeySourceNone
		return status
	}

	status.Source = KeySourceConfig
	for _, e := range envVars {
		if os.Getenv(e) != "" {
			status.Source = KeySourceEnv
			break
		}
	}
	status.Masked = maskKey(value)
	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
