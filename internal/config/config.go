package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig   `json:"server"`
	Database     DatabaseConfig `json:"database"`
	MegaStore    MegaConfig     `json:"mega_store"`
	LLM          LLMConfig      `json:"llm"`
	JWTSecret    string         `json:"jwt_secret"`
	DefaultModel string         `json:"default_model"`
}

type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslmode"`
}

// MegaConfig holds credentials for the MEGA account backing conversation
// storage. Absent or placeholder credentials disable the feature rather
// than failing startup.
type MegaConfig struct {
	Email          string        `json:"email"`
	Password       string        `json:"password"`
	Timeout        time.Duration `json:"timeout"`
	SessionRetries int           `json:"session_retries"`
}

// LLMConfig holds per-provider API keys. A provider's models are only
// registered when its key is configured.
type LLMConfig struct {
	OpenAIKey     string `json:"openai_key"`
	AnthropicKey  string `json:"anthropic_key"`
	OpenRouterKey string `json:"openrouter_key"`
	DeepSeekKey   string `json:"deepseek_key"`
	GeminiKey     string `json:"gemini_key"`
	OllamaBaseURL string `json:"ollama_base_url"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	// Add config paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".studyhall"))
	}

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "studyhall")
	viper.SetDefault("database.database", "studyhall")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("mega_store.timeout", 30*time.Second)
	viper.SetDefault("mega_store.session_retries", 3)

	// Read config; a missing file is fine, env vars carry the deployment config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.MegaStore.Timeout <= 0 {
		cfg.MegaStore.Timeout = 30 * time.Second
	}

	loadEnvOverrides(&cfg)

	return &cfg, nil
}

func loadEnvOverrides(cfg *Config) {
	if port := os.Getenv("STUDYHALL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if host := os.Getenv("STUDYHALL_HOST"); host != "" {
		cfg.Server.Host = host
	}

	// Database overrides
	if dbHost := os.Getenv("POSTGRES_HOST"); dbHost != "" {
		cfg.Database.Host = dbHost
	}
	if dbPort := os.Getenv("POSTGRES_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			cfg.Database.Port = port
		}
	}
	if dbUser := os.Getenv("POSTGRES_USER"); dbUser != "" {
		cfg.Database.User = dbUser
	}
	if dbPass := os.Getenv("POSTGRES_PASSWORD"); dbPass != "" {
		cfg.Database.Password = dbPass
	}
	if dbName := os.Getenv("POSTGRES_DB"); dbName != "" {
		cfg.Database.Database = dbName
	}

	// Remote conversation store
	if email := os.Getenv("MEGA_EMAIL"); email != "" {
		cfg.MegaStore.Email = email
	}
	if pass := os.Getenv("MEGA_PASSWORD"); pass != "" {
		cfg.MegaStore.Password = pass
	}

	// LLM provider keys
	cfg.LLM.OpenAIKey = realKey(os.Getenv("OPENAI_API_KEY"), cfg.LLM.OpenAIKey)
	cfg.LLM.AnthropicKey = realKey(os.Getenv("ANTHROPIC_API_KEY"), cfg.LLM.AnthropicKey)
	cfg.LLM.OpenRouterKey = realKey(os.Getenv("OPENROUTER_API_KEY"), cfg.LLM.OpenRouterKey)
	cfg.LLM.DeepSeekKey = realKey(os.Getenv("DEEPSEEK_API_KEY"), cfg.LLM.DeepSeekKey)
	cfg.LLM.GeminiKey = realKey(os.Getenv("GEMINI_API_KEY"), cfg.LLM.GeminiKey)
	if base := os.Getenv("OLLAMA_BASE_URL"); base != "" {
		cfg.LLM.OllamaBaseURL = base
	}

	if model := os.Getenv("STUDYHALL_DEFAULT_MODEL"); model != "" {
		cfg.DefaultModel = model
	}
	if secret := os.Getenv("STUDYHALL_JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}
}

// realKey filters out the placeholder values that ship in example env files,
// treating them the same as an unset key.
func realKey(env, fallback string) string {
	v := env
	if v == "" {
		v = fallback
	}
	if IsPlaceholder(v) {
		return ""
	}
	return v
}

// IsPlaceholder reports whether a credential value should be treated as
// unconfigured.
func IsPlaceholder(v string) bool {
	return v == "" || strings.HasPrefix(v, "your_") || strings.HasSuffix(v, "_here") || strings.Contains(v, "@example.com")
}
