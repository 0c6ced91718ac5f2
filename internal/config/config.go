package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingAPIKey halts startup: without a credential no quiz can ever be
// generated, so there is nothing useful to serve.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is not set")

// Config holds runtime configuration loaded from config files and the
// environment.
type Config struct {
	Env            string `mapstructure:"env"`
	HTTPAddr       string `mapstructure:"http_addr"`
	OpenAIKey      string `mapstructure:"-"`
	OpenAIEndpoint string `mapstructure:"openai_endpoint"`
	OpenAIModel    string `mapstructure:"openai_model"`
	Database       string `mapstructure:"database_path"`
	SampleImage    string `mapstructure:"sample_image"`
	WebDir         string `mapstructure:"web_dir"`
}

// Load reads configuration from an optional config file and the
// environment. A missing API key is a hard error.
func Load() (*Config, error) {
	// .env is optional; it only matters for local development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")

	v.SetDefault("env", "local")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("openai_endpoint", "https://api.openai.com/v1")
	v.SetDefault("openai_model", "gpt-4o")
	v.SetDefault("database_path", "./data/hanquiz.db")
	v.SetDefault("sample_image", "./static/sample.jpg")
	v.SetDefault("web_dir", "./internal/web")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("openai_api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai_endpoint", "OPENAI_API_ENDPOINT")
	_ = v.BindEnv("openai_model", "OPENAI_MODEL")
	_ = v.BindEnv("http_addr", "HTTP_ADDR")
	_ = v.BindEnv("database_path", "DATABASE_PATH")
	_ = v.BindEnv("env", "APP_ENV")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.OpenAIKey = v.GetString("openai_api_key")
	if cfg.OpenAIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, fmt.Errorf("ensure database dir: %w", err)
	}

	return &cfg, nil
}
