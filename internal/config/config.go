package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	DataDir  string `yaml:"data_dir" env:"DATA_DIR" env-default:"./data"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT" env-default:"5055"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`

	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"0"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"10"`

	CORSOrigins []string `yaml:"cors_origins" env:"CORS_ORIGINS" env-separator:"," env-default:"*"`

	TraceExporter string `yaml:"trace_exporter" env:"TRACE_EXPORTER" env-default:"none"`
	OTLPEndpoint  string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT" env-default:"localhost:4318"`
}

// Load reads configuration from the environment, layered over the YAML
// file at path when path is set and exists. DataDir is made absolute.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("reading env: %w", err)
		}
	} else if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		var pe *os.PathError
		if !errors.As(err, &pe) {
			return Config{}, fmt.Errorf("reading config %q: %w", path, err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return Config{}, fmt.Errorf("reading env: %w", err)
		}
	}

	if err := cfg.Normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize makes DataDir absolute and validates the remaining fields.
// It is safe to call again after overriding fields.
func (c *Config) Normalize() error {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./data"
	}
	abs, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("resolving data dir: %w", err)
	}
	c.DataDir = abs

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	c.TraceExporter = strings.ToLower(strings.TrimSpace(c.TraceExporter))
	switch c.TraceExporter {
	case "", "none":
		c.TraceExporter = "none"
	case "stdout", "otlp":
	default:
		return fmt.Errorf("unknown trace exporter %q", c.TraceExporter)
	}

	origins := c.CORSOrigins[:0]
	for _, o := range c.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c.CORSOrigins = origins
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
