package config

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	Answer  AnswerConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	Chat    ChatConfig
	Export  ExportConfig
}

type AnswerConfig struct {
	BaseURL string
	Timeout time.Duration
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type ChatConfig struct {
	// Greeting seeds every new conversation log. Empty means the built-in greeting.
	Greeting  string
	ShowSites bool
}

type ExportConfig struct {
	Locale   string
	Timezone string
}

func defaults() Config {
	return Config{
		Answer: AnswerConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		Chat: ChatConfig{
			ShowSites: true,
		},
		Export: ExportConfig{
			Locale:   "en",
			Timezone: "Local",
		},
	}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.askcards.app).
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/askcards/config.json.
//
// Environment variables (ASKCARDS_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	u, err := url.Parse(c.Answer.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid config answer.base_url %q: must be an absolute http(s) URL", c.Answer.BaseURL)
	}
	if c.Answer.Timeout <= 0 {
		return fmt.Errorf("invalid config answer.timeout %v: must be positive", c.Answer.Timeout)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config server.port %d", c.Server.Port)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config export.timezone %q: %w", c.Export.Timezone, err)
	}
	return nil
}

// Location resolves Export.Timezone. "Local" and "" mean the system zone.
func (c Config) Location() (*time.Location, error) {
	switch c.Export.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Export.Timezone)
	}
}
