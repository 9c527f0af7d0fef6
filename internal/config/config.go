package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.deskchat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	GatewayURL     string `toml:"gateway_url"`
	PushURL        string `toml:"push_url"`
	Credential     string `toml:"credential"`
}

// Load reads config from the given path and applies DESKCHAT_* environment
// overrides on top. A .env file in the working directory is honored when
// present. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DESKCHAT_SESSION"); v != "" {
		cfg.DefaultSession = v
	}
	if v := os.Getenv("DESKCHAT_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("DESKCHAT_PUSH_URL"); v != "" {
		cfg.PushURL = v
	}
	if v := os.Getenv("DESKCHAT_CREDENTIAL"); v != "" {
		cfg.Credential = v
	}
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
