package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIKey     string `yaml:"api_key"`
	UserID     string `yaml:"user_id"`
	UserName   string `yaml:"user_name"`
	Token      string `yaml:"token"`
	DevSecret  string `yaml:"dev_secret"`
	WSURL      string `yaml:"ws_url"`
	APIURL     string `yaml:"api_url"`
	DBPath     string `yaml:"db_path"`
	StatusAddr string `yaml:"status_addr"`

	RecoveryBatchSize int           `yaml:"recovery_batch_size"`
	DedupWindow       time.Duration `yaml:"dedup_window"`
	ReconnectBase     time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMax      time.Duration `yaml:"reconnect_max_delay"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

func defaults() *Config {
	return &Config{
		WSURL:             "wss://chat.localhost",
		APIURL:            "https://chat.localhost",
		DBPath:            "./data/realtime.db",
		StatusAddr:        "127.0.0.1:3002",
		RecoveryBatchSize: 50,
		DedupWindow:       5 * time.Minute,
		ReconnectBase:     time.Second,
		ReconnectMax:      30 * time.Second,
		TokenTTL:          time.Hour,
	}
}

// Load reads the YAML file at path over the defaults, then applies
// SPECTRUS_* environment overrides. An empty path or a missing file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		}
	}

	cfg.APIKey = getEnv("SPECTRUS_API_KEY", cfg.APIKey)
	cfg.UserID = getEnv("SPECTRUS_USER_ID", cfg.UserID)
	cfg.UserName = getEnv("SPECTRUS_USER_NAME", cfg.UserName)
	cfg.Token = getEnv("SPECTRUS_TOKEN", cfg.Token)
	cfg.DevSecret = getEnv("SPECTRUS_DEV_SECRET", cfg.DevSecret)
	cfg.WSURL = getEnv("SPECTRUS_WS_URL", cfg.WSURL)
	cfg.APIURL = getEnv("SPECTRUS_API_URL", cfg.APIURL)
	cfg.DBPath = getEnv("SPECTRUS_DB_PATH", cfg.DBPath)
	cfg.StatusAddr = getEnv("SPECTRUS_STATUS_ADDR", cfg.StatusAddr)
	cfg.RecoveryBatchSize = getEnvInt("SPECTRUS_RECOVERY_BATCH_SIZE", cfg.RecoveryBatchSize)
	cfg.DedupWindow = getEnvDuration("SPECTRUS_DEDUP_WINDOW", cfg.DedupWindow)
	cfg.ReconnectBase = getEnvDuration("SPECTRUS_RECONNECT_BASE_DELAY", cfg.ReconnectBase)
	cfg.ReconnectMax = getEnvDuration("SPECTRUS_RECONNECT_MAX_DELAY", cfg.ReconnectMax)
	cfg.TokenTTL = getEnvDuration("SPECTRUS_TOKEN_TTL", cfg.TokenTTL)

	return cfg, nil
}

// Validate reports the first setting a connection cannot do without.
func (c *Config) Validate() error {
	switch {
	case c.APIKey == "":
		return errors.New("api_key must be set")
	case c.UserID == "":
		return errors.New("user_id must be set")
	case c.Token == "" && c.DevSecret == "":
		return errors.New("token or dev_secret must be set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
