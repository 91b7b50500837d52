// Package config loads the agent's YAML configuration. Values may
// reference environment variables as ${VAR}; unresolved references are
// left intact so a missing variable is visible instead of silently
// blank.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	Planner  PlannerConfig  `yaml:"planner"`
	Confirm  ConfirmConfig  `yaml:"confirmation"`
	Memory   MemoryConfig   `yaml:"memory"`
	Google   GoogleConfig   `yaml:"google"`
	Search   SearchConfig   `yaml:"web_search"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Prepare  PrepareConfig  `yaml:"prepare"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Listen          string `yaml:"listen"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type PlannerConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Provider      string  `yaml:"provider"`
	Model         string  `yaml:"model"`
	MaxSteps      int     `yaml:"max_steps"`
	MinRealSteps  int     `yaml:"min_real_steps"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type ConfirmConfig struct {
	LLMEnabled    bool    `yaml:"llm_enabled"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type MemoryConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	ShortTermLimit int    `yaml:"short_term_limit"`
}

type GoogleConfig struct {
	ClientID        string `yaml:"client_id"`
	ClientSecret    string `yaml:"client_secret"`
	RedirectURI     string `yaml:"redirect_uri"`
	RefreshSchedule string `yaml:"refresh_schedule"`
}

type SearchConfig struct {
	APIKey string `yaml:"api_key"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type PrepareConfig struct {
	Script string `yaml:"script"`
}

type SecurityConfig struct {
	TokenSecret string `yaml:"token_secret"`
}

// ShutdownTimeoutDuration parses the configured shutdown timeout,
// defaulting to 10s.
func (s ServerConfig) ShutdownTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)}`)

func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

func expandSecrets(cfg *Config) {
	cfg.Planner.BaseURL = expandEnv(cfg.Planner.BaseURL)
	cfg.Planner.APIKey = expandEnv(cfg.Planner.APIKey)
	cfg.Memory.BaseURL = expandEnv(cfg.Memory.BaseURL)
	cfg.Memory.APIKey = expandEnv(cfg.Memory.APIKey)
	cfg.Google.ClientID = expandEnv(cfg.Google.ClientID)
	cfg.Google.ClientSecret = expandEnv(cfg.Google.ClientSecret)
	cfg.Google.RedirectURI = expandEnv(cfg.Google.RedirectURI)
	cfg.Search.APIKey = expandEnv(cfg.Search.APIKey)
	cfg.Redis.Addr = expandEnv(cfg.Redis.Addr)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Security.TokenSecret = expandEnv(cfg.Security.TokenSecret)
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Planner.MaxSteps <= 0 {
		cfg.Planner.MaxSteps = 4
	}
	if cfg.Planner.MinRealSteps <= 0 {
		cfg.Planner.MinRealSteps = 1
	}
	if cfg.Planner.MinConfidence <= 0 {
		cfg.Planner.MinConfidence = 0.55
	}
	if cfg.Confirm.MinConfidence <= 0 {
		cfg.Confirm.MinConfidence = 0.7
	}
	if cfg.Memory.ShortTermLimit <= 0 {
		cfg.Memory.ShortTermLimit = 20
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Google.RefreshSchedule == "" {
		cfg.Google.RefreshSchedule = "@every 10m"
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	expandSecrets(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}
