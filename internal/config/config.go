package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"` // progress cache TTL
}

type HTTPConfig struct {
	Port          int           `yaml:"port"`
	RateLimit     int           `yaml:"rate_limit"`      // requests per window per user, 0 disables
	RateWindow    time.Duration `yaml:"rate_window"`
	RequestBodyMB int64         `yaml:"request_body_mb"` // upload cap for edit sources
}

type AdminConfig struct {
	APIKey string `yaml:"api_key"`
}

type ShareConfig struct {
	Secret string `yaml:"secret"` // HMAC key for share tokens
}

type StorageConfig struct {
	OutputFolder string `yaml:"output_folder"`
}

type WorkerConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"` // per-lane poll
	ExpandInterval   time.Duration `yaml:"expand_interval"`
	QueueSample      time.Duration `yaml:"queue_sample"`      // queue depth gauge refresh
	RecoveryGrace    time.Duration `yaml:"recovery_grace"`    // runtime sweep stale threshold
}

type ComfyUIConfig struct {
	Enabled       bool              `yaml:"enabled"`
	ServerAddress string            `yaml:"server_address"` // host:port
	Workflows     map[string]string `yaml:"workflows"`      // model name -> workflow json path
	RenderTimeout time.Duration     `yaml:"render_timeout"`
}

type FluxConfig struct {
	Enabled        bool   `yaml:"enabled"`
	APIKey         string `yaml:"api_key"`
	OpenAIEndpoint string `yaml:"openai_endpoint"` // images generation
	BFLEndpoint    string `yaml:"bfl_endpoint"`    // kontext edits
	Model          string `yaml:"model"`
}

type GeminiConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type MockConfig struct {
	Enabled bool          `yaml:"enabled"`
	Delay   time.Duration `yaml:"delay"`
}

type ProvidersConfig struct {
	Default       string        `yaml:"default"`
	DefaultModel  string        `yaml:"default_model"`
	DefaultWidth  int           `yaml:"default_width"`
	DefaultHeight int           `yaml:"default_height"`
	ComfyUI       ComfyUIConfig `yaml:"comfyui"`
	Flux          FluxConfig    `yaml:"flux"`
	Gemini        GeminiConfig  `yaml:"gemini"`
	Mock          MockConfig    `yaml:"mock"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	HTTP      HTTPConfig      `yaml:"http"`
	Admin     AdminConfig     `yaml:"admin"`
	Share     ShareConfig     `yaml:"share"`
	Storage   StorageConfig   `yaml:"storage"`
	Worker    WorkerConfig    `yaml:"worker"`
	Providers ProvidersConfig `yaml:"providers"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.TTL <= 0 {
		cfg.Redis.TTL = 5 * time.Minute
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8000
	}
	if cfg.HTTP.RateWindow <= 0 {
		cfg.HTTP.RateWindow = time.Minute
	}
	if cfg.HTTP.RequestBodyMB <= 0 {
		cfg.HTTP.RequestBodyMB = 20
	}
	if cfg.Storage.OutputFolder == "" {
		cfg.Storage.OutputFolder = "generated_images"
	}
	if cfg.Worker.DispatchInterval <= 0 {
		cfg.Worker.DispatchInterval = time.Second
	}
	if cfg.Worker.ExpandInterval <= 0 {
		cfg.Worker.ExpandInterval = time.Second
	}
	if cfg.Worker.QueueSample <= 0 {
		cfg.Worker.QueueSample = 15 * time.Second
	}
	if cfg.Worker.RecoveryGrace <= 0 {
		cfg.Worker.RecoveryGrace = 15 * time.Minute
	}
	if cfg.Providers.DefaultWidth <= 0 {
		cfg.Providers.DefaultWidth = 1024
	}
	if cfg.Providers.DefaultHeight <= 0 {
		cfg.Providers.DefaultHeight = 1024
	}
	if cfg.Providers.ComfyUI.RenderTimeout <= 0 {
		cfg.Providers.ComfyUI.RenderTimeout = 10 * time.Minute
	}
	if cfg.Providers.Flux.Model == "" {
		cfg.Providers.Flux.Model = "FLUX.1-Kontext-pro"
	}
	if cfg.Providers.Default == "" {
		cfg.Providers.Default = firstEnabledProvider(&cfg.Providers)
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Share.Secret == "" {
		return nil, errors.New("share.secret is required")
	}
	if cfg.Providers.Default == "" {
		return nil, errors.New("at least one provider must be enabled")
	}
	if cfg.Providers.ComfyUI.Enabled && cfg.Providers.ComfyUI.ServerAddress == "" {
		return nil, errors.New("providers.comfyui.server_address is required when enabled")
	}
	if cfg.Providers.Flux.Enabled && cfg.Providers.Flux.APIKey == "" {
		return nil, errors.New("providers.flux.api_key is required when enabled")
	}
	if cfg.Providers.Gemini.Enabled && cfg.Providers.Gemini.APIKey == "" {
		return nil, errors.New("providers.gemini.api_key is required when enabled")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func firstEnabledProvider(p *ProvidersConfig) string {
	switch {
	case p.ComfyUI.Enabled:
		return "comfyui"
	case p.Flux.Enabled:
		return "flux"
	case p.Gemini.Enabled:
		return "gemini"
	case p.Mock.Enabled:
		return "mock"
	}
	return ""
}
