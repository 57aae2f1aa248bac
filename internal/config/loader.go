package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Server    ServerConfig    `json:"server" yaml:"server" toml:"server"`
	Inference InferenceConfig `json:"inference" yaml:"inference" toml:"inference"`
	Adapters  AdaptersConfig  `json:"adapters" yaml:"adapters" toml:"adapters"`
	Manager   ManagerConfig   `json:"manager" yaml:"manager" toml:"manager"`
	Log       LogConfig       `json:"log" yaml:"log" toml:"log"`
}

type ServerConfig struct {
	Addr                 string     `json:"addr" yaml:"addr" toml:"addr"`
	MaxBodyBytes         int64      `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	PromptTimeoutSeconds int64      `json:"prompt_timeout_seconds" yaml:"prompt_timeout_seconds" toml:"prompt_timeout_seconds"`
	ShutdownTimeoutSecs  int64      `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds" toml:"shutdown_timeout_seconds"`
	RequestLog           string     `json:"request_log" yaml:"request_log" toml:"request_log"`
	CORS                 CORSConfig `json:"cors" yaml:"cors" toml:"cors"`
}

type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// InferenceConfig points at the Ollama-compatible inference service.
type InferenceConfig struct {
	BaseURL               string `json:"base_url" yaml:"base_url" toml:"base_url"`
	RequestTimeoutSeconds int64  `json:"request_timeout_seconds" yaml:"request_timeout_seconds" toml:"request_timeout_seconds"`
	ConnectTimeoutSeconds int64  `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds" toml:"connect_timeout_seconds"`
	// CreateMode selects how composites are created: "http" (POST /api/create)
	// or "cli" (`<cli_bin> create -f`).
	CreateMode string `json:"create_mode" yaml:"create_mode" toml:"create_mode"`
	CLIBin     string `json:"cli_bin" yaml:"cli_bin" toml:"cli_bin"`
	TempDir    string `json:"temp_dir" yaml:"temp_dir" toml:"temp_dir"`
}

type AdaptersConfig struct {
	Dir string `json:"dir" yaml:"dir" toml:"dir"`
	// HostDir is Dir as seen by the inference service; empty means the same path.
	HostDir             string `json:"host_dir" yaml:"host_dir" toml:"host_dir"`
	PlaceholderMinBytes int64  `json:"placeholder_min_bytes" yaml:"placeholder_min_bytes" toml:"placeholder_min_bytes"`
}

type ManagerConfig struct {
	DefaultModel     string `json:"default_model" yaml:"default_model" toml:"default_model"`
	DefaultMaxTokens int    `json:"default_max_tokens" yaml:"default_max_tokens" toml:"default_max_tokens"`
	// UnloadPrevious is a pointer so an explicit false survives ApplyDefaults.
	UnloadPrevious *bool `json:"unload_previous" yaml:"unload_previous" toml:"unload_previous"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level" toml:"level"`
	Format string `json:"format" yaml:"format" toml:"format"`
	// File enables rotated file output in addition to stderr.
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
}

// Defaults returns a Config with every default filled in.
func Defaults() Config {
	var c Config
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills unspecified fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 1 << 20
	}
	if c.Server.ShutdownTimeoutSecs <= 0 {
		c.Server.ShutdownTimeoutSecs = 10
	}
	if c.Server.RequestLog == "" {
		c.Server.RequestLog = "info"
	}
	if len(c.Server.CORS.Methods) == 0 {
		c.Server.CORS.Methods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.Server.CORS.Headers) == 0 {
		c.Server.CORS.Headers = []string{"Content-Type", "Authorization"}
	}
	if c.Inference.BaseURL == "" {
		c.Inference.BaseURL = "http://localhost:11434"
	}
	if c.Inference.RequestTimeoutSeconds <= 0 {
		c.Inference.RequestTimeoutSeconds = 300
	}
	if c.Inference.ConnectTimeoutSeconds <= 0 {
		c.Inference.ConnectTimeoutSeconds = 5
	}
	if c.Inference.CreateMode == "" {
		c.Inference.CreateMode = "http"
	}
	if c.Inference.CLIBin == "" {
		c.Inference.CLIBin = "ollama"
	}
	if c.Adapters.Dir == "" {
		c.Adapters.Dir = "./loras"
	}
	if c.Manager.DefaultMaxTokens <= 0 {
		c.Manager.DefaultMaxTokens = 512
	}
	if c.Manager.UnloadPrevious == nil {
		t := true
		c.Manager.UnloadPrevious = &t
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.MaxSizeMB <= 0 {
		c.Log.MaxSizeMB = 100
	}
}

// Validate rejects settings that cannot work.
func (c Config) Validate() error {
	switch c.Inference.CreateMode {
	case "http", "cli":
	default:
		return fmt.Errorf("inference.create_mode must be http or cli, got %q", c.Inference.CreateMode)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if !strings.HasPrefix(c.Inference.BaseURL, "http://") && !strings.HasPrefix(c.Inference.BaseURL, "https://") {
		return fmt.Errorf("inference.base_url must be an http(s) URL, got %q", c.Inference.BaseURL)
	}
	return nil
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
