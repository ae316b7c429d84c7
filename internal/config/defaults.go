package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/rimkus-dev/sentiment/internal/envvar"
)

const (
	defaultHTTPPort = 8080
	defaultGRPCPort = 9090

	// DefaultProvider is the engine provider used when none is configured.
	DefaultProvider = "hugot"

	// DefaultModel is the pretrained sentiment model.
	DefaultModel = "Xenova/distilbert-base-uncased-finetuned-sst-2-english"

	// DefaultDType is the default weight precision.
	DefaultDType = "fp16"

	// DefaultBlogDir is where blog posts live relative to the site root.
	DefaultBlogDir = "src/content/blog"
)

// DefaultConfigPath returns the default path for the sentimentd config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "sentimentd", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "sentimentd")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "sentimentd")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "sentimentd")
		}
		return filepath.Join(home, ".config", "sentimentd")
	}
}

// DefaultModelsPath returns the default path for the sentimentd models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "sentimentd", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "sentimentd", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "sentimentd", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "sentimentd", "models")
		}
		return filepath.Join(home, ".cache", "sentimentd", "models")
	}
}

// DefaultHTTPPort returns the HTTP port from the environment, or 8080.
func DefaultHTTPPort() int {
	return portFromEnv(envvar.SentimentServerHTTPPort, defaultHTTPPort)
}

// DefaultGRPCPort returns the gRPC port from the environment, or 9090.
func DefaultGRPCPort() int {
	return portFromEnv(envvar.SentimentServerGRPCPort, defaultGRPCPort)
}

func portFromEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			return port
		}
	}

	return fallback
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Version: "1"}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Version == "" {
		cfg.Version = "1"
	}
	if cfg.Sentiment.Provider == "" {
		cfg.Sentiment.Provider = DefaultProvider
	}
	if cfg.Sentiment.Model == "" {
		cfg.Sentiment.Model = DefaultModel
	}
	if cfg.Sentiment.DType == "" {
		cfg.Sentiment.DType = DefaultDType
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = DefaultHTTPPort()
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = DefaultGRPCPort()
	}
	if cfg.Content.BlogDir == "" {
		cfg.Content.BlogDir = DefaultBlogDir
	}
}
