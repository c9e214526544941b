// Package config handles companiond configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/companiond/config.yaml,
// /etc/companiond/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "companiond", "config.yaml"))
	}

	paths = append(paths, "/etc/companiond/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all companiond configuration.
type Config struct {
	Listen       ListenConfig         `yaml:"listen"`
	Completion   CompletionConfig     `yaml:"completion"`
	Conversation ConversationDefaults `yaml:"conversation"`
	Database     DatabaseConfig       `yaml:"database"`
	History      HistoryConfig        `yaml:"history"`
	Avatar       AvatarConfig         `yaml:"avatar"`
	LogLevel     string               `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// CompletionConfig defines the completion provider settings.
type CompletionConfig struct {
	// Provider selects the primary backend: "openai" or "ollama".
	Provider string       `yaml:"provider"`
	OpenAI   OpenAIConfig `yaml:"openai"`
	Ollama   OllamaConfig `yaml:"ollama"`
	// OllamaModels lists model names routed to the local Ollama
	// provider when the primary provider is openai.
	OllamaModels []string `yaml:"ollama_models"`
	// TimeoutSec bounds each completion call (default 60).
	TimeoutSec int `yaml:"timeout_sec"`
}

// OpenAIConfig defines OpenAI-compatible API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Optional override for compatible gateways
}

// OllamaConfig defines the local Ollama provider.
type OllamaConfig struct {
	URL string `yaml:"url"` // Default: http://localhost:11434
}

// ConversationDefaults seeds model parameters for new companions.
type ConversationDefaults struct {
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float64 `yaml:"temperature"`
	TopP              float64 `yaml:"top_p"`
	FrequencyPenalty  float64 `yaml:"frequency_penalty"`
	PresencePenalty   float64 `yaml:"presence_penalty"`
	BestOf            int     `yaml:"best_of"`
	Tone              string  `yaml:"tone"`
	MemoryTokenBudget int     `yaml:"memory_token_budget"`
}

// DatabaseConfig defines the SQLite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig defines the chat-history audit log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Env     string `yaml:"env"` // "dev" or "prod", recorded on every row
}

// AvatarConfig defines the selfie upload pipeline. When disabled, the
// selfie endpoint returns 501 and companions carry no avatar URL.
type AvatarConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Bucket        string `yaml:"bucket"`
	Region        string `yaml:"region"`
	PublicBaseURL string `yaml:"public_base_url"` // e.g. CDN or bucket website origin
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Completion: CompletionConfig{
			Provider:   "openai",
			Ollama:     OllamaConfig{URL: "http://localhost:11434"},
			TimeoutSec: 60,
		},
		Conversation: ConversationDefaults{
			Model:             "gpt-3.5-turbo-instruct",
			MaxTokens:         256,
			Temperature:       0.9,
			TopP:              1,
			BestOf:            1,
			Tone:              "Nice, warm and polite",
			MemoryTokenBudget: 1000,
		},
		Database: DatabaseConfig{Path: "companiond.db"},
		History:  HistoryConfig{Env: "dev"},
	}
}
