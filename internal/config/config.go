// Copyright (c) 2025 Plume Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/plumeforge/plume-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete plume configuration.
type Config struct {
	// Version of the config schema.
	Version string `toml:"version"`

	// DefaultModel is used when neither a test override nor an assistant
	// model is set.
	DefaultModel string `toml:"default_model"`

	// Gateway configuration (client side).
	Gateway GatewayConfig `toml:"gateway"`

	// Server configuration (the `plume serve` gateway process).
	Server ServerConfig `toml:"server"`

	// Assistants keyed by assistant ID.
	Assistants map[string]AssistantConfig `toml:"assistants"`

	// Context is the standing "remember these facts" overlay.
	Context ContextConfig `toml:"context"`

	// Typing controls the typewriter animation.
	Typing TypingConfig `toml:"typing"`
}

// GatewayConfig points the client at the provider gateway.
type GatewayConfig struct {
	// BaseURL is the gateway base URL (default: http://127.0.0.1:8791).
	BaseURL string `toml:"base_url"`
	// TimeoutSecs bounds single-shot requests. Streaming requests are
	// bounded by their own context.
	TimeoutSecs int `toml:"timeout_secs"`
	// Temperature, MaxTokens, TopP are passed through on chat requests.
	// Zero values are omitted from the wire payload.
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
	TopP        float64 `toml:"top_p"`
}

// ServerConfig configures the gateway HTTP server.
type ServerConfig struct {
	// Port for the gateway server (default: 8791).
	Port int `toml:"port"`
	// RateLimit is requests per second per client (0 disables limiting).
	RateLimit float64 `toml:"rate_limit"`
	// RateBurst is the token bucket burst size.
	RateBurst int `toml:"rate_burst"`
	// OpenAIBaseURL and GeminiBaseURL override the upstream endpoints,
	// mainly for tests.
	OpenAIBaseURL    string `toml:"openai_base_url"`
	GeminiBaseURL    string `toml:"gemini_base_url"`
	StabilityBaseURL string `toml:"stability_base_url"`
	// Upstream API keys. Environment variables (OPENAI_API_KEY,
	// GEMINI_API_KEY, STABILITY_API_KEY) take precedence; values written by
	// `plume setup` are ENC:-wrapped and decrypted through the keychain.
	OpenAIKey    string `toml:"openai_key,omitempty"`
	GeminiKey    string `toml:"gemini_key,omitempty"`
	StabilityKey string `toml:"stability_key,omitempty"`
}

// AssistantConfig describes one configured assistant.
type AssistantConfig struct {
	Name         string `toml:"name"`
	Instructions string `toml:"instructions"`
	Model        string `toml:"model"`
}

// ContextConfig is the persistent user context injected as an extra system
// instruction.
type ContextConfig struct {
	// Facts is the standing fact text. Blank disables injection entirely.
	Facts string `toml:"facts"`
	// ApplyToAll injects the facts for every assistant session.
	ApplyToAll bool `toml:"apply_to_all"`
	// Assistants is the per-assistant allow-list used when ApplyToAll is
	// false. The main session never receives the overlay from the list.
	Assistants []string `toml:"assistants"`
}

// TypingConfig holds the typewriter delay classes, in milliseconds.
type TypingConfig struct {
	BaseMs     int  `toml:"base_ms"`
	SpaceMs    int  `toml:"space_ms"`
	CommaMs    int  `toml:"comma_ms"`
	SentenceMs int  `toml:"sentence_ms"`
	NewlineMs  int  `toml:"newline_ms"`
	Turbo      bool `toml:"turbo"`
	// TurboDivisor divides every delay class in turbo mode.
	TurboDivisor int `toml:"turbo_divisor"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in default configuration.
func Default() *Config {
	return &Config{
		Version:      "1",
		DefaultModel: "gpt-4o-mini",
		Gateway: GatewayConfig{
			BaseURL:     "http://127.0.0.1:8791",
			TimeoutSecs: 60,
		},
		Server: ServerConfig{
			Port:      8791,
			RateLimit: 5,
			RateBurst: 10,
		},
		Assistants: map[string]AssistantConfig{},
		Typing: TypingConfig{
			BaseMs:       18,
			SpaceMs:      35,
			CommaMs:      120,
			SentenceMs:   260,
			NewlineMs:    180,
			TurboDivisor: 8,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the plume configuration directory (~/.plume).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".plume"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads the configuration from the default location. A missing file is
// not an error; defaults plus environment overrides are returned.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the default location with restrictive
// permissions (the file may carry an encrypted key blob).
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to an explicit path.
func SaveToPath(cfg *Config, path string) error {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFileWithDir(path, []byte(sb.String()), 0600, 0700)
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies PLUME_* environment variables on top of the
// loaded values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("PLUME_DEFAULT_MODEL"); v != "" {
		c.DefaultModel = v
	}
	if v := os.Getenv("PLUME_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("PLUME_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("PLUME_TURBO"); v != "" {
		c.Typing.Turbo = v == "1" || strings.EqualFold(v, "true")
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return "config: " + e.Field + ": " + e.Message
}

// Validate checks the configuration for invalid values and normalizes
// recoverable ones.
func (c *Config) Validate() error {
	if c.DefaultModel == "" {
		return ValidationError{Field: "default_model", Message: "must not be empty"}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return ValidationError{Field: "server.port", Message: "must be in 1-65535"}
	}
	if c.Typing.TurboDivisor < 1 {
		c.Typing.TurboDivisor = 1
	}
	if c.Gateway.TimeoutSecs <= 0 {
		c.Gateway.TimeoutSecs = 60
	}
	for id, a := range c.Assistants {
		if strings.TrimSpace(id) == "" {
			return ValidationError{Field: "assistants", Message: "assistant ID must not be blank"}
		}
		if a.Name == "" {
			a.Name = id
			c.Assistants[id] = a
		}
	}
	return nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

// Assistant returns the assistant config for an ID, if present.
func (c *Config) Assistant(id string) (AssistantConfig, bool) {
	a, ok := c.Assistants[id]
	return a, ok
}

// GatewayTimeout returns the single-shot request timeout as a duration.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSecs) * time.Second
}

// ContextAppliesTo reports whether the standing context overlay should be
// injected for the given session ID. The overlay never applies to the main
// session unless ApplyToAll is set, and requires non-blank facts.
func (c *Config) ContextAppliesTo(sessionID string) bool {
	if strings.TrimSpace(c.Context.Facts) == "" {
		return false
	}
	if c.Context.ApplyToAll {
		return true
	}
	for _, id := range c.Context.Assistants {
		if id == sessionID {
			return true
		}
	}
	return false
}
