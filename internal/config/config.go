// Package config handles configuration loading, validation, and persistence
// for the sourcequery service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultConfigDir     = "config"
	DefaultConfigFile    = "config.json"
	DefaultAPIPort       = 5080
	DefaultResponderPort = 27015
	DefaultDBPath        = "data/history.db"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Query     QueryConfig     `json:"query"`
	Targets   []Target        `json:"targets"`
	Monitor   MonitorConfig   `json:"monitor"`
	History   HistoryConfig   `json:"history"`
	API       APIConfig       `json:"api"`
	Responder ResponderConfig `json:"responder"`
	MQTT      MQTTConfig      `json:"mqtt"`
	Metrics   MetricsConfig   `json:"metrics"`
	Notify    NotifyConfig    `json:"notify"`
	Logging   LoggingConfig   `json:"logging"`
}

// QueryConfig tunes the A2S client.
type QueryConfig struct {
	TimeoutMS  int `json:"timeout_ms"`
	Retries    int `json:"retries"`
	BufferSize int `json:"buffer_size"`
	Workers    int `json:"workers"`
}

// Timeout returns TimeoutMS as a duration.
func (q QueryConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutMS) * time.Millisecond
}

// Target is one monitored game server.
type Target struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// MonitorConfig holds polling settings.
type MonitorConfig struct {
	PollIntervalSec int `json:"poll_interval_sec"`
}

// PollInterval returns PollIntervalSec as a duration.
func (m MonitorConfig) PollInterval() time.Duration {
	return time.Duration(m.PollIntervalSec) * time.Second
}

// HistoryConfig holds snapshot storage and retention settings.
type HistoryConfig struct {
	DBPath        string `json:"db_path"`
	RetentionDays int    `json:"retention_days"`
	PruneTime     string `json:"prune_time"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
}

// ResponderConfig describes the built-in A2S responder and the info it advertises.
type ResponderConfig struct {
	Enabled          bool   `json:"enabled"`
	Port             int    `json:"port"`
	RequireChallenge bool   `json:"require_challenge"`
	Name             string `json:"name"`
	Map              string `json:"map"`
	Folder           string `json:"folder"`
	Game             string `json:"game"`
	AppID            int    `json:"app_id"`
	MaxPlayers       int    `json:"max_players"`
	Version          string `json:"version"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// NotifyConfig holds state change notification settings.
type NotifyConfig struct {
	DiscordWebhookURL string `json:"discord_webhook_url"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Query: QueryConfig{
			TimeoutMS:  3000,
			Retries:    3,
			BufferSize: 4096,
			Workers:    8,
		},
		Targets: []Target{},
		Monitor: MonitorConfig{
			PollIntervalSec: 30,
		},
		History: HistoryConfig{
			DBPath:        DefaultDBPath,
			RetentionDays: 7,
			PruneTime:     "04:00",
		},
		API: APIConfig{
			Port:         DefaultAPIPort,
			RateLimitRPS: 100,
		},
		Responder: ResponderConfig{
			Enabled:    false,
			Port:       DefaultResponderPort,
			Name:       "sourcequery",
			Map:        "none",
			Folder:     "sourcequery",
			Game:       "sourcequery",
			MaxPlayers: 0,
			Version:    "1.0.0.0",
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Port:    1883,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxBackups: 5,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so config.json carries every option, including new defaults.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetTargets returns a copy of the monitored targets.
func (c *Config) GetTargets() []Target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Target, len(c.Targets))
	copy(out, c.Targets)
	return out
}

// AddTarget appends a target unless its address is already monitored.
// It reports whether the target was added.
func (c *Config) AddTarget(t Target) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.Targets {
		if existing.Address == t.Address {
			return false
		}
	}
	c.Targets = append(c.Targets, t)
	return true
}

// GetQuery returns a copy of the query settings.
func (c *Config) GetQuery() QueryConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Query
}

// GetResponder returns a copy of the responder settings.
func (c *Config) GetResponder() ResponderConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Responder
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}
