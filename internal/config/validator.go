package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateQuery(&cfg.Query, result)
	validateTargets(cfg.Targets, result)
	validateHistory(&cfg.History, result)

	if cfg.Monitor.PollIntervalSec < 1 {
		result.AddError("monitor.poll_interval_sec", "poll interval must be at least 1 second")
	} else if cfg.Monitor.PollIntervalSec < 5 {
		result.AddWarning("monitor.poll_interval_sec",
			"poll interval less than 5s may get the service rate limited by game servers")
	}

	validatePort(cfg.API.Port, "api.port", result)
	if cfg.API.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	if cfg.Responder.Enabled {
		validatePort(cfg.Responder.Port, "responder.port", result)
		if cfg.Responder.MaxPlayers < 0 || cfg.Responder.MaxPlayers > 255 {
			result.AddError("responder.max_players", "max players must be between 0 and 255")
		}
		if cfg.Responder.AppID < 0 || cfg.Responder.AppID > 0xFFFF {
			result.AddError("responder.app_id", "app id must fit in 16 bits")
		}
		if cfg.Responder.Port == cfg.API.Port {
			result.AddWarning("responder.port", "responder shares its port number with the API")
		}
	}

	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
			result.AddError("mqtt.port", "invalid MQTT port")
		}
		if cfg.MQTT.UseTLS && (cfg.MQTT.CertFile == "") != (cfg.MQTT.KeyFile == "") {
			result.AddError("mqtt.cert_file", "client certificate and key must be set together")
		}
	}

	if u := strings.TrimSpace(cfg.Notify.DiscordWebhookURL); u != "" {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "https" && parsed.Scheme != "http") || parsed.Host == "" {
			result.AddError("notify.discord_webhook_url", "webhook URL must be an absolute http(s) URL")
		}
	}

	return result
}

func validateQuery(q *QueryConfig, result *ValidationResult) {
	if q.TimeoutMS < 1 {
		result.AddError("query.timeout_ms", "timeout must be positive")
	} else if q.TimeoutMS < 200 {
		result.AddWarning("query.timeout_ms", "timeouts under 200ms will fail for distant servers")
	}
	if q.Retries < 0 {
		result.AddError("query.retries", "retries cannot be negative")
	}
	if q.BufferSize < 1400 {
		result.AddError("query.buffer_size", "buffer size must hold a full 1400 byte datagram")
	}
	if q.Workers < 1 {
		result.AddError("query.workers", "at least one worker is required")
	}
}

func validateTargets(targets []Target, result *ValidationResult) {
	if len(targets) == 0 {
		result.AddWarning("targets", "no targets configured, the monitor will be idle")
	}

	seen := make(map[string]bool, len(targets))
	for i, t := range targets {
		field := fmt.Sprintf("targets[%d].address", i)
		if strings.TrimSpace(t.Address) == "" {
			result.AddError(field, "address is required")
			continue
		}
		if err := ValidateAddress(t.Address); err != nil {
			result.AddError(field, err.Error())
			continue
		}
		if seen[t.Address] {
			result.AddError(field, fmt.Sprintf("duplicate target address %s", t.Address))
		}
		seen[t.Address] = true
	}
}

func validateHistory(h *HistoryConfig, result *ValidationResult) {
	if strings.TrimSpace(h.DBPath) == "" {
		result.AddError("history.db_path", "database path is required")
	}
	if h.RetentionDays < 1 {
		result.AddError("history.retention_days", "retention days must be at least 1")
	}
	if _, err := time.Parse("15:04", h.PruneTime); err != nil {
		result.AddError("history.prune_time", fmt.Sprintf("invalid prune time %q (expected HH:MM)", h.PruneTime))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// ValidateAddress checks that addr is host:port with a usable port.
func ValidateAddress(addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if host == "" {
		return fmt.Errorf("invalid address %q: missing host", addr)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid address %q: bad port", addr)
	}
	return nil
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
