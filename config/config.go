package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/saquib34/react-iframe-bridge/errors"
)

// WildcardAll is the allow-list entry that disables origin checking entirely.
// Documented as unsafe for production; Validate logs a warning when present.
const WildcardAll = "*"

// Default communication settings, in effect when fields are zero.
const (
	DefaultTimeoutMs  = 5000
	DefaultRetryDelay = 1000
)

// CommunicationConfig holds request-correlation and logging settings.
// Durations travel as millisecond integers, matching the wire-facing
// configuration surface.
type CommunicationConfig struct {
	// TimeoutMs is the per-request correlation timeout in milliseconds.
	TimeoutMs int `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// RetryAttempts is the total number of attempts for RequestWithRetry.
	// Zero means a single attempt. Retry is layered on top of the
	// single-attempt request primitive, never inside it.
	RetryAttempts int `json:"retryAttempts,omitempty" yaml:"retryAttempts,omitempty"`

	// RetryDelayMs is the delay between retry attempts in milliseconds.
	RetryDelayMs int `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty"`

	// Debug enables verbose structured logging of every protocol event.
	// No behavioral effect otherwise.
	Debug bool `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// Timeout returns the request timeout as a duration, falling back to the
// default when unset.
func (c CommunicationConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return DefaultTimeoutMs * time.Millisecond
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the retry delay as a duration, falling back to the
// default when unset.
func (c CommunicationConfig) RetryDelay() time.Duration {
	if c.RetryDelayMs <= 0 {
		return DefaultRetryDelay * time.Millisecond
	}
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}

// Config is the complete configuration surface consumed by the protocol core.
type Config struct {
	// Origin is this side's declared origin, stamped into every outbound
	// envelope.
	Origin string `json:"origin" yaml:"origin"`

	// TargetOrigin is the peer origin filter applied on send. The wildcard
	// sentinel "*" means "any recipient".
	TargetOrigin string `json:"targetOrigin" yaml:"targetOrigin"`

	// AllowedOrigins is the ordered list of exact origins and/or "*.domain"
	// wildcard patterns trusted on receive. The literal "*" disables origin
	// checking entirely (unsafe for production).
	AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`

	// MaxMessageSize is the serialized byte ceiling per envelope.
	// Zero disables the check.
	MaxMessageSize int `json:"maxMessageSize,omitempty" yaml:"maxMessageSize,omitempty"`

	// RateLimitPerSecond is the per-origin message ceiling per one-second
	// window. Zero disables the check.
	RateLimitPerSecond int `json:"rateLimitPerSecond,omitempty" yaml:"rateLimitPerSecond,omitempty"`

	Communication CommunicationConfig `json:"communication,omitempty" yaml:"communication,omitempty"`
}

// DefaultConfig returns a configuration with sane communication defaults and
// an empty allow-list (Validate rejects it until origins are supplied).
func DefaultConfig() *Config {
	return &Config{
		TargetOrigin: WildcardAll,
		Communication: CommunicationConfig{
			TimeoutMs:     DefaultTimeoutMs,
			RetryAttempts: 3,
			RetryDelayMs:  DefaultRetryDelay,
		},
	}
}

// Validate checks the configuration for structural problems and logs a
// warning for the unsafe universal wildcard.
func (c *Config) Validate(logger *slog.Logger) error {
	if c.Origin == "" {
		return errors.WrapValidation(errors.ErrMissingConfig, "Config", "Validate",
			"origin must not be empty")
	}
	if c.TargetOrigin == "" {
		return errors.WrapValidation(errors.ErrMissingConfig, "Config", "Validate",
			"targetOrigin must not be empty")
	}
	if len(c.AllowedOrigins) == 0 {
		return errors.WrapValidation(errors.ErrMissingConfig, "Config", "Validate",
			"allowedOrigins must not be empty")
	}

	for _, entry := range c.AllowedOrigins {
		if err := validateAllowListEntry(entry); err != nil {
			return err
		}
		if entry == WildcardAll && logger != nil {
			logger.Warn("origin checking disabled by universal wildcard; unsafe for production",
				"allowed_origins", c.AllowedOrigins)
		}
	}

	if c.MaxMessageSize < 0 {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			"maxMessageSize cannot be negative")
	}
	if c.RateLimitPerSecond < 0 {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			"rateLimitPerSecond cannot be negative")
	}
	if c.Communication.TimeoutMs < 0 {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			"communication.timeout cannot be negative")
	}
	if c.Communication.RetryAttempts < 0 {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			"communication.retryAttempts cannot be negative")
	}
	if c.Communication.RetryDelayMs < 0 {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			"communication.retryDelay cannot be negative")
	}

	return nil
}

func validateAllowListEntry(entry string) error {
	if entry == "" {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			"allow-list entry must not be empty")
	}
	if entry == WildcardAll {
		return nil
	}
	if strings.HasPrefix(entry, "*.") {
		if len(entry) <= 2 {
			return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
				"wildcard pattern must name a domain")
		}
		return nil
	}
	if strings.Contains(entry, "*") {
		return errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("allow-list entry %q: wildcard only allowed as *.domain or literal *", entry))
	}
	return nil
}

// Load reads a configuration file, dispatching on extension: .json for JSON,
// .yaml/.yml for YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "read file")
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapValidation(err, "Config", "Load", "parse json")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapValidation(err, "Config", "Load", "parse yaml")
		}
	default:
		return nil, errors.WrapValidation(errors.ErrInvalidConfig, "Config", "Load",
			fmt.Sprintf("unsupported config extension %q", filepath.Ext(path)))
	}

	return cfg, nil
}
