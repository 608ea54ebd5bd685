package amp

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file and environment form of the client options.
type Config struct {
	Key        string                `yaml:"key"`
	Domain     string                `yaml:"domain"`
	APIPath    string                `yaml:"api_path"`
	UserID     string                `yaml:"user_id"`
	Timeout    time.Duration         `yaml:"timeout"`
	SessionTTL time.Duration         `yaml:"session_ttl"`
	Agents     map[string]float64    `yaml:"agents"`
	Breaker    *CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit  *RateLimitConfig      `yaml:"rate_limit"`
	Metrics    bool                  `yaml:"metrics"`

	// BuiltinEvents lists events run on every new session, e.g. AmpSession.
	BuiltinEvents []string `yaml:"builtin_events"`
	// HistoryLimit overrides DefaultHistoryLimit; 0 disables history.
	HistoryLimit *int `yaml:"history_limit"`
}

// LoadConfig reads a YAML config file. ${VAR} references are expanded from
// the environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ClientError{Type: ErrorTypeConfig, Message: "read config", Cause: err, Timestamp: time.Now()}
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML config bytes.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, &ClientError{Type: ErrorTypeConfig, Message: "parse config", Cause: err, Timestamp: time.Now()}
	}
	return &cfg, nil
}

// Environment variables read by ConfigFromEnv.
const (
	EnvKey        = "AMP_KEY"
	EnvDomain     = "AMP_DOMAIN"
	EnvAPIPath    = "AMP_API_PATH"
	EnvUserID     = "AMP_USER_ID"
	EnvTimeout    = "AMP_TIMEOUT"
	EnvSessionTTL = "AMP_SESSION_TTL"
	EnvAgents     = "AMP_AGENTS"
)

// ConfigFromEnv builds a Config from AMP_* variables. AMP_AGENTS is a comma
// separated list of url=weight pairs; a bare url has weight 1.
func ConfigFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the variables lookup finds.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []string

	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return
		}
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			return
		}
		*dst = d
	}

	str(EnvKey, &c.Key)
	str(EnvDomain, &c.Domain)
	str(EnvAPIPath, &c.APIPath)
	str(EnvUserID, &c.UserID)
	dur(EnvTimeout, &c.Timeout)
	dur(EnvSessionTTL, &c.SessionTTL)

	if v, ok := lookup(EnvAgents); ok && v != "" {
		agents, err := ParseAgents(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", EnvAgents, err))
		} else {
			c.Agents = agents
		}
	}

	if len(errs) > 0 {
		return &ClientError{
			Type:      ErrorTypeConfig,
			Message:   "invalid environment",
			Cause:     fmt.Errorf("%s", strings.Join(errs, "; ")),
			Timestamp: time.Now(),
		}
	}
	return nil
}

// ParseAgents parses "url=weight,url=weight". Weights default to 1.
func ParseAgents(s string) (map[string]float64, error) {
	agents := make(map[string]float64)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		agent, weight := part, 1.0
		if i := strings.LastIndex(part, "="); i > 0 {
			w, err := strconv.ParseFloat(strings.TrimSpace(part[i+1:]), 64)
			if err != nil {
				return nil, fmt.Errorf("agent %q: bad weight: %w", part[:i], err)
			}
			agent, weight = strings.TrimSpace(part[:i]), w
		}
		agents[agent] = weight
	}
	return agents, nil
}

// ParseDuration accepts Go durations and bare integers as milliseconds.
func ParseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

// Options converts the config into client options. Zero fields are skipped
// so that defaults apply.
func (c *Config) Options() []Option {
	if c == nil {
		return nil
	}

	var opts []Option
	if c.Key != "" {
		opts = append(opts, WithKey(c.Key))
	}
	if c.Domain != "" {
		opts = append(opts, WithDomain(c.Domain))
	}
	if c.APIPath != "" {
		opts = append(opts, WithAPIPath(c.APIPath))
	}
	if c.UserID != "" {
		opts = append(opts, WithDefaultUserID(c.UserID))
	}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.SessionTTL > 0 {
		opts = append(opts, WithDefaultSessionTTL(c.SessionTTL))
	}
	if len(c.Agents) > 0 {
		opts = append(opts, WithAgents(c.Agents))
	}
	if c.Breaker != nil {
		opts = append(opts, WithCircuitBreaker(*c.Breaker))
	}
	if c.RateLimit != nil {
		opts = append(opts, WithRateLimit(c.RateLimit.MaxTokens, c.RateLimit.RefillRate))
	}
	if c.Metrics {
		opts = append(opts, WithMetrics())
	}
	if len(c.BuiltinEvents) > 0 {
		opts = append(opts, WithBuiltinEvents(c.BuiltinEvents...))
	}
	if c.HistoryLimit != nil {
		opts = append(opts, WithHistoryLimit(*c.HistoryLimit))
	}
	return opts
}
