// Package config loads and validates the router's YAML configuration,
// with environment-variable overrides layered on top. Grounded on
// Generativebots-ocx-backend-go-svc/internal/config/config.go's
// LoadConfig/applyEnvOverrides/getEnv* shape, adapted from yaml.v2 to
// yaml.v3 (the teacher's own dependency) and scoped to the router's
// configuration table (spec.md §6) instead of a multi-service backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cuemby/inferoute/pkg/breaker"
	"github.com/cuemby/inferoute/pkg/retry"
	"gopkg.in/yaml.v3"
)

// ErrConfigInvalid is the sentinel wrapped by every Validate failure.
var ErrConfigInvalid = errors.New("invalid configuration")

// RouterConfig is the full router configuration (spec.md §6).
type RouterConfig struct {
	ListenAddr string       `yaml:"listen_addr"`
	Policy     PolicyConfig `yaml:"policy"`

	Breaker breaker.Config `yaml:"-"`
	Retry   retry.Config   `yaml:"-"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	RetryPolicy    RetryConfig          `yaml:"retry"`
	Backpressure   BackpressureConfig   `yaml:"backpressure"`

	PDDisaggregated bool          `yaml:"pd_disaggregated"`
	HealthInterval  time.Duration `yaml:"health_check_interval"`
	HealthTimeout   time.Duration `yaml:"health_check_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`
}

// CircuitBreakerConfig mirrors spec.md §6's cb_* fields for YAML
// decoding; Into converts it to breaker.Config.
type CircuitBreakerConfig struct {
	Disabled         bool          `yaml:"disabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	WindowDuration   time.Duration `yaml:"window_duration"`
	TimeoutDuration  time.Duration `yaml:"timeout_duration"`
}

func (c CircuitBreakerConfig) Into() breaker.Config {
	cfg := breaker.DefaultConfig()
	cfg.Disabled = c.Disabled
	if c.FailureThreshold > 0 {
		cfg.FailureThreshold = c.FailureThreshold
	}
	if c.SuccessThreshold > 0 {
		cfg.SuccessThreshold = c.SuccessThreshold
	}
	if c.WindowDuration > 0 {
		cfg.WindowDuration = c.WindowDuration
	}
	if c.TimeoutDuration > 0 {
		cfg.TimeoutDuration = c.TimeoutDuration
	}
	return cfg
}

// RetryConfig mirrors spec.md §6's retry_* fields for YAML decoding.
type RetryConfig struct {
	Disabled       bool          `yaml:"disabled"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier"`
	JitterFactor   float64       `yaml:"jitter_factor"`
}

func (c RetryConfig) Into() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.Disabled = c.Disabled
	if c.MaxRetries >= 0 {
		cfg.MaxRetries = c.MaxRetries
	}
	if c.InitialBackoff > 0 {
		cfg.InitialBackoff = c.InitialBackoff
	}
	if c.MaxBackoff > 0 {
		cfg.MaxBackoff = c.MaxBackoff
	}
	if c.Multiplier > 0 {
		cfg.Multiplier = c.Multiplier
	}
	if c.JitterFactor >= 0 {
		cfg.JitterFactor = c.JitterFactor
	}
	return cfg
}

// BackpressureConfig bounds how much concurrent and queued work the
// gateway admits before shedding load with a 429 (spec.md §5). Setting
// MaxConcurrentRequests to 0 disables admission control entirely.
type BackpressureConfig struct {
	MaxConcurrentRequests int           `yaml:"max_concurrent_requests"`
	QueueSize             int           `yaml:"queue_size"`
	QueueTimeout          time.Duration `yaml:"queue_timeout_secs"`
}

// Default returns a RouterConfig with every field at its spec.md §6
// default, round-robin policy, breaker and retry enabled.
func Default() *RouterConfig {
	return &RouterConfig{
		ListenAddr:      ":8080",
		Policy:          DefaultPolicyConfig(),
		CircuitBreaker:  CircuitBreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, WindowDuration: 30 * time.Second, TimeoutDuration: 30 * time.Second},
		RetryPolicy:     RetryConfig{MaxRetries: 2, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 5 * time.Second, Multiplier: 2.0, JitterFactor: 0.2},
		Backpressure:    BackpressureConfig{MaxConcurrentRequests: 0, QueueSize: 100, QueueTimeout: 5 * time.Second},
		HealthInterval:  10 * time.Second,
		HealthTimeout:   2 * time.Second,
		LogLevel:        "info",
		LogJSON:         true,
	}
}

// Load reads and decodes a RouterConfig from a YAML file, then applies
// environment overrides and validates the result.
func Load(path string) (*RouterConfig, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("%w: parsing %s: %v", ErrConfigInvalid, path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.Breaker = cfg.CircuitBreaker.Into()
	cfg.Retry = cfg.RetryPolicy.Into()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides layers INFEROUTE_* environment variables on top of
// the decoded YAML, the way OCX's applyEnvOverrides layers its own
// service-prefixed variables.
func (c *RouterConfig) applyEnvOverrides() {
	c.ListenAddr = getEnv("INFEROUTE_LISTEN_ADDR", c.ListenAddr)
	c.LogLevel = getEnv("INFEROUTE_LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("INFEROUTE_LOG_JSON", c.LogJSON)
	c.PDDisaggregated = getEnvBool("INFEROUTE_PD_DISAGGREGATED", c.PDDisaggregated)

	if v := getEnvInt("INFEROUTE_CB_FAILURE_THRESHOLD", 0); v > 0 {
		c.CircuitBreaker.FailureThreshold = v
	}
	if v := getEnvInt("INFEROUTE_CB_SUCCESS_THRESHOLD", 0); v > 0 {
		c.CircuitBreaker.SuccessThreshold = v
	}
	c.CircuitBreaker.Disabled = getEnvBool("INFEROUTE_CB_DISABLED", c.CircuitBreaker.Disabled)

	if v := getEnvInt("INFEROUTE_RETRY_MAX_RETRIES", -1); v >= 0 {
		c.RetryPolicy.MaxRetries = v
	}
	c.RetryPolicy.Disabled = getEnvBool("INFEROUTE_RETRY_DISABLED", c.RetryPolicy.Disabled)

	if v := getEnvInt("INFEROUTE_MAX_CONCURRENT_REQUESTS", -1); v >= 0 {
		c.Backpressure.MaxConcurrentRequests = v
	}
	if v := getEnvInt("INFEROUTE_QUEUE_SIZE", 0); v > 0 {
		c.Backpressure.QueueSize = v
	}
}

// Validate rejects configurations that would make the router
// unable to start or behave undefined (spec.md §6 constraints).
func (c *RouterConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_addr must not be empty", ErrConfigInvalid)
	}
	if c.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("%w: circuit_breaker.failure_threshold must be >= 1", ErrConfigInvalid)
	}
	if c.CircuitBreaker.SuccessThreshold < 1 {
		return fmt.Errorf("%w: circuit_breaker.success_threshold must be >= 1", ErrConfigInvalid)
	}
	if c.RetryPolicy.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries must be >= 0", ErrConfigInvalid)
	}
	if c.RetryPolicy.JitterFactor < 0 || c.RetryPolicy.JitterFactor > 1 {
		return fmt.Errorf("%w: retry.jitter_factor must be in [0, 1]", ErrConfigInvalid)
	}
	if c.Backpressure.MaxConcurrentRequests < 0 {
		return fmt.Errorf("%w: backpressure.max_concurrent_requests must be >= 0", ErrConfigInvalid)
	}
	if c.Backpressure.MaxConcurrentRequests > 0 && c.Backpressure.QueueSize < 0 {
		return fmt.Errorf("%w: backpressure.queue_size must be >= 0", ErrConfigInvalid)
	}
	if _, err := BuildEngine(c.Policy); err != nil {
		return err
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
