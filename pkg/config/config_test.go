package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProducesAValidConfig(t *testing.T) {
	cfg := Default()
	cfg.Breaker = cfg.CircuitBreaker.Into()
	cfg.Retry = cfg.RetryPolicy.Into()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected Default() to be valid, got %v", err)
	}
}

func TestLoadWithNoPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("expected default listen addr, got %q", cfg.ListenAddr)
	}
	if cfg.Policy.Kind != PolicyRoundRobin {
		t.Fatalf("expected default round_robin policy, got %q", cfg.Policy.Kind)
	}
}

func TestLoadDecodesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	yamlBody := `
listen_addr: ":9090"
policy:
  kind: power_of_two
circuit_breaker:
  failure_threshold: 10
`
	if err := os.WriteFile(path, []byte(yamlBody), 0o644); err != nil {
		t.Fatalf("failed to write test fixture: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Fatalf("expected listen_addr from file, got %q", cfg.ListenAddr)
	}
	if cfg.Policy.Kind != PolicyPowerOfTwo {
		t.Fatalf("expected power_of_two policy from file, got %q", cfg.Policy.Kind)
	}
	if cfg.CircuitBreaker.FailureThreshold != 10 {
		t.Fatalf("expected failure_threshold 10 from file, got %d", cfg.CircuitBreaker.FailureThreshold)
	}
}

func TestLoadReturnsErrorForMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/router.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("INFEROUTE_LISTEN_ADDR", ":7777")
	t.Setenv("INFEROUTE_PD_DISAGGREGATED", "true")
	t.Setenv("INFEROUTE_CB_FAILURE_THRESHOLD", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Fatalf("expected env override of listen_addr, got %q", cfg.ListenAddr)
	}
	if !cfg.PDDisaggregated {
		t.Fatal("expected env override to enable pd_disaggregated")
	}
	if cfg.CircuitBreaker.FailureThreshold != 9 {
		t.Fatalf("expected env override of failure_threshold, got %d", cfg.CircuitBreaker.FailureThreshold)
	}
}

func TestValidateRejectsEmptyListenAddr(t *testing.T) {
	cfg := Default()
	cfg.ListenAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty listen_addr")
	}
}

func TestValidateRejectsJitterFactorOutOfBounds(t *testing.T) {
	cfg := Default()
	cfg.RetryPolicy.JitterFactor = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for jitter_factor > 1")
	}
}

func TestValidateRejectsUnknownPolicyKind(t *testing.T) {
	cfg := Default()
	cfg.Policy.Kind = PolicyKind("not_a_real_policy")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for an unknown policy kind")
	}
}

func TestValidateRejectsNegativeMaxConcurrentRequests(t *testing.T) {
	cfg := Default()
	cfg.Backpressure.MaxConcurrentRequests = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative max_concurrent_requests")
	}
}

func TestValidateRejectsNegativeQueueSizeWhenBackpressureEnabled(t *testing.T) {
	cfg := Default()
	cfg.Backpressure.MaxConcurrentRequests = 10
	cfg.Backpressure.QueueSize = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative queue_size with backpressure enabled")
	}
}
