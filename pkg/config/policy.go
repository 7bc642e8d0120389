package config

import (
	"fmt"
	"time"

	"github.com/cuemby/inferoute/pkg/policy"
)

// PolicyKind enumerates the PolicyConfig tagged variant (spec.md §3).
type PolicyKind string

const (
	PolicyRandom          PolicyKind = "random"
	PolicyRoundRobin      PolicyKind = "round_robin"
	PolicyPowerOfTwo      PolicyKind = "power_of_two"
	PolicyConsistentHash  PolicyKind = "consistent_hash"
	PolicyCacheAware      PolicyKind = "cache_aware"
)

// PolicyConfig is the tagged variant from spec.md §3. Only the fields
// relevant to Kind are read; the rest are ignored, the way a sum type's
// unused variant fields would be.
type PolicyConfig struct {
	Kind PolicyKind `yaml:"kind"`

	// PowerOfTwo
	LoadCheckInterval time.Duration `yaml:"load_check_interval"`

	// ConsistentHash
	VirtualNodes int `yaml:"virtual_nodes"`

	// CacheAware
	CacheThreshold      float64       `yaml:"cache_threshold"`
	BalanceAbsThreshold int64         `yaml:"balance_abs_threshold"`
	BalanceRelThreshold float64       `yaml:"balance_rel_threshold"`
	EvictionInterval    time.Duration `yaml:"eviction_interval"`
	MaxTreeSize         int           `yaml:"max_tree_size"`
}

// DefaultPolicyConfig returns a RoundRobin policy, the safest
// zero-state default (no session affinity assumptions, even
// distribution).
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{Kind: PolicyRoundRobin}
}

// BuildEngine constructs the concrete policy.Engine for a PolicyConfig.
func BuildEngine(cfg PolicyConfig) (policy.Engine, error) {
	switch cfg.Kind {
	case "", PolicyRandom:
		return policy.NewRandom(), nil
	case PolicyRoundRobin:
		return policy.NewRoundRobin(), nil
	case PolicyPowerOfTwo:
		interval := cfg.LoadCheckInterval
		if interval <= 0 {
			interval = 5 * time.Second
		}
		return policy.NewPowerOfTwo(interval), nil
	case PolicyConsistentHash:
		nodes := cfg.VirtualNodes
		if nodes <= 0 {
			nodes = 160
		}
		return policy.NewConsistentHash(nodes), nil
	case PolicyCacheAware:
		caCfg := policy.DefaultCacheAwareConfig()
		if cfg.CacheThreshold > 0 {
			caCfg.CacheThreshold = cfg.CacheThreshold
		}
		if cfg.BalanceAbsThreshold > 0 {
			caCfg.BalanceAbsThreshold = cfg.BalanceAbsThreshold
		}
		if cfg.BalanceRelThreshold > 0 {
			caCfg.BalanceRelThreshold = cfg.BalanceRelThreshold
		}
		if cfg.EvictionInterval > 0 {
			caCfg.EvictionInterval = cfg.EvictionInterval
		}
		if cfg.MaxTreeSize > 0 {
			caCfg.MaxTreeSize = cfg.MaxTreeSize
		}
		return policy.NewCacheAware(caCfg), nil
	default:
		return nil, fmt.Errorf("%w: unknown policy kind %q", ErrConfigInvalid, cfg.Kind)
	}
}
