package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Policy is the on-disk governance policy. Zero values leave the
// environment-derived defaults untouched.
//
//	gate_threshold: 65
//	default_token_budget: 50000
//	budgets:
//	  agent-123: 20000
type Policy struct {
	GateThreshold      float64          `yaml:"gate_threshold"`
	DefaultTokenBudget int64            `yaml:"default_token_budget"`
	Budgets            map[string]int64 `yaml:"budgets"`
}

// LoadPolicy reads and parses a YAML policy file.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML policy document and validates its values.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if p.GateThreshold < 0 || p.GateThreshold > 100 {
		return nil, fmt.Errorf("gate_threshold must be within 0-100, got %v", p.GateThreshold)
	}
	if p.DefaultTokenBudget < 0 {
		return nil, fmt.Errorf("default_token_budget must not be negative")
	}
	for agent, limit := range p.Budgets {
		if limit < 0 {
			return nil, fmt.Errorf("budget for %s must not be negative", agent)
		}
	}
	return &p, nil
}

// Apply overlays non-zero policy values onto the governance config.
func (p *Policy) Apply(cfg *GovernanceConfig) {
	if p.GateThreshold > 0 {
		cfg.GateThreshold = p.GateThreshold
	}
	if p.DefaultTokenBudget > 0 {
		cfg.DefaultTokenBudget = p.DefaultTokenBudget
	}
}
