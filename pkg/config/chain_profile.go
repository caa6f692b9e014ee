package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainProfile describes one anchoring target: the ledger's identity and
// the submission policy against it.
type ChainProfile struct {
	Name             string `yaml:"name" json:"name"`
	ChainID          string `yaml:"chain_id" json:"chain_id"`
	RPCEndpoint      string `yaml:"rpc_endpoint,omitempty" json:"rpc_endpoint,omitempty"`
	MinConfirmations int    `yaml:"min_confirmations,omitempty" json:"min_confirmations,omitempty"`
	AnchorIntervalMs int    `yaml:"anchor_interval_ms,omitempty" json:"anchor_interval_ms,omitempty"`
	LiveConfirmation bool   `yaml:"live_confirmation,omitempty" json:"live_confirmation,omitempty"`
}

// AnchorInterval returns the submission spacing as a duration.
func (p *ChainProfile) AnchorInterval() time.Duration {
	return time.Duration(p.AnchorIntervalMs) * time.Millisecond
}

// LoadChainProfile loads a chain profile from a YAML file.
func LoadChainProfile(path string) (*ChainProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read chain profile: %w", err)
	}

	var p ChainProfile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("config: parse chain profile %s: %w", path, err)
	}
	if p.ChainID == "" {
		return nil, fmt.Errorf("config: chain profile %s: chain_id is required", path)
	}
	return &p, nil
}
