package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DevelopmentNetworks have no Safe deployed behind an RPC; the approver
// runs against the offline Safe instead.
var DevelopmentNetworks = []string{"hardhat", "localhost"}

// NetworkConfig is one entry of the networks file.
type NetworkConfig struct {
	ChainID               int64    `yaml:"chainId"`
	RPCURL                string   `yaml:"rpcUrl"`
	SafeAddress           string   `yaml:"safeAddress"`
	SafeVersion           string   `yaml:"safeVersion"`
	Admin                 string   `yaml:"admin"`
	Whitelist             []string `yaml:"whitelist"`
	AssetContracts        []string `yaml:"assetContracts"`
	Owners                []string `yaml:"owners"`
	TransactionValueLimit string   `yaml:"transactionValueLimit"` // ether
	BlockConfirmation     int      `yaml:"blockConfirmation"`
}

// LoadNetworks parses the networks file at path.
func LoadNetworks(path string) (map[string]NetworkConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseNetworks(raw)
}

// ParseNetworks parses networks YAML keyed by network name.
func ParseNetworks(raw []byte) (map[string]NetworkConfig, error) {
	networks := map[string]NetworkConfig{}
	if err := yaml.Unmarshal(raw, &networks); err != nil {
		return nil, fmt.Errorf("parse networks: %w", err)
	}
	for name, n := range networks {
		if n.ChainID <= 0 {
			return nil, fmt.Errorf("network %q: chainId is required", name)
		}
	}
	return networks, nil
}

// IsDevelopment reports whether name is a local development network.
func IsDevelopment(name string) bool {
	for _, n := range DevelopmentNetworks {
		if n == name {
			return true
		}
	}
	return false
}
