// Package config loads approver configuration from environment / .env file,
// layered over the per-network defaults in the networks file.
package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/gipsh/safe-approver-go/internal/units"
)

// ── Config fields (populated by Load) ───────────────────────────────────
var (
	// Network
	Network      string
	NetworksFile string
	RPCURL       string
	ChainID      *big.Int
	SafeVersion  string

	// Policy
	SafeAddress    common.Address
	AdminAddress   common.Address
	Limit          *big.Int // wei
	Whitelist      []common.Address
	AssetContracts []common.Address
	SafeOwners     []common.Address // offline mode only

	// Server
	ListenAddr     string
	CallTimeoutSec int
	AuthMaxSkewSec int

	// Client
	ApproverURL string
	PrivateKey  string

	LogLevel string
)

// Load reads .env (if present) then the selected network entry, then lets
// OS env vars override individual fields.
func Load() error {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using OS environment")
	}

	Network = getEnv("NETWORK", "localhost")
	NetworksFile = getEnv("NETWORKS_FILE", "networks.yaml")
	LogLevel = getEnv("LOG_LEVEL", "INFO")

	net := NetworkConfig{ChainID: 31337, SafeVersion: "1.3.0", TransactionValueLimit: "0"}
	if networks, err := LoadNetworks(NetworksFile); err == nil {
		n, ok := networks[Network]
		if !ok {
			return fmt.Errorf("network %q not found in %s", Network, NetworksFile)
		}
		net = n
	} else if !os.IsNotExist(err) {
		return err
	} else {
		log.Printf("[config] %s not found, using environment only", NetworksFile)
	}

	RPCURL = getEnv("RPC_URL", net.RPCURL)
	ChainID = big.NewInt(int64(getEnvInt("CHAIN_ID", int(net.ChainID))))
	SafeVersion = getEnv("SAFE_VERSION", orDefault(net.SafeVersion, "1.3.0"))

	var err error
	if SafeAddress, err = parseAddress("SAFE_ADDRESS", getEnv("SAFE_ADDRESS", net.SafeAddress)); err != nil {
		return err
	}
	if AdminAddress, err = parseAddress("ADMIN_ADDRESS", getEnv("ADMIN_ADDRESS", net.Admin)); err != nil {
		return err
	}
	if Limit, err = units.ParseEther(getEnv("TRANSACTION_VALUE_LIMIT", orDefault(net.TransactionValueLimit, "0"))); err != nil {
		return fmt.Errorf("TRANSACTION_VALUE_LIMIT: %w", err)
	}
	if Whitelist, err = getEnvAddresses("WHITELIST", net.Whitelist); err != nil {
		return err
	}
	if AssetContracts, err = getEnvAddresses("ASSET_CONTRACTS", net.AssetContracts); err != nil {
		return err
	}
	if SafeOwners, err = getEnvAddresses("SAFE_OWNERS", net.Owners); err != nil {
		return err
	}

	ListenAddr = getEnv("LISTEN_ADDR", ":8080")
	CallTimeoutSec = getEnvInt("CALL_TIMEOUT_SEC", 15)
	AuthMaxSkewSec = getEnvInt("AUTH_MAX_SKEW_SEC", 300)

	ApproverURL = getEnv("APPROVER_URL", "http://localhost:8080")
	PrivateKey = getEnv("PRIVATE_KEY", "")
	return nil
}

// Debug reports whether LOG_LEVEL asks for oracle call logging.
func Debug() bool {
	return strings.EqualFold(LogLevel, "DEBUG")
}

// ── Helpers ──────────────────────────────────────────────────────────────

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvAddresses parses a comma-separated address list, falling back to
// the network file entries when the variable is unset.
func getEnvAddresses(key string, fallback []string) ([]common.Address, error) {
	raw := fallback
	if v, ok := os.LookupEnv(key); ok {
		raw = strings.Split(v, ",")
	}
	return ParseAddresses(key, raw)
}

// ParseAddresses validates and converts hex addresses, skipping blanks.
func ParseAddresses(field string, raw []string) ([]common.Address, error) {
	out := []common.Address{}
	for _, s := range raw {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		addr, err := parseAddress(field, s)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func parseAddress(field, s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
