package registry

import (
	"fmt"
	"strings"
)

// Canonical default RPC endpoints by chain ID.
// These values are used whenever neither config nor --rpc-url provide one.
var defaultRPCByChainID = map[int64]string{
	11155111: "https://ethereum-sepolia-rpc.publicnode.com",
	84532:    "https://sepolia.base.org",
	43113:    "https://api.avax-test.network/ext/bc/C/rpc",
}

func DefaultRPCURL(chainID int64) (string, bool) {
	value, ok := defaultRPCByChainID[chainID]
	return value, ok
}

func ResolveRPCURL(override string, chainID int64) (string, error) {
	if strings.TrimSpace(override) != "" {
		return strings.TrimSpace(override), nil
	}
	if value, ok := DefaultRPCURL(chainID); ok {
		return value, nil
	}
	return "", fmt.Errorf("no default rpc configured for chain id %d; provide --rpc-url", chainID)
}
