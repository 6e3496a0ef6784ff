package id

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
)

// Network describes a chain the client can connect to or bridge towards.
type Network struct {
	Name    string
	Slug    string
	ChainID int64
	// CCIPSelector is the Chainlink CCIP chain selector; zero when the chain is
	// not a supported bridge destination.
	CCIPSelector uint64
}

func (n Network) Label() string {
	if n.Name == "" {
		return fmt.Sprintf("chain %d", n.ChainID)
	}
	return n.Name
}

// AssetDescriptor is immutable once loaded for a deployment.
type AssetDescriptor struct {
	Symbol   string         `json:"symbol"`
	Address  common.Address `json:"address"`
	Decimals int            `json:"decimals"`
}

var networkBySlug = map[string]Network{
	"sepolia":      {Name: "Ethereum Sepolia", Slug: "sepolia", ChainID: 11155111, CCIPSelector: 16015286601757825753},
	"base-sepolia": {Name: "Base Sepolia", Slug: "base-sepolia", ChainID: 84532, CCIPSelector: 10344971235874465080},
	"fuji":         {Name: "Avalanche Fuji", Slug: "fuji", ChainID: 43113, CCIPSelector: 14767482510784806043},
}

var networkAliases = map[string]string{
	"ethereum-sepolia": "sepolia",
	"eth-sepolia":      "sepolia",
	"basesepolia":      "base-sepolia",
	"avalanche-fuji":   "fuji",
	"avax-fuji":        "fuji",
}

var networkByChainID = func() map[int64]Network {
	out := make(map[int64]Network, len(networkBySlug))
	for _, n := range networkBySlug {
		out[n.ChainID] = n
	}
	return out
}()

// ParseNetwork accepts a slug, an alias or a decimal chain id. Unknown numeric
// chain ids resolve to an unnamed network so custom deployments still work.
func ParseNetwork(input string) (Network, error) {
	clean := strings.ToLower(strings.TrimSpace(input))
	if clean == "" {
		return Network{}, clierr.New(clierr.CodeUsage, "network is required")
	}
	if alias, ok := networkAliases[clean]; ok {
		clean = alias
	}
	if n, ok := networkBySlug[clean]; ok {
		return n, nil
	}
	if chainID, err := strconv.ParseInt(clean, 10, 64); err == nil && chainID > 0 {
		if n, ok := networkByChainID[chainID]; ok {
			return n, nil
		}
		return Network{ChainID: chainID, Slug: clean}, nil
	}
	return Network{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("unsupported network %q", input))
}

func NetworkByChainID(chainID int64) (Network, bool) {
	n, ok := networkByChainID[chainID]
	return n, ok
}

// BridgeDestinations lists every network with a CCIP selector, ordered by name.
func BridgeDestinations() []Network {
	out := make([]Network, 0, len(networkBySlug))
	for _, n := range networkBySlug {
		if n.CCIPSelector != 0 {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// DestinationBySelector resolves a bridge destination from its CCIP selector.
func DestinationBySelector(selector uint64) (Network, bool) {
	for _, n := range networkBySlug {
		if n.CCIPSelector == selector {
			return n, true
		}
	}
	return Network{}, false
}

// ParseDestination accepts a network slug/alias or a raw CCIP selector.
func ParseDestination(input string) (Network, error) {
	clean := strings.TrimSpace(input)
	if selector, err := strconv.ParseUint(clean, 10, 64); err == nil {
		if n, ok := DestinationBySelector(selector); ok {
			return n, nil
		}
	}
	n, err := ParseNetwork(clean)
	if err != nil {
		return Network{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("unsupported destination %q", input))
	}
	if n.CCIPSelector == 0 {
		return Network{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s is not a bridge destination", n.Label()))
	}
	return n, nil
}

// ParseAddress validates a hex EVM address.
func ParseAddress(field, input string) (common.Address, error) {
	clean := strings.TrimSpace(input)
	if !common.IsHexAddress(clean) {
		return common.Address{}, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s must be a valid EVM address", field))
	}
	return common.HexToAddress(clean), nil
}
