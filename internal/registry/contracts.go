package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zephyra-labs/zephyra-cli/internal/id"
)

// Logical contract names.
const (
	NameZUSD   = "zusd"
	NameVault  = "vault"
	NameWETH   = "weth"
	NameWBTC   = "wbtc"
	NameNFT    = "nft"
	NameRouter = "router"
)

var knownNames = []string{NameZUSD, NameVault, NameWETH, NameWBTC, NameNFT, NameRouter}

// CollateralNames is the display order of collateral assets.
var CollateralNames = []string{NameWETH, NameWBTC}

// Deployment is the address book for one chain. Missing entries are allowed;
// resolving them fails with MissingAddress.
type Deployment struct {
	Network   id.Network
	Contracts map[string]common.Address
}

// Canonical deployments by chain ID. Protocol contracts without a published
// address are supplied through config (contracts.<name>).
var deploymentsByChainID = map[int64]map[string]string{
	11155111: {
		NameRouter: "0x0BF3dE8c5D3e8A2B34D2BEeB17ABfCeBaf363A59",
	},
	84532: {
		NameRouter: "0xD3b06cEbF099CE7DA4AcCf578aaebFDBd6e88a93",
		NameZUSD:   "0xae4f4c9997f6d3ec6378e7365b5e587126907306",
	},
	43113: {
		NameRouter: "0xF694E193200268f9a4868e4Aa017A0118C9a8177",
		NameZUSD:   "0x2b0f837b3a3d7210e296529c99ce46f5d1d90043",
	},
}

// DefaultDeployment returns the built-in address book for a network.
func DefaultDeployment(network id.Network) Deployment {
	d := Deployment{Network: network, Contracts: map[string]common.Address{}}
	for name, addr := range deploymentsByChainID[network.ChainID] {
		d.Contracts[name] = common.HexToAddress(addr)
	}
	return d
}

// WithOverrides layers user-configured addresses over the built-in ones.
// An empty override removes the entry.
func (d Deployment) WithOverrides(overrides map[string]string) (Deployment, error) {
	out := Deployment{Network: d.Network, Contracts: make(map[string]common.Address, len(d.Contracts)+len(overrides))}
	for name, addr := range d.Contracts {
		out.Contracts[name] = addr
	}
	for rawName, rawAddr := range overrides {
		name := strings.ToLower(strings.TrimSpace(rawName))
		if !isKnownName(name) {
			return Deployment{}, fmt.Errorf("unknown contract name %q (expected one of %s)", rawName, strings.Join(knownNames, ", "))
		}
		addr := strings.TrimSpace(rawAddr)
		if addr == "" {
			delete(out.Contracts, name)
			continue
		}
		if !common.IsHexAddress(addr) {
			return Deployment{}, fmt.Errorf("contract %s: invalid address %q", name, rawAddr)
		}
		out.Contracts[name] = common.HexToAddress(addr)
	}
	return out, nil
}

// Names lists configured logical names in a stable order.
func (d Deployment) Names() []string {
	out := make([]string, 0, len(d.Contracts))
	for name := range d.Contracts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func isKnownName(name string) bool {
	for _, known := range knownNames {
		if known == name {
			return true
		}
	}
	return false
}
