package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI fragments for the protocol contracts the client consumes.
const (
	ERC20ABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"decimals","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
	]`

	VaultABI = `[
		{"name":"depositCollateral","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenCollateralAddress","type":"address"},{"name":"amountCollateral","type":"uint256"}],"outputs":[]},
		{"name":"depositCollateralAndMintZusd","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenCollateralAddress","type":"address"},{"name":"amountCollateral","type":"uint256"},{"name":"amountZusdToMint","type":"uint256"}],"outputs":[]},
		{"name":"mintZusd","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amountZusdToMint","type":"uint256"}],"outputs":[]},
		{"name":"burnZusd","type":"function","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
		{"name":"redeemCollateral","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenCollateralAddress","type":"address"},{"name":"amountCollateral","type":"uint256"}],"outputs":[]},
		{"name":"redeemCollateralForZusd","type":"function","stateMutability":"nonpayable","inputs":[{"name":"tokenCollateralAddress","type":"address"},{"name":"amountCollateral","type":"uint256"},{"name":"amountZusdToBurn","type":"uint256"}],"outputs":[]},
		{"name":"liquidate","type":"function","stateMutability":"nonpayable","inputs":[{"name":"collateral","type":"address"},{"name":"user","type":"address"},{"name":"debtToCover","type":"uint256"}],"outputs":[]},
		{"name":"getUserCollateralBalance","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"token","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getMintedZusd","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getHealthFactor","type":"function","stateMutability":"view","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"getUsers","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]}
	]`

	NFTABI = `[
		{"name":"supportsInterface","type":"function","stateMutability":"view","inputs":[{"name":"interfaceId","type":"bytes4"}],"outputs":[{"name":"","type":"bool"}]},
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"tokenOfOwnerByIndex","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"tokenURI","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"string"}]},
		{"name":"ownerOf","type":"function","stateMutability":"view","inputs":[{"name":"tokenId","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
		{"name":"getEntryFee","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
		{"name":"tryLuck","type":"function","stateMutability":"nonpayable","inputs":[],"outputs":[]},
		{"name":"getAllPlayers","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
		{"name":"getRecentWinner","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
		{"name":"getRaffleState","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
		{"name":"Transfer","type":"event","anonymous":false,"inputs":[{"name":"from","type":"address","indexed":true},{"name":"to","type":"address","indexed":true},{"name":"tokenId","type":"uint256","indexed":true}]}
	]`

	CCIPRouterABI = `[
		{"name":"getFee","type":"function","stateMutability":"view","inputs":[{"name":"destinationChainSelector","type":"uint64"},{"name":"message","type":"tuple","components":[{"name":"receiver","type":"bytes"},{"name":"data","type":"bytes"},{"name":"tokenAmounts","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]},{"name":"feeToken","type":"address"},{"name":"extraArgs","type":"bytes"}]}],"outputs":[{"name":"fee","type":"uint256"}]},
		{"name":"ccipSend","type":"function","stateMutability":"payable","inputs":[{"name":"destinationChainSelector","type":"uint64"},{"name":"message","type":"tuple","components":[{"name":"receiver","type":"bytes"},{"name":"data","type":"bytes"},{"name":"tokenAmounts","type":"tuple[]","components":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}]},{"name":"feeToken","type":"address"},{"name":"extraArgs","type":"bytes"}]}],"outputs":[{"name":"","type":"bytes32"}]},
		{"name":"isChainSupported","type":"function","stateMutability":"view","inputs":[{"name":"chainSelector","type":"uint64"}],"outputs":[{"name":"supported","type":"bool"}]}
	]`
)

var (
	erc20ABI      = mustABI(ERC20ABI)
	vaultABI      = mustABI(VaultABI)
	nftABI        = mustABI(NFTABI)
	ccipRouterABI = mustABI(CCIPRouterABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractABI returns the parsed interface schema for a logical contract name.
func ContractABI(name string) (abi.ABI, bool) {
	switch name {
	case NameZUSD, NameWETH, NameWBTC:
		return erc20ABI, true
	case NameVault:
		return vaultABI, true
	case NameNFT:
		return nftABI, true
	case NameRouter:
		return ccipRouterABI, true
	default:
		return abi.ABI{}, false
	}
}
