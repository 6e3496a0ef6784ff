package model

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	// Stage is set on transaction failures: approval or action.
	Stage string `json:"stage,omitempty"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
	Network   string    `json:"network,omitempty"`
	Account   string    `json:"account,omitempty"`
	Partial   bool      `json:"partial"`
}

// Health factors are 1e18-scaled on chain.
var (
	HealthFactorScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// UnboundedRatio is the ratio above which a health factor is the vault's
	// "no debt" sentinel rather than a real number.
	UnboundedRatio = decimal.New(1, 10)
)

type HealthFactor struct {
	Raw       string `json:"raw"`
	Display   string `json:"display"`
	Unbounded bool   `json:"unbounded"`
}

// NewHealthFactor renders a raw health factor, truncated to 4 places.
func NewHealthFactor(raw *big.Int) HealthFactor {
	if raw == nil {
		raw = new(big.Int)
	}
	ratio := decimal.NewFromBigInt(raw, -18)
	if ratio.GreaterThan(UnboundedRatio) {
		return HealthFactor{Raw: raw.String(), Display: "unbounded", Unbounded: true}
	}
	return HealthFactor{Raw: raw.String(), Display: ratio.Truncate(4).StringFixed(4)}
}

// Liquidatable reports a health factor strictly below 1.0.
func Liquidatable(raw *big.Int) bool {
	return raw != nil && raw.Cmp(HealthFactorScale) < 0
}

type AssetAmount struct {
	Symbol    string `json:"symbol"`
	Address   string `json:"address"`
	Decimals  int    `json:"decimals"`
	Amount    string `json:"amount"`
	BaseUnits string `json:"base_units"`
}

type DashboardSnapshot struct {
	Address      string        `json:"address"`
	Network      string        `json:"network"`
	HealthFactor HealthFactor  `json:"health_factor"`
	MintedDebt   AssetAmount   `json:"minted_debt"`
	Collateral   []AssetAmount `json:"collateral"`
	Wallet       []AssetAmount `json:"wallet"`
	FetchedAt    time.Time     `json:"fetched_at"`
}

type NFTRecord struct {
	TokenID     string `json:"token_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image"`
	DecodeError string `json:"decode_error,omitempty"`
}

type NFTList struct {
	Owner    string      `json:"owner"`
	Contract string      `json:"contract"`
	Strategy string      `json:"strategy"`
	Tokens   []NFTRecord `json:"tokens"`
}

type RaffleStatus struct {
	State        string   `json:"state"`
	EntryFee     string   `json:"entry_fee"`
	EntryFeeWei  string   `json:"entry_fee_base_units"`
	Players      []string `json:"players"`
	RecentWinner string   `json:"recent_winner,omitempty"`
}

type MarketParticipant struct {
	Address      string        `json:"address"`
	Collateral   []AssetAmount `json:"collateral"`
	MintedDebt   AssetAmount   `json:"minted_debt"`
	HealthFactor HealthFactor  `json:"health_factor"`
	Eligible     bool          `json:"eligible"`
}

type BridgeQuote struct {
	Destination         string `json:"destination"`
	DestinationSelector string `json:"destination_selector"`
	Receiver            string `json:"receiver"`
	Amount              string `json:"amount"`
	AmountBaseUnits     string `json:"amount_base_units"`
	GasLimit            uint64 `json:"gas_limit"`
	FeeWei              string `json:"fee_wei"`
	Fee                 string `json:"fee"`
}

type BridgeTransfer struct {
	Quote          BridgeQuote `json:"quote"`
	OperationID    string      `json:"operation_id"`
	ApprovalTxHash string      `json:"approval_tx_hash,omitempty"`
	TxHash         string      `json:"tx_hash"`
	MessageID      string      `json:"message_id,omitempty"`
	ExplorerURL    string      `json:"explorer_url"`
}

type ChainInfo struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ChainID  int64  `json:"chain_id"`
	Selector string `json:"ccip_selector"`
}

type SessionStatus struct {
	Connected bool              `json:"connected"`
	Address   string            `json:"address,omitempty"`
	ChainID   int64             `json:"chain_id,omitempty"`
	Network   string            `json:"network,omitempty"`
	Contracts map[string]string `json:"contracts"`
}

type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}
