package id

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	clierr "github.com/zephyra-labs/zephyra-cli/internal/errors"
)

// StablecoinDecimals is the fixed exponent of ZUSD. Collateral exponents are
// read from the token contract and must never be assumed.
const StablecoinDecimals = 18

var decimalPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ToBaseUnits converts a user-facing decimal string into integer base units.
// Trailing zeros past the exponent are accepted; significant digits are not.
func ToBaseUnits(value string, exponent int) (*big.Int, error) {
	clean := strings.TrimSpace(value)
	if exponent < 0 {
		return nil, clierr.New(clierr.CodeInvalidAmount, "decimals must be >= 0")
	}
	if !decimalPattern.MatchString(clean) {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q must be a non-negative decimal like 1.23", value))
	}
	intPart, fracPart, _ := strings.Cut(clean, ".")
	fracPart = strings.TrimRight(fracPart, "0")
	if len(fracPart) > exponent {
		return nil, clierr.New(clierr.CodeInvalidAmount, fmt.Sprintf("amount %q exceeds token precision (%d decimals)", value, exponent))
	}
	normalized := intPart
	if fracPart != "" {
		normalized += "." + fracPart
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInvalidAmount, "parse amount", err)
	}
	return d.Shift(int32(exponent)).BigInt(), nil
}

// FromBaseUnits is exact; display truncation happens in FormatUnits.
func FromBaseUnits(value *big.Int, exponent int) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -int32(exponent))
}

// FormatUnits renders base units with at most places fractional digits,
// truncating toward zero.
func FormatUnits(value *big.Int, exponent, places int) string {
	d := FromBaseUnits(value, exponent)
	if places >= 0 {
		d = d.Truncate(int32(places))
	}
	return d.String()
}

// ParsePositiveAmount is the entry check every state-changing action runs
// before it touches a contract handle.
func ParsePositiveAmount(field, value string, exponent int) (*big.Int, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return nil, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s is required", field))
	}
	if strings.HasPrefix(clean, "-") {
		return nil, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s must be positive, got %s", field, clean))
	}
	amount, err := ToBaseUnits(clean, exponent)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodePreconditionFailed, fmt.Sprintf("invalid %s", field), err)
	}
	if amount.Sign() <= 0 {
		return nil, clierr.New(clierr.CodePreconditionFailed, fmt.Sprintf("%s must be greater than zero", field))
	}
	return amount, nil
}
