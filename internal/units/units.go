// Package units converts between ether-denominated decimal strings and wei.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of wei decimals in one ether.
const EtherDecimals = 18

// ParseEther converts a decimal ether amount ("0.1") to wei.
// Negative values and amounts finer than one wei are rejected.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse ether %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse ether %q: negative amount", s)
	}
	wei := d.Shift(EtherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("parse ether %q: more than %d decimals", s, EtherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as a decimal ether string without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}

// ParseAmount accepts either a wei integer ("100000000000000000") or an
// ether amount suffixed with "eth" ("0.1eth").
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if v, ok := strings.CutSuffix(s, "eth"); ok {
		return ParseEther(strings.TrimSpace(v))
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid wei amount %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("invalid wei amount %q: negative", s)
	}
	return n, nil
}
