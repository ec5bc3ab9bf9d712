package domain

import (
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	dErrors "visitorbook/pkg/domain-errors"
)

// ParseAmount parses a non-negative decimal amount of minimal-denomination
// units that fits in 256 bits.
func ParseAmount(s string) (*uint256.Int, error) {
	return parseUint256(s, "amount")
}

// ParseIndex parses a zero-based visitor index. Indices share the 256-bit
// range of the contract interface; callers bound-check against the list length.
func ParseIndex(s string) (*uint256.Int, error) {
	return parseUint256(s, "index")
}

// FormatAmount renders an amount in decimal.
func FormatAmount(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.ToBig().String()
}

func parseUint256(s, field string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, field+" cannot be empty")
	}
	b, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, field+" must be a decimal integer")
	}
	if b.Sign() < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, field+" must not be negative")
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return nil, dErrors.New(dErrors.CodeInvalidInput, field+" exceeds 256 bits")
	}
	return v, nil
}
