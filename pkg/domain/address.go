package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"

	dErrors "visitorbook/pkg/domain-errors"
)

// ParseAddress constructs an account address from external input.
//
// Accepts 40 hex digits with or without the 0x prefix. Mixed-case input must
// carry a valid EIP-55 checksum; all-lower and all-upper input is accepted as is.
//
// Errors: returns CodeInvalidInput when the value is empty, malformed or
// fails the checksum.
func ParseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes of hex")
	}
	if !has0xPrefix(s) {
		s = "0x" + s
	}
	digits := s[2:]
	if strings.ToLower(digits) == digits || strings.ToUpper(digits) == digits {
		return common.HexToAddress(s), nil
	}
	mixed, err := common.NewMixedcaseAddressFromString(s)
	if err != nil {
		return common.Address{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid address")
	}
	if !mixed.ValidChecksum() {
		return common.Address{}, dErrors.New(dErrors.CodeInvalidInput, "address checksum mismatch")
	}
	return mixed.Address(), nil
}

// IsZeroAddress reports whether addr is the all-zero address, which never
// identifies a caller.
func IsZeroAddress(addr common.Address) bool {
	return addr == (common.Address{})
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
