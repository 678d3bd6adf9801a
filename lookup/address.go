package lookup

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// ErrBadAddress means a string is not a 0x-prefixed 40-digit hex address.
var ErrBadAddress = errors.New("malformed address")

// ParseAddress parses a 0x-prefixed hex address.
// Mixed-case checksums are accepted but not verified.
// The Hex method of the result gives the EIP-55 checksum form.
func ParseAddress(s string) (common.Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return common.Address{}, errors.Wrapf(ErrBadAddress, "%q lacks 0x prefix", s)
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, errors.Wrapf(ErrBadAddress, "%q", s)
	}
	return common.HexToAddress(s), nil
}
