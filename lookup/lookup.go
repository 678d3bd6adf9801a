// Package lookup makes the contract calls behind the bridge's token-balance and ENS lookups.
package lookup

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

//go:generate mockgen -destination=mocks/caller.go -package=mocks github.com/bobg/ethbs/lookup Caller

// Caller executes a read-only contract call (eth_call)
// and returns the raw ABI-encoded result.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// CallerFunc adapts a function to the Caller interface.
type CallerFunc func(context.Context, common.Address, []byte) ([]byte, error)

func (f CallerFunc) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return f(ctx, to, data)
}

var (
	// ErrShortReturn means a contract call returned less data than its ABI requires.
	ErrShortReturn = errors.New("short return data")

	// ErrNoResolver means the ENS registry has no resolver for a name.
	ErrNoResolver = errors.New("no resolver")
)

// Selector is the four-byte ABI function selector for a signature
// such as "balanceOf(address)".
func Selector(sig string) []byte {
	return ethcrypto.Keccak256([]byte(sig))[:4]
}

// The ERC-20 and ENS methods used here.
const contractsJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"resolver","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"addr","stateMutability":"view",
	 "inputs":[{"name":"node","type":"bytes32"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

var contracts = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(contractsJSON))
	if err != nil {
		panic(err)
	}
	return a
}()

// call invokes method on the contract at to
// and returns its single decoded result.
func call(ctx context.Context, c Caller, to common.Address, method string, args ...interface{}) (interface{}, error) {
	data, err := contracts.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s call", method)
	}
	ret, err := c.CallContract(ctx, to, data)
	if err != nil {
		return nil, errors.Wrapf(err, "calling %s on %s", method, to.Hex())
	}
	if len(ret) < 32 {
		return nil, errors.Wrapf(ErrShortReturn, "%d bytes from %s", len(ret), to.Hex())
	}
	out, err := contracts.Unpack(method, ret)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s result from %s", method, to.Hex())
	}
	return out[0], nil
}

// BalanceOf calls balanceOf(holder) on an ERC-20 token contract.
func BalanceOf(ctx context.Context, c Caller, token, holder common.Address) (*big.Int, error) {
	v, err := call(ctx, c, token, "balanceOf", holder)
	if err != nil {
		return nil, err
	}
	return v.(*big.Int), nil
}

// FormatUnits renders v as a decimal number with the given number of decimal places,
// dropping trailing zeroes in the fraction.
func FormatUnits(v *big.Int, decimals int) string {
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	if decimals > 0 {
		if len(s) <= decimals {
			s = strings.Repeat("0", decimals-len(s)+1) + s
		}
		whole, frac := s[:len(s)-decimals], strings.TrimRight(s[len(s)-decimals:], "0")
		s = whole
		if frac != "" {
			s += "." + frac
		}
	}
	if neg {
		s = "-" + s
	}
	return s
}
