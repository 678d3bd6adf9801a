package ethbs

import (
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/pkg/errors"
)

// Block is the record of one mirrored chain block.
// It is immutable once created.
type Block struct {
	CID    string `json:"cid"`    // content identifier of the stored header
	Hash   string `json:"hash"`   // the chain's own hash of the block
	Number uint64 `json:"number"` // height
}

// Quantity is an integer as it appears in JSON-RPC payloads:
// a 0x-prefixed hex string, or a plain decimal string.
type Quantity string

func (q Quantity) isHex() bool {
	return strings.HasPrefix(string(q), "0x") || strings.HasPrefix(string(q), "0X")
}

// decimal reports whether q is a non-empty run of decimal digits.
func (q Quantity) decimal() bool {
	if q == "" {
		return false
	}
	for _, c := range q {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Uint64 parses q.
// Hex quantities follow the JSON-RPC rules
// (no leading zero digits, at most 64 bits).
func (q Quantity) Uint64() (uint64, error) {
	if q.isHex() {
		n, err := hexutil.DecodeUint64(string(q))
		if err != nil {
			return 0, errors.Wrapf(ErrBadQuantity, "%q: %s", string(q), err)
		}
		return n, nil
	}
	if !q.decimal() {
		return 0, errors.Wrapf(ErrBadQuantity, "%q", string(q))
	}
	n, err := strconv.ParseUint(string(q), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(ErrBadQuantity, "%q: %s", string(q), err)
	}
	return n, nil
}

// Big parses q as a 256-bit quantity.
func (q Quantity) Big() (*big.Int, error) {
	if q.isHex() {
		n, err := hexutil.DecodeBig(string(q))
		if err != nil {
			return nil, errors.Wrapf(ErrBadQuantity, "%q: %s", string(q), err)
		}
		return n, nil
	}
	if !q.decimal() {
		return nil, errors.Wrapf(ErrBadQuantity, "%q", string(q))
	}
	n, ok := new(big.Int).SetString(string(q), 10)
	if !ok || n.BitLen() > 256 {
		return nil, errors.Wrapf(ErrBadQuantity, "%q", string(q))
	}
	return n, nil
}

// BlockParams is a block as reported by an Ethereum JSON-RPC block tracker.
// Fields introduced by later forks are empty for blocks that predate them.
type BlockParams struct {
	Number           Quantity `json:"number"`
	Hash             string   `json:"hash"`
	ParentHash       string   `json:"parentHash"`
	Sha3Uncles       string   `json:"sha3Uncles"`
	Miner            string   `json:"miner"`
	StateRoot        string   `json:"stateRoot"`
	TransactionsRoot string   `json:"transactionsRoot"`
	ReceiptsRoot     string   `json:"receiptsRoot"`
	LogsBloom        string   `json:"logsBloom"`
	Difficulty       Quantity `json:"difficulty"`
	GasLimit         Quantity `json:"gasLimit"`
	GasUsed          Quantity `json:"gasUsed"`
	Timestamp        Quantity `json:"timestamp"`
	ExtraData        string   `json:"extraData"`
	MixHash          string   `json:"mixHash"`
	Nonce            string   `json:"nonce"`

	BaseFeePerGas         Quantity `json:"baseFeePerGas,omitempty"`
	WithdrawalsRoot       string   `json:"withdrawalsRoot,omitempty"`
	BlobGasUsed           Quantity `json:"blobGasUsed,omitempty"`
	ExcessBlobGas         Quantity `json:"excessBlobGas,omitempty"`
	ParentBeaconBlockRoot string   `json:"parentBeaconBlockRoot,omitempty"`
	RequestsHash          string   `json:"requestsHash,omitempty"`
}

// HeaderFromParams converts RPC block params to a chain header.
// The block number is required;
// other absent fields take their zero values.
// If p carries a hash,
// the header must hash to it or ErrHashMismatch results.
func HeaderFromParams(p BlockParams) (*gethtypes.Header, error) {
	number, err := p.Number.Uint64()
	if err != nil {
		return nil, errors.Wrap(err, "parsing block number")
	}
	h := &gethtypes.Header{
		Number:     new(big.Int).SetUint64(number),
		Difficulty: new(big.Int),
	}

	if p.Difficulty != "" {
		if h.Difficulty, err = p.Difficulty.Big(); err != nil {
			return nil, errors.Wrap(err, "parsing difficulty")
		}
	}

	quantities := []struct {
		name string
		q    Quantity
		dst  *uint64
	}{
		{"gasLimit", p.GasLimit, &h.GasLimit},
		{"gasUsed", p.GasUsed, &h.GasUsed},
		{"timestamp", p.Timestamp, &h.Time},
	}
	for _, qq := range quantities {
		if qq.q == "" {
			continue
		}
		if *qq.dst, err = qq.q.Uint64(); err != nil {
			return nil, errors.Wrapf(err, "parsing %s", qq.name)
		}
	}

	fixed := []struct {
		name string
		s    string
		dst  interface{ UnmarshalText([]byte) error }
	}{
		{"parentHash", p.ParentHash, &h.ParentHash},
		{"sha3Uncles", p.Sha3Uncles, &h.UncleHash},
		{"miner", p.Miner, &h.Coinbase},
		{"stateRoot", p.StateRoot, &h.Root},
		{"transactionsRoot", p.TransactionsRoot, &h.TxHash},
		{"receiptsRoot", p.ReceiptsRoot, &h.ReceiptHash},
		{"logsBloom", p.LogsBloom, &h.Bloom},
		{"mixHash", p.MixHash, &h.MixDigest},
		{"nonce", p.Nonce, &h.Nonce},
	}
	for _, f := range fixed {
		if f.s == "" {
			continue
		}
		if err = f.dst.UnmarshalText([]byte(f.s)); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", f.name)
		}
	}

	if p.ExtraData != "" {
		if h.Extra, err = hexutil.Decode(p.ExtraData); err != nil {
			return nil, errors.Wrap(err, "decoding extraData")
		}
	}

	if p.BaseFeePerGas != "" {
		if h.BaseFee, err = p.BaseFeePerGas.Big(); err != nil {
			return nil, errors.Wrap(err, "parsing baseFeePerGas")
		}
	}
	if h.WithdrawalsHash, err = optionalHash(p.WithdrawalsRoot); err != nil {
		return nil, errors.Wrap(err, "decoding withdrawalsRoot")
	}
	if h.BlobGasUsed, err = optionalUint64(p.BlobGasUsed); err != nil {
		return nil, errors.Wrap(err, "parsing blobGasUsed")
	}
	if h.ExcessBlobGas, err = optionalUint64(p.ExcessBlobGas); err != nil {
		return nil, errors.Wrap(err, "parsing excessBlobGas")
	}
	if h.ParentBeaconRoot, err = optionalHash(p.ParentBeaconBlockRoot); err != nil {
		return nil, errors.Wrap(err, "decoding parentBeaconBlockRoot")
	}
	if h.RequestsHash, err = optionalHash(p.RequestsHash); err != nil {
		return nil, errors.Wrap(err, "decoding requestsHash")
	}

	if p.Hash != "" {
		var want common.Hash
		if err = want.UnmarshalText([]byte(p.Hash)); err != nil {
			return nil, errors.Wrap(err, "decoding hash")
		}
		if got := h.Hash(); got != want {
			return nil, errors.Wrapf(ErrHashMismatch, "block %d: header hashes to %s, reported %s", number, got, want)
		}
	}

	return h, nil
}

func optionalHash(s string) (*common.Hash, error) {
	if s == "" {
		return nil, nil
	}
	var h common.Hash
	if err := h.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return &h, nil
}

func optionalUint64(q Quantity) (*uint64, error) {
	if q == "" {
		return nil, nil
	}
	n, err := q.Uint64()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// EncodeHeader produces the canonical binary form of h,
// its RLP encoding.
// The keccak-256 digest of the result is h.Hash().
func EncodeHeader(h *gethtypes.Header) ([]byte, error) {
	b, err := rlp.EncodeToBytes(h)
	return b, errors.Wrap(err, "encoding header")
}

// DecodeHeader parses the canonical form produced by EncodeHeader.
func DecodeHeader(b []byte) (*gethtypes.Header, error) {
	h := new(gethtypes.Header)
	if err := rlp.DecodeBytes(b, h); err != nil {
		return nil, errors.Wrap(err, "decoding header")
	}
	return h, nil
}

// HeaderCID is the CID of a header: its chain hash under the eth-block codec.
func HeaderCID(h *gethtypes.Header) CID {
	return CID{Codec: EthBlock, Hash: [HashSize]byte(h.Hash())}
}
