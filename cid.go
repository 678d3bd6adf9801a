package ethbs

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// Codec is the content-type discriminator of a CID,
// as assigned in the multicodec table.
type Codec uint64

// Codecs understood by this package.
const (
	Raw                Codec = 0x55
	DagCBOR            Codec = 0x71
	EthBlock           Codec = 0x90
	EthBlockList       Codec = 0x91
	EthTxTrie          Codec = 0x92
	EthTx              Codec = 0x93
	EthTxReceiptTrie   Codec = 0x94
	EthTxReceipt       Codec = 0x95
	EthStateTrie       Codec = 0x96
	EthAccountSnapshot Codec = 0x97
	EthStorageTrie     Codec = 0x98
)

var codecNames = map[string]Codec{
	"raw":                  Raw,
	"dag-cbor":             DagCBOR,
	"eth-block":            EthBlock,
	"eth-block-list":       EthBlockList,
	"eth-tx-trie":          EthTxTrie,
	"eth-tx":               EthTx,
	"eth-tx-receipt-trie":  EthTxReceiptTrie,
	"eth-tx-receipt":       EthTxReceipt,
	"eth-state-trie":       EthStateTrie,
	"eth-account-snapshot": EthAccountSnapshot,
	"eth-storage-trie":     EthStorageTrie,
}

// CodecByName looks up a codec by its multicodec name, e.g. "eth-block".
func CodecByName(name string) (Codec, error) {
	c, ok := codecNames[name]
	if !ok {
		return 0, errors.Wrap(ErrUnknownCodec, name)
	}
	return c, nil
}

func (c Codec) String() string {
	for name, cc := range codecNames {
		if cc == c {
			return name
		}
	}
	return fmt.Sprintf("codec-0x%x", uint64(c))
}

const (
	cidVersion   = 1
	keccak256    = 0x1b // multihash code
	HashSize     = 32
	base58Prefix = 'z' // multibase base58btc
)

// CID is a version-1 content identifier
// whose multihash is always keccak-256.
type CID struct {
	Codec Codec
	Hash  [HashSize]byte
}

// Zero is the zero value of a CID.
var Zero CID

// NewCID computes the CID of a blob with the given codec.
func NewCID(codec Codec, blob []byte) CID {
	c := CID{Codec: codec}
	copy(c.Hash[:], Keccak256(blob))
	return c
}

// CIDFromHash builds the CID for content of the given kind
// (a codec name such as "eth-block")
// whose keccak-256 hash is already known.
func CIDFromHash(kind string, hash []byte) (CID, error) {
	codec, err := CodecByName(kind)
	if err != nil {
		return Zero, err
	}
	if len(hash) != HashSize {
		return Zero, errors.Wrapf(ErrBadCID, "hash length %d, want %d", len(hash), HashSize)
	}
	c := CID{Codec: codec}
	copy(c.Hash[:], hash)
	return c, nil
}

// Bytes produces the binary form of c.
func (c CID) Bytes() []byte {
	buf := make([]byte, 0, 4+binary.MaxVarintLen64+HashSize)
	buf = binary.AppendUvarint(buf, cidVersion)
	buf = binary.AppendUvarint(buf, uint64(c.Codec))
	buf = binary.AppendUvarint(buf, keccak256)
	buf = binary.AppendUvarint(buf, HashSize)
	return append(buf, c.Hash[:]...)
}

// String produces the multibase (base58btc) form of c.
func (c CID) String() string {
	return string(base58Prefix) + base58.Encode(c.Bytes())
}

// IsZero tells whether c is the zero CID.
func (c CID) IsZero() bool {
	return c == Zero
}

// Less orders CIDs by their binary form.
func (c CID) Less(other CID) bool {
	return bytes.Compare(c.Bytes(), other.Bytes()) < 0
}

// Verify tells whether blob hashes to c.
func (c CID) Verify(blob []byte) bool {
	return bytes.Equal(c.Hash[:], Keccak256(blob))
}

// CIDFromBytes parses the binary form of a CID.
func CIDFromBytes(b []byte) (CID, error) {
	r := bytes.NewReader(b)
	next := func(what string) (uint64, error) {
		v, err := binary.ReadUvarint(r)
		return v, errors.Wrapf(err, "reading %s", what)
	}

	version, err := next("version")
	if err != nil {
		return Zero, errors.Wrap(ErrBadCID, err.Error())
	}
	if version != cidVersion {
		return Zero, errors.Wrapf(ErrBadCID, "unsupported version %d", version)
	}
	codec, err := next("codec")
	if err != nil {
		return Zero, errors.Wrap(ErrBadCID, err.Error())
	}
	mh, err := next("multihash code")
	if err != nil {
		return Zero, errors.Wrap(ErrBadCID, err.Error())
	}
	if mh != keccak256 {
		return Zero, errors.Wrapf(ErrBadCID, "unsupported multihash 0x%x", mh)
	}
	size, err := next("multihash length")
	if err != nil {
		return Zero, errors.Wrap(ErrBadCID, err.Error())
	}
	if size != HashSize || r.Len() != HashSize {
		return Zero, errors.Wrapf(ErrBadCID, "digest length %d (%d remaining), want %d", size, r.Len(), HashSize)
	}

	c := CID{Codec: Codec(codec)}
	_, _ = r.Read(c.Hash[:])
	return c, nil
}

// ParseCID parses the string form of a CID.
func ParseCID(s string) (CID, error) {
	if len(s) < 2 || s[0] != base58Prefix {
		return Zero, errors.Wrapf(ErrBadCID, "%q is not base58btc multibase", s)
	}
	b, err := base58.Decode(s[1:])
	if err != nil {
		return Zero, errors.Wrapf(ErrBadCID, "decoding %q: %s", s, err)
	}
	return CIDFromBytes(b)
}

// Keccak256 computes the legacy (pre-NIST) Keccak-256 digest
// that Ethereum calls "sha3".
func Keccak256(data ...[]byte) []byte {
	return crypto.Keccak256(data...)
}

// DigestHex is the lowercase hex form of Keccak256(b).
func DigestHex(b []byte) string {
	return hex.EncodeToString(Keccak256(b))
}

// NibblePath splits a hex string into one path segment per character,
// so that "a1f" becomes "a/1/f".
func NibblePath(h string) string {
	if h == "" {
		return ""
	}
	var sb strings.Builder
	sb.Grow(2*len(h) - 1)
	for i, r := range h {
		if i > 0 {
			sb.WriteByte('/')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
