package node

import (
	"context"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
)

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// resolve walks subpath through the decoded structure of the blob named by c:
// an RLP header for eth-block content, CBOR otherwise.
// String values that parse as CIDs are links:
// resolution continues in the blob they name.
func resolve(ctx context.Context, g ethbs.Getter, c ethbs.CID, subpath string) ([]byte, error) {
	blob, err := g.Get(ctx, c)
	if err != nil {
		return nil, errors.Wrapf(err, "getting %s", c)
	}

	segs := splitPath(subpath)
	if len(segs) == 0 {
		return blob, nil
	}

	var v interface{}
	if c.Codec == ethbs.EthBlock {
		h, err := ethbs.DecodeHeader(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding %s", c)
		}
		if v, err = headerFields(h); err != nil {
			return nil, errors.Wrapf(err, "decoding %s", c)
		}
	} else if err = decMode.Unmarshal(blob, &v); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", c)
	}

	for i, seg := range segs {
		if s, ok := v.(string); ok {
			if link, err := ethbs.ParseCID(s); err == nil {
				return resolve(ctx, g, link, strings.Join(segs[i:], "/"))
			}
		}
		v, err = step(v, seg)
		if err != nil {
			return nil, errors.Wrapf(err, "resolving %s/%s", c, strings.Join(segs[:i+1], "/"))
		}
	}

	if s, ok := v.(string); ok {
		if link, err := ethbs.ParseCID(s); err == nil {
			return resolve(ctx, g, link, "")
		}
	}

	switch vv := v.(type) {
	case []byte:
		return vv, nil
	case string:
		return []byte(vv), nil
	}
	return ethbs.EncodeCanonical(v)
}

// headerFields maps the JSON-RPC names of h's fields to their values.
// Integers appear as minimal big-endian bytes.
// The "parent" field links to the parent header.
func headerFields(h *gethtypes.Header) (map[string]interface{}, error) {
	parent, err := ethbs.CIDFromHash(ethbs.EthBlock.String(), h.ParentHash.Bytes())
	if err != nil {
		return nil, err
	}
	m := map[string]interface{}{
		"parent":           parent.String(),
		"parentHash":       h.ParentHash.Bytes(),
		"sha3Uncles":       h.UncleHash.Bytes(),
		"miner":            h.Coinbase.Bytes(),
		"stateRoot":        h.Root.Bytes(),
		"transactionsRoot": h.TxHash.Bytes(),
		"receiptsRoot":     h.ReceiptHash.Bytes(),
		"logsBloom":        h.Bloom.Bytes(),
		"difficulty":       bigBytes(h.Difficulty),
		"number":           bigBytes(h.Number),
		"gasLimit":         new(big.Int).SetUint64(h.GasLimit).Bytes(),
		"gasUsed":          new(big.Int).SetUint64(h.GasUsed).Bytes(),
		"timestamp":        new(big.Int).SetUint64(h.Time).Bytes(),
		"extraData":        h.Extra,
		"mixHash":          h.MixDigest.Bytes(),
		"nonce":            h.Nonce[:],
	}
	if h.BaseFee != nil {
		m["baseFeePerGas"] = h.BaseFee.Bytes()
	}
	if h.WithdrawalsHash != nil {
		m["withdrawalsRoot"] = h.WithdrawalsHash.Bytes()
	}
	if h.BlobGasUsed != nil {
		m["blobGasUsed"] = new(big.Int).SetUint64(*h.BlobGasUsed).Bytes()
	}
	if h.ExcessBlobGas != nil {
		m["excessBlobGas"] = new(big.Int).SetUint64(*h.ExcessBlobGas).Bytes()
	}
	if h.ParentBeaconRoot != nil {
		m["parentBeaconBlockRoot"] = h.ParentBeaconRoot.Bytes()
	}
	if h.RequestsHash != nil {
		m["requestsHash"] = h.RequestsHash.Bytes()
	}
	return m, nil
}

func bigBytes(n *big.Int) []byte {
	if n == nil {
		return nil
	}
	return n.Bytes()
}

func step(v interface{}, seg string) (interface{}, error) {
	switch vv := v.(type) {
	case map[string]interface{}:
		next, ok := vv[seg]
		if !ok {
			return nil, ErrNoPath
		}
		return next, nil

	case map[interface{}]interface{}:
		next, ok := vv[seg]
		if !ok {
			return nil, ErrNoPath
		}
		return next, nil

	case []interface{}:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(vv) {
			return nil, ErrNoPath
		}
		return vv[idx], nil
	}
	return nil, ErrNoPath
}

func splitPath(p string) []string {
	var result []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			result = append(result, seg)
		}
	}
	return result
}
