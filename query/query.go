// Package query turns a pseudo-query,
// a path such as /eth/latest/state/0x52bc…b5/balance,
// into a path rooted at the CID of a particular block.
package query

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
)

var (
	// ErrShortQuery means a pseudo-query lacks its three-segment namespace prefix.
	ErrShortQuery = errors.New("pseudo-query has fewer than three segments")

	// ErrBadKey means a 0x segment is not valid hex.
	ErrBadKey = errors.New("malformed hex key")
)

// prefixLen is the number of namespace segments (chain/latest/state) a pseudo-query begins with.
const prefixLen = 3

// Build derives the storage query for pseudo against the given best block.
// The namespace prefix is replaced by the block's CID
// and each 0x-prefixed segment by the nibble path of its keccak-256 digest.
// Other segments pass through unchanged.
//
// With no best block the result is empty and there is no error.
func Build(pseudo string, best *ethbs.Block) (string, error) {
	if best == nil {
		return "", nil
	}

	segs := strings.Split(strings.TrimPrefix(pseudo, "/"), "/")
	if len(segs) < prefixLen {
		return "", errors.Wrapf(ErrShortQuery, "%q", pseudo)
	}

	out := []string{best.CID}
	for _, seg := range segs[prefixLen:] {
		if !strings.HasPrefix(seg, "0x") {
			out = append(out, seg)
			continue
		}
		key, err := hexutil.Decode(seg)
		if err != nil {
			return "", errors.Wrapf(ErrBadKey, "%q: %s", seg, err)
		}
		out = append(out, ethbs.NibblePath(ethbs.DigestHex(key)))
	}
	return strings.Join(out, "/"), nil
}

// SplitPath separates an explicit content path,
// optionally beginning with /ipfs/,
// into its root CID and the remaining subpath.
func SplitPath(p string) (ethbs.CID, string, error) {
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimPrefix(p, "ipfs/")
	root, rest := p, ""
	if i := strings.IndexByte(p, '/'); i >= 0 {
		root, rest = p[:i], p[i+1:]
	}
	c, err := ethbs.ParseCID(root)
	if err != nil {
		return ethbs.Zero, "", errors.Wrapf(err, "parsing root of %q", p)
	}
	return c, rest, nil
}
