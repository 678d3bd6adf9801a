package state

import (
	"encoding/binary"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/bobg/ethbs"
)

// Blocks is the sparse collection of registered blocks, keyed by number.
// It is a persistent value:
// With returns a new collection sharing structure with the receiver and leaves the receiver alone,
// so snapshots handed to subscribers never change underneath them.
type Blocks struct {
	t *iradix.Tree
}

// Keys are big-endian so that tree order is numeric order.
func blockKey(n uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], n)
	return k[:]
}

func (bs Blocks) tree() *iradix.Tree {
	if bs.t == nil {
		return iradix.New()
	}
	return bs.t
}

// With returns a copy of bs with b in slot b.Number,
// replacing whatever was there.
func (bs Blocks) With(b ethbs.Block) Blocks {
	t, _, _ := bs.tree().Insert(blockKey(b.Number), b)
	return Blocks{t: t}
}

// Get returns the block in slot n, if any.
func (bs Blocks) Get(n uint64) (ethbs.Block, bool) {
	v, ok := bs.tree().Get(blockKey(n))
	if !ok {
		return ethbs.Block{}, false
	}
	return v.(ethbs.Block), true
}

// Len is the number of occupied slots.
func (bs Blocks) Len() int {
	if bs.t == nil {
		return 0
	}
	return bs.t.Len()
}

// Max is the block with the greatest number, if any.
func (bs Blocks) Max() (ethbs.Block, bool) {
	if bs.t == nil {
		return ethbs.Block{}, false
	}
	_, v, ok := bs.t.Root().Maximum()
	if !ok {
		return ethbs.Block{}, false
	}
	return v.(ethbs.Block), true
}
