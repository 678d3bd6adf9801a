package ethbs

import (
	"context"

	"github.com/pkg/errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its CID.
	Get(context.Context, CID) ([]byte, error)

	// ListRefs calls a function for each CID in the store in the order of their binary forms,
	// beginning with the first one _after_ the specified one.
	//
	// The calls reflect at least the set of CIDs
	// known at the moment ListRefs was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListRefs,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, CID, func(CID) error) error
}

// Store is a blob store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob can be retrieved using its CID as a lookup key.
// A CID is the keccak-256 hash of the blob's content
// plus a codec telling what kind of content it is.
type Store interface {
	Getter

	// Put adds b to the store, under the given codec, if it was not already present.
	// It returns b's CID and a boolean that is true iff the blob had to be added.
	Put(ctx context.Context, codec Codec, b []byte) (c CID, added bool, err error)
}

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent CID.
	ErrNotFound = errors.New("not found")

	ErrBadCID       = errors.New("malformed content identifier")
	ErrUnknownCodec = errors.New("unknown codec")
	ErrBadQuantity  = errors.New("malformed quantity")

	// ErrHashMismatch means block params carry a hash their header does not produce.
	ErrHashMismatch = errors.New("block hash mismatch")
)
