// Package lru implements a blob store that acts as a least-recently-used cache for a nested blob store.
package lru

import (
	"context"
	"encoding/json"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store implements a memory-based least-recently-used cache for a blob store.
// Writes pass through to the underlying blob store.
// Blobs are immutable, so cached entries never go stale.
type Store struct {
	c *lru.Cache // CID->[]byte
	s ethbs.Store
}

// New produces a new Store backed by `s` and caching up to `size` blobs.
func New(s ethbs.Store, size int) (*Store, error) {
	c, err := lru.New(size)
	return &Store{s: s, c: c}, errors.Wrap(err, "creating cache")
}

// Get gets the blob with the given CID.
func (s *Store) Get(ctx context.Context, c ethbs.CID) ([]byte, error) {
	if got, ok := s.c.Get(c); ok {
		return got.([]byte), nil
	}
	blob, err := s.s.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	s.c.Add(c, blob)
	return blob, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	c, added, err := s.s.Put(ctx, codec, b)
	if err != nil {
		return c, added, err
	}
	s.c.Add(c, append([]byte(nil), b...))
	return c, added, nil
}

// ListRefs produces all CIDs in the nested store, in order.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	return s.s.ListRefs(ctx, start, f)
}

// Cached tells whether the blob with the given CID is in the cache.
func (s *Store) Cached(c ethbs.CID) bool {
	return s.c.Contains(c)
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		var size int
		switch v := conf["size"].(type) {
		case int:
			size = v
		case float64:
			size = int(v)
		case json.Number:
			n, err := v.Int64()
			if err != nil {
				return nil, errors.Wrapf(err, "parsing size %v", v)
			}
			size = int(n)
		default:
			return nil, errors.New(`missing "size" parameter`)
		}
		nestedStore, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, size)
	})
}
