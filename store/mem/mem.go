// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu    sync.Mutex
	blobs map[ethbs.CID][]byte
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blobs: make(map[ethbs.CID][]byte),
	}
}

// Get gets the blob with the given CID.
func (s *Store) Get(_ context.Context, c ethbs.CID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[c]; ok {
		return b, nil
	}
	return nil, ethbs.ErrNotFound
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	c := ethbs.NewCID(codec, b)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[c]; ok {
		return c, false, nil
	}
	s.blobs[c] = append([]byte(nil), b...)
	return c, true, nil
}

// ListRefs produces all CIDs in the store, in order.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	s.mu.Lock()
	refs := make([]ethbs.CID, 0, len(s.blobs))
	for c := range s.blobs {
		refs = append(refs, c)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		err := f(refs[i])
		if err != nil {
			return err
		}
	}
	return nil
}

// Len is the number of blobs in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (ethbs.Store, error) {
		return New(), nil
	})
}
