// Package leveldb implements a blob store in a LevelDB database.
package leveldb

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldb_util "github.com/syndtr/goleveldb/leveldb/util"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store is a LevelDB-based blob store.
// Keys are the binary forms of CIDs,
// so LevelDB's key order is CID order.
type Store struct {
	db *leveldb.DB
	mu sync.Mutex // serializes the check-then-write in Put
}

// New produces a new Store using db.
func New(db *leveldb.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %s", path)
	}
	return New(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get gets the blob with CID `c`.
func (s *Store) Get(_ context.Context, c ethbs.CID) ([]byte, error) {
	blob, err := s.db.Get(c.Bytes(), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, errors.Wrapf(ethbs.ErrNotFound, "getting %s", c)
	}
	return blob, errors.Wrapf(err, "getting %s", c)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, codec ethbs.Codec, blob []byte) (ethbs.CID, bool, error) {
	c := ethbs.NewCID(codec, blob)
	key := c.Bytes()

	s.mu.Lock()
	defer s.mu.Unlock()

	has, err := s.db.Has(key, nil)
	if err != nil {
		return ethbs.Zero, false, errors.Wrapf(err, "checking for %s", c)
	}
	if has {
		return c, false, nil
	}
	if err = s.db.Put(key, blob, nil); err != nil {
		return ethbs.Zero, false, errors.Wrapf(err, "storing %s", c)
	}
	return c, true, nil
}

// ListRefs produces all CIDs in the store, in order.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	iter := s.db.NewIterator(&ldb_util.Range{Start: append(start.Bytes(), 0)}, nil)
	defer iter.Release()

	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		c, err := ethbs.CIDFromBytes(iter.Key())
		if err != nil {
			return errors.Wrapf(err, "parsing key %x", iter.Key())
		}
		if err = f(c); err != nil {
			return err
		}
	}
	return iter.Error()
}

func init() {
	store.Register("leveldb", func(_ context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		path, ok := conf["path"].(string)
		if !ok {
			return nil, errors.New(`missing "path" parameter`)
		}
		return Open(path)
	})
}
