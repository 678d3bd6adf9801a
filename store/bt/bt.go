// Package bt implements a blob store on Google Cloud Bigtable.
package bt

import (
	"context"
	"encoding/hex"
	"fmt"

	"cloud.google.com/go/bigtable"
	"google.golang.org/api/option"

	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store is a Google Cloud Bigtable-backed implementation of ethbs.Store.
// Each blob is one row, keyed by "b:" plus the hex form of its CID,
// with the blob in a single cell.
type Store struct {
	t *bigtable.Table
}

// Family is the column family a Store's table must have.
const Family = "blob"

const blobcol = "blob"

// New produces a new Store.
func New(t *bigtable.Table) *Store {
	return &Store{t: t}
}

// Get implements ethbs.Getter.
func (s *Store) Get(ctx context.Context, c ethbs.CID) ([]byte, error) {
	row, err := s.t.ReadRow(ctx, blobKey(c), bigtable.RowFilter(bigtable.LatestNFilter(1)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading row %s", c)
	}
	items := row[Family]
	if len(items) == 0 {
		return nil, errors.Wrapf(ethbs.ErrNotFound, "getting %s", c)
	}
	return items[0].Value, nil
}

// ListRefs implements ethbs.Getter.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	var innerErr error
	rowFn := func(row bigtable.Row) bool {
		key := row.Key()
		c, err := cidFromKey(key)
		if err != nil {
			innerErr = errors.Wrapf(err, "extracting CID from key %s", key)
			return false
		}
		err = f(c)
		if err != nil {
			innerErr = err
			return false
		}
		return true
	}

	// The smallest key greater than start's.
	startKey := blobKey(start) + "\x00"

	err := s.t.ReadRows(ctx, bigtable.NewRange(startKey, "b;"), rowFn, bigtable.RowFilter(bigtable.StripValueFilter()))
	if err != nil {
		return err
	}
	return innerErr
}

// Put implements ethbs.Store.
func (s *Store) Put(ctx context.Context, codec ethbs.Codec, blob []byte) (ethbs.CID, bool, error) {
	mut := bigtable.NewMutation()
	mut.Set(Family, blobcol, bigtable.Now(), blob)

	// Write only if the row has no cells yet.
	cmut := bigtable.NewCondMutation(bigtable.LatestNFilter(1), nil, mut)

	var alreadyPresent bool
	c := ethbs.NewCID(codec, blob)
	err := s.t.Apply(ctx, blobKey(c), cmut, bigtable.GetCondMutationResult(&alreadyPresent))
	if err != nil {
		return ethbs.Zero, false, errors.Wrapf(err, "writing row %s", c)
	}
	return c, !alreadyPresent, nil
}

func blobKey(c ethbs.CID) string {
	return fmt.Sprintf("b:%x", c.Bytes())
}

func cidFromKey(key string) (ethbs.CID, error) {
	if len(key) < 2 || key[:2] != "b:" {
		return ethbs.Zero, errors.Errorf("malformed key %q", key)
	}
	b, err := hex.DecodeString(key[2:])
	if err != nil {
		return ethbs.Zero, errors.Wrapf(err, "decoding key %q", key)
	}
	return ethbs.CIDFromBytes(b)
}

func init() {
	store.Register("bt", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		project, ok := conf["project"].(string)
		if !ok {
			return nil, errors.New(`missing "project" parameter`)
		}
		instance, ok := conf["instance"].(string)
		if !ok {
			return nil, errors.New(`missing "instance" parameter`)
		}
		table, ok := conf["table"].(string)
		if !ok {
			return nil, errors.New(`missing "table" parameter`)
		}

		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		c, err := bigtable.NewClient(ctx, project, instance, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating bigtable client")
		}
		return New(c.Open(table)), nil
	})
}
