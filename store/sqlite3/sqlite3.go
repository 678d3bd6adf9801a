// Package sqlite3 implements a blob store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	stderrs "errors"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store is a Sqlite-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` table if it does not exist.
// (If it does exist, it must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  cid BLOB PRIMARY KEY NOT NULL,
  data BLOB NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create table `blobs`,
// or for that table already to exist with the correct schema.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, errors.Wrap(err, "creating schema")
}

// Get gets the blob with the given CID.
func (s *Store) Get(ctx context.Context, c ethbs.CID) ([]byte, error) {
	const q = `SELECT data FROM blobs WHERE cid = $1`

	var b []byte
	err := s.db.QueryRowContext(ctx, q, c.Bytes()).Scan(&b)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, ethbs.ErrNotFound
	}
	return b, errors.Wrapf(err, "getting %s", c)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	const q = `INSERT INTO blobs (cid, data) VALUES ($1, $2) ON CONFLICT DO NOTHING`

	c := ethbs.NewCID(codec, b)
	if b == nil {
		b = []byte{}
	}
	res, err := s.db.ExecContext(ctx, q, c.Bytes(), b)
	if err != nil {
		return ethbs.Zero, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return ethbs.Zero, false, errors.Wrap(err, "counting affected rows")
	}

	return c, aff > 0, nil
}

// ListRefs produces all CIDs in the store, in order.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	const q = `SELECT cid FROM blobs WHERE cid > $1 ORDER BY cid`

	return sqlutil.ForQueryRows(ctx, s.db, q, start.Bytes(), func(b []byte) error {
		c, err := ethbs.CIDFromBytes(b)
		if err != nil {
			return errors.Wrapf(err, "decoding stored CID %x", b)
		}
		return f(c)
	})
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
