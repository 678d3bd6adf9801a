// Package pg implements a blob store in a Postgresql database.
package pg

import (
	"context"
	"database/sql"
	stderrs "errors"

	_ "github.com/lib/pq" // register the postgres type for sql.Open
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store is a Postgresql-based blob store.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the `blobs` table if it does not exist.
// (If it does exist, it must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS blobs (
  cid BYTEA PRIMARY KEY NOT NULL,
  codec BIGINT NOT NULL,
  data BYTEA NOT NULL
);

CREATE INDEX IF NOT EXISTS blobs_codec_idx ON blobs (codec);
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

	var result []byte
	err := s.db.QueryRowContext(ctx, q, c.Bytes()).Scan(&result)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, ethbs.ErrNotFound
	}
	return result, errors.Wrapf(err, "getting %s", c)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	const q = `INSERT INTO blobs (cid, codec, data) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`

	c := ethbs.NewCID(codec, b)
	if b == nil {
		b = []byte{}
	}
	res, err := s.db.ExecContext(ctx, q, c.Bytes(), int64(codec), b)
	if err != nil {
		return ethbs.Zero, false, errors.Wrap(err, "inserting blob")
	}

	aff, err := res.RowsAffected()
	return c, aff > 0, errors.Wrap(err, "counting affected rows")
}

// ListRefs produces all CIDs in the store, in order.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	const q = `SELECT cid FROM blobs WHERE cid > $1 ORDER BY cid`
	rows, err := s.db.QueryContext(ctx, q, start.Bytes())
	if err != nil {
		return errors.Wrap(err, "querying starting position")
	}
	defer rows.Close()

	for rows.Next() {
		var b []byte
		err := rows.Scan(&b)
		if err != nil {
			return errors.Wrap(err, "scanning query result")
		}
		c, err := ethbs.CIDFromBytes(b)
		if err != nil {
			return errors.Wrapf(err, "decoding stored CID %x", b)
		}
		err = f(c)
		if err != nil {
			return err
		}
	}
	return errors.Wrap(rows.Err(), "iterating over result rows")
}

func init() {
	store.Register("pg", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("postgres", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
