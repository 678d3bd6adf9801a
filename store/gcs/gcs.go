// Package gcs implements a blob store on Google Cloud Storage.
//
// Blobs are objects named by a namespace prefix
// followed by the lowercase hex of their CID bytes,
// so lexical object order is CID order.
// Each object records the name of its codec in its metadata.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// ErrCorrupt means an object's contents do not hash to its name.
var ErrCorrupt = errors.New("object contents do not match CID")

// DefaultPrefix is the object-name prefix used when none is configured.
const DefaultPrefix = "eth/"

const codecKey = "codec"

// Store is a Google Cloud Storage-based implementation of a blob store.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// New produces a new Store.
// Objects are named with the given prefix,
// letting several bridges share a bucket.
// An empty prefix means DefaultPrefix.
func New(bucket *storage.BucketHandle, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{bucket: bucket, prefix: prefix}
}

// Get gets the blob with the given CID.
func (s *Store) Get(ctx context.Context, c ethbs.CID) ([]byte, error) {
	name := s.objName(c)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, ethbs.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening object %s", name)
	}
	defer r.Close()

	b, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading object %s", name)
	}
	if !c.Verify(b) {
		return nil, errors.Wrapf(ErrCorrupt, "object %s", name)
	}
	return b, nil
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(ctx context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	c := ethbs.NewCID(codec, b)
	name := s.objName(c)

	w := s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	w.ContentType = contentType(codec)
	w.Metadata = map[string]string{codecKey: codec.String()}

	if _, err := w.Write(b); err != nil {
		w.Close()
		return c, false, errors.Wrapf(err, "writing object %s", name)
	}

	err := w.Close()
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return c, false, nil
	}
	if err != nil {
		return c, false, errors.Wrapf(err, "writing object %s", name)
	}
	return c, true, nil
}

// ListRefs produces all CIDs in the store, in order, beginning after start.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	q := &storage.Query{Prefix: s.prefix}
	var startName string
	if !start.IsZero() {
		startName = s.objName(start)
		q.StartOffset = startName
	}
	if err := q.SetAttrSelection([]string{"Name"}); err != nil {
		return errors.Wrap(err, "selecting object attrs")
	}

	iter := s.bucket.Objects(ctx, q)
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "listing objects")
		}
		if obj.Name == startName {
			continue
		}
		c, err := s.cidFromObjName(obj.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if err = f(c); err != nil {
			return err
		}
	}
}

func (s *Store) objName(c ethbs.CID) string {
	return s.prefix + hex.EncodeToString(c.Bytes())
}

func (s *Store) cidFromObjName(name string) (ethbs.CID, error) {
	if !strings.HasPrefix(name, s.prefix) {
		return ethbs.Zero, errors.Errorf("missing prefix %q", s.prefix)
	}
	b, err := hex.DecodeString(name[len(s.prefix):])
	if err != nil {
		return ethbs.Zero, err
	}
	return ethbs.CIDFromBytes(b)
}

func contentType(codec ethbs.Codec) string {
	switch codec {
	case ethbs.Raw:
		return "application/octet-stream"
	}
	return "application/cbor"
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		var options []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			options = append(options, option.WithCredentialsFile(creds))
		}
		prefix, _ := conf["prefix"].(string)

		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName), prefix), nil
	})
}
