// Package file implements a blob store as a file hierarchy.
package file

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

// Store is a file-based implementation of a blob store.
//
// Blobs live at root/blobs/CODEC/HH/HHHH/HASH,
// where CODEC is the hex of the codec's varint encoding
// and HASH is the hex of the keccak-256 digest.
// Walking that tree in name order visits CIDs in binary order.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func codecDir(codec ethbs.Codec) string {
	return hex.EncodeToString(binary.AppendUvarint(nil, uint64(codec)))
}

func (s *Store) blobpath(c ethbs.CID) string {
	h := hex.EncodeToString(c.Hash[:])
	return filepath.Join(s.blobroot(), codecDir(c.Codec), h[:2], h[:4], h)
}

func (s *Store) lockpath() string {
	return filepath.Join(s.root, "lock")
}

// Get gets the blob with the given CID.
func (s *Store) Get(_ context.Context, c ethbs.CID) ([]byte, error) {
	path := s.blobpath(c)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ethbs.ErrNotFound
	}
	return blob, errors.Wrapf(err, "opening %s", path)
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	var (
		c    = ethbs.NewCID(codec, b)
		path = s.blobpath(c)
		dir  = filepath.Dir(path)
	)

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return c, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	err = s.flocker.Lock(s.lockpath())
	if err != nil {
		return c, false, errors.Wrap(err, "locking store")
	}
	defer s.flocker.Unlock(s.lockpath())

	if _, err = os.Stat(path); err == nil {
		return c, false, nil
	}

	tmp, err := os.CreateTemp(dir, "tmp")
	if err != nil {
		return ethbs.Zero, false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(b)
	if err != nil {
		tmp.Close()
		return ethbs.Zero, false, errors.Wrapf(err, "writing data to %s", tmp.Name())
	}
	err = tmp.Close()
	if err != nil {
		return ethbs.Zero, false, errors.Wrapf(err, "closing %s", tmp.Name())
	}

	err = os.Rename(tmp.Name(), path)
	return c, err == nil, errors.Wrapf(err, "renaming %s to %s", tmp.Name(), path)
}

// ListRefs produces all CIDs in the store, in order.
func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	err := os.MkdirAll(s.blobroot(), 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.blobroot())
	}

	codecs, err := os.ReadDir(s.blobroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blobroot())
	}

	startCodec := codecDir(start.Codec)
	for _, info := range codecs {
		if !info.IsDir() {
			continue
		}
		name := info.Name()
		if name < startCodec {
			continue
		}
		codecBytes, err := hex.DecodeString(name)
		if err != nil {
			continue
		}
		codec, n := binary.Uvarint(codecBytes)
		if n != len(codecBytes) {
			continue
		}

		var startHex string
		if name == startCodec {
			startHex = hex.EncodeToString(start.Hash[:])
		}
		err = s.listCodec(ctx, ethbs.Codec(codec), startHex, f)
		if err != nil {
			return err
		}
	}
	return nil
}

// Lists the blobs of one codec whose hash hex is greater than startHex.
// An empty startHex lists them all.
func (s *Store) listCodec(ctx context.Context, codec ethbs.Codec, startHex string, f func(ethbs.CID) error) error {
	var (
		root                = filepath.Join(s.blobroot(), codecDir(codec))
		startTop, startMid string
	)
	if startHex != "" {
		startTop, startMid = startHex[:2], startHex[:4]
	}

	topLevel, err := os.ReadDir(root)
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", root)
	}

	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startTop
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if len(topName) != 2 {
			continue
		}
		if _, err = strconv.ParseInt(topName, 16, 64); err != nil {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(root, topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", root, topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startMid
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() {
				continue
			}
			midName := midInfo.Name()
			if len(midName) != 4 {
				continue
			}
			if _, err = strconv.ParseInt(midName, 16, 64); err != nil {
				continue
			}

			blobInfos, err := os.ReadDir(filepath.Join(root, topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", root, topName, midName)
			}

			index := sort.Search(len(blobInfos), func(n int) bool {
				return blobInfos[n].Name() > startHex
			})
			for k := index; k < len(blobInfos); k++ {
				blobInfo := blobInfos[k]
				if blobInfo.IsDir() {
					continue
				}

				hash, err := hex.DecodeString(blobInfo.Name())
				if err != nil || len(hash) != ethbs.HashSize {
					continue
				}
				c := ethbs.CID{Codec: codec}
				copy(c.Hash[:], hash)

				err = f(c)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
