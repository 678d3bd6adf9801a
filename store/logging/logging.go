// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"

	"github.com/bitmark-inc/logger"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Store{}

type Store struct {
	s   ethbs.Store
	log *logger.L
}

func New(s ethbs.Store) *Store {
	return &Store{s: s, log: logger.New("store")}
}

func (s *Store) Get(ctx context.Context, c ethbs.CID) ([]byte, error) {
	b, err := s.s.Get(ctx, c)
	if err != nil {
		s.log.Errorf("Get %s: %s", c, err)
	} else {
		s.log.Debugf("Get %s: %d bytes", c, len(b))
	}
	return b, err
}

func (s *Store) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	s.log.Debugf("ListRefs, start=%s", start)
	return s.s.ListRefs(ctx, start, func(c ethbs.CID) error {
		err := f(c)
		if err != nil {
			s.log.Errorf("  in ListRefs: %s: %s", c, err)
		} else {
			s.log.Debugf("  ListRefs: %s", c)
		}
		return err
	})
}

func (s *Store) Put(ctx context.Context, codec ethbs.Codec, b []byte) (ethbs.CID, bool, error) {
	c, added, err := s.s.Put(ctx, codec, b)
	if err != nil {
		s.log.Errorf("Put (%s, %d bytes): %s", codec, len(b), err)
	} else {
		s.log.Infof("Put %s, added=%v", c, added)
	}
	return c, added, err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		nestedStore, err := store.Nested(ctx, conf)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore), nil
	})
}
