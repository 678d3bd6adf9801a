package lru

import (
	"context"
	"errors"
	"testing"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
	"github.com/bobg/ethbs/store/mem"
	"github.com/bobg/ethbs/testutil"
)

func TestStore(t *testing.T) {
	s, err := New(mem.New(), 1000)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(context.Background(), t, s)
}

func TestCacheHit(t *testing.T) {
	var (
		ctx    = context.Background()
		nested = mem.New()
	)
	s, err := New(nested, 2)
	if err != nil {
		t.Fatal(err)
	}

	other, _, err := nested.Put(ctx, ethbs.Raw, []byte("only in nested"))
	if err != nil {
		t.Fatal(err)
	}
	if s.Cached(other) {
		t.Error("blob cached before any Get")
	}
	if _, err = s.Get(ctx, other); err != nil {
		t.Fatal(err)
	}
	if !s.Cached(other) {
		t.Error("blob not cached after Get")
	}

	for _, b := range []string{"a", "b"} {
		if _, _, err = s.Put(ctx, ethbs.Raw, []byte(b)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Cached(other) {
		t.Error("least-recently-used blob not evicted")
	}

	_, err = s.Get(ctx, ethbs.NewCID(ethbs.Raw, []byte("nowhere")))
	if !errors.Is(err, ethbs.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}
}

func TestRegistry(t *testing.T) {
	s, err := store.Create(context.Background(), "lru", map[string]interface{}{
		"size":   float64(10),
		"nested": map[string]interface{}{"type": "mem"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Store); !ok {
		t.Errorf("got %T, want *Store", s)
	}
}
