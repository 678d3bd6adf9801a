package mem

import (
	"context"
	"testing"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New())
}

func TestAllRefs(t *testing.T) {
	testutil.AllRefs(context.Background(), t, func() ethbs.Store { return New() })
}

func TestPutCopies(t *testing.T) {
	var (
		ctx  = context.Background()
		s    = New()
		blob = []byte("hello")
	)
	c, _, err := s.Put(ctx, ethbs.Raw, blob)
	if err != nil {
		t.Fatal(err)
	}
	blob[0] = 'j'
	got, err := s.Get(ctx, c)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("got %q, want hello", got)
	}
	if s.Len() != 1 {
		t.Errorf("got len %d, want 1", s.Len())
	}
}
