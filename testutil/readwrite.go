package testutil

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/bobg/ethbs"
)

// Chain produces n linked block params, numbered from 1,
// each carrying its correct chain hash.
func Chain(t *testing.T, n int) []ethbs.BlockParams {
	t.Helper()

	var (
		result []ethbs.BlockParams
		parent common.Hash
	)
	for i := 1; i <= n; i++ {
		p := ethbs.BlockParams{
			Number:     ethbs.Quantity(hexutil.EncodeUint64(uint64(i))),
			ParentHash: parent.Hex(),
			GasLimit:   "0x1c9c380",
			Timestamp:  ethbs.Quantity(hexutil.EncodeUint64(uint64(1500000000 + 15*i))),
		}
		h, err := ethbs.HeaderFromParams(p)
		if err != nil {
			t.Fatal(err)
		}
		parent = h.Hash()
		p.Hash = parent.Hex()
		result = append(result, p)
	}
	return result
}

// Headers produces n distinct canonical block headers, numbered from 1.
func Headers(t *testing.T, n int) [][]byte {
	t.Helper()

	var result [][]byte
	for _, p := range Chain(t, n) {
		h, err := ethbs.HeaderFromParams(p)
		if err != nil {
			t.Fatal(err)
		}
		b, err := ethbs.EncodeHeader(h)
		if err != nil {
			t.Fatal(err)
		}
		result = append(result, b)
	}
	return result
}

// ReadWrite permits testing a Store implementation
// by writing some block headers to it,
// then reading them back out to make sure they're the same.
// It also checks that rewriting is not an addition,
// that unknown CIDs are not found,
// and that ListRefs honors its start position.
func ReadWrite(ctx context.Context, t *testing.T, store ethbs.Store) {
	headers := Headers(t, 20)

	t1 := time.Now()
	var refs []ethbs.CID
	for i, h := range headers {
		c, added, err := store.Put(ctx, ethbs.EthBlock, h)
		if err != nil {
			t.Fatal(err)
		}
		if !added {
			t.Errorf("header %d: not added", i)
		}
		if want := ethbs.NewCID(ethbs.EthBlock, h); c != want {
			t.Errorf("header %d: got CID %s, want %s", i, c, want)
		}
		refs = append(refs, c)
	}
	t.Logf("wrote %d headers in %s", len(headers), time.Since(t1))

	_, added, err := store.Put(ctx, ethbs.EthBlock, headers[0])
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("rewritten header reported as added")
	}

	t2 := time.Now()
	for i, c := range refs {
		got, err := store.Get(ctx, c)
		if err != nil {
			t.Fatalf("getting header %d: %s", i, err)
		}
		if !bytes.Equal(got, headers[i]) {
			t.Errorf("header %d: mismatch", i)
		}
	}
	t.Logf("read %d headers in %s", len(refs), time.Since(t2))

	_, err = store.Get(ctx, ethbs.NewCID(ethbs.EthBlock, []byte("no such block")))
	if !errors.Is(err, ethbs.ErrNotFound) {
		t.Errorf("got error %v, want ErrNotFound", err)
	}

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	start := refs[len(refs)/2]
	var got []ethbs.CID
	err = store.ListRefs(ctx, start, func(c ethbs.CID) error {
		got = append(got, c)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	want := refs[len(refs)/2+1:]
	if len(got) != len(want) {
		t.Fatalf("ListRefs from the middle: got %d refs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListRefs position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}
