package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/ethbs"
)

// AllRefs writes a random set of random blobs to an empty store
// and makes sure that the right set of CIDs comes back in a call to ListRefs.
func AllRefs(ctx context.Context, t *testing.T, storeFactory func() ethbs.Store) {
	if err := quick.Check(allRefsHelper(ctx, t, storeFactory), &quick.Config{MaxCount: 20}); err != nil {
		t.Error(err)
	}
}

func allRefsHelper(ctx context.Context, t *testing.T, storeFactory func() ethbs.Store) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			store = storeFactory()
			want  []ethbs.CID
		)
		for _, blob := range blobs {
			c, added, err := store.Put(ctx, ethbs.Raw, blob)
			if err != nil {
				t.Fatal(err)
			}
			if added {
				want = append(want, c)
			}
		}
		var got []ethbs.CID
		err := store.ListRefs(ctx, ethbs.Zero, func(c ethbs.CID) error {
			got = append(got, c)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
