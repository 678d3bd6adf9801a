package gcs

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"testing"
	"testing/quick"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/testutil"
)

func TestObjName(t *testing.T) {
	s := New(nil, "")
	if s.prefix != DefaultPrefix {
		t.Errorf("got prefix %q, want %q", s.prefix, DefaultPrefix)
	}

	c := ethbs.NewCID(ethbs.EthBlock, []byte("header"))
	name := s.objName(c)
	got, err := s.cidFromObjName(name)
	if err != nil {
		t.Fatal(err)
	}
	if got != c {
		t.Errorf("got %s, want %s", got, c)
	}

	for _, bad := range []string{"eth/zz", "other/" + hex.EncodeToString(c.Bytes())} {
		if _, err = s.cidFromObjName(bad); err == nil {
			t.Errorf("%s: want error", bad)
		}
	}
}

// Object names must sort the way CIDs do for ListRefs to honor its ordering.
func TestObjNameOrder(t *testing.T) {
	s := New(nil, "mainnet/")
	f := func(blobs [][]byte) bool {
		var cids []ethbs.CID
		for i, b := range blobs {
			codec := ethbs.EthBlock
			if i%2 == 1 {
				codec = ethbs.Raw
			}
			cids = append(cids, ethbs.NewCID(codec, b))
		}
		sort.Slice(cids, func(i, j int) bool { return cids[i].Less(cids[j]) })
		for i := 1; i < len(cids); i++ {
			if cids[i-1] != cids[i] && s.objName(cids[i-1]) >= s.objName(cids[i]) {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestContentType(t *testing.T) {
	cases := map[ethbs.Codec]string{
		ethbs.Raw:      "application/octet-stream",
		ethbs.DagCBOR:  "application/cbor",
		ethbs.EthBlock: "application/cbor",
	}
	for codec, want := range cases {
		if got := contentType(codec); got != want {
			t.Errorf("%s: got %s, want %s", codec, got, want)
		}
	}
}

const (
	credsVar = "ETHBS_GCS_TESTING_CREDS"
	projVar  = "ETHBS_GCS_TESTING_PROJECT"
)

func TestStore(t *testing.T) {
	var (
		creds     = os.Getenv(credsVar)
		projectID = os.Getenv(projVar)
	)
	if creds == "" || projectID == "" {
		t.Skipf("to run TestStore, set %s to the name of a credentials file and %s to a project ID", credsVar, projVar)
	}

	var r [16]byte
	if _, err := rand.Read(r[:]); err != nil {
		t.Fatal(err)
	}
	bucketName := "ethbs-" + hex.EncodeToString(r[:])

	ctx := context.Background()

	client, err := storage.NewClient(ctx, option.WithCredentialsFile(creds))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	t.Logf("creating bucket %s in project %s", bucketName, projectID)

	bucket := client.Bucket(bucketName)
	if err = bucket.Create(ctx, projectID, nil); err != nil {
		t.Fatal(err)
	}
	defer bucket.Delete(ctx)

	testutil.ReadWrite(ctx, t, New(bucket, ""))

	var n int
	testutil.AllRefs(ctx, t, func() ethbs.Store {
		n++
		return New(bucket, fmt.Sprintf("allrefs-%d/", n))
	})
}
