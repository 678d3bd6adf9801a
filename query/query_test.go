package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/bobg/ethbs"
)

const addrDigest = "1372c6cc9ad4698bc90e4f827e36bf3930b9a02aa2d626d71dddbf3b9e9eb9d4"

func TestBuild(t *testing.T) {
	best := &ethbs.Block{CID: "Qmxyz", Hash: "0xabc", Number: 100}

	cases := []struct {
		name    string
		pseudo  string
		best    *ethbs.Block
		want    string
		wantErr error
	}{
		{
			name:   "address key",
			pseudo: "/eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5",
			best:   best,
			want:   "Qmxyz/" + ethbs.NibblePath(addrDigest),
		},
		{
			name:   "literal suffix",
			pseudo: "/eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5/balance",
			best:   best,
			want:   "Qmxyz/" + ethbs.NibblePath(addrDigest) + "/balance",
		},
		{
			name:   "literals in order",
			pseudo: "eth/latest/state/a/b/c",
			best:   best,
			want:   "Qmxyz/a/b/c",
		},
		{
			name:   "prefix only",
			pseudo: "/eth/latest/state",
			best:   best,
			want:   "Qmxyz",
		},
		{
			name:   "no best block",
			pseudo: "/eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5",
		},
		{
			name:    "short",
			pseudo:  "/eth/latest",
			best:    best,
			wantErr: ErrShortQuery,
		},
		{
			name:    "bad hex",
			pseudo:  "/eth/latest/state/0xzz",
			best:    best,
			wantErr: ErrBadKey,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Build(tc.pseudo, tc.best)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("got error %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestBuildShape(t *testing.T) {
	best := &ethbs.Block{CID: "Qmxyz", Number: 1}
	got, err := Build("/eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5", best)
	if err != nil {
		t.Fatal(err)
	}
	segs := strings.Split(got, "/")
	if len(segs) != 1+2*ethbs.HashSize {
		t.Fatalf("got %d segments, want %d", len(segs), 1+2*ethbs.HashSize)
	}
	for i, seg := range segs[1:] {
		if len(seg) != 1 || !strings.Contains("0123456789abcdef", seg) {
			t.Errorf("segment %d is %q, want one hex nibble", i+1, seg)
		}
	}

	again, err := Build("/eth/latest/state/0x52bc44d5378309ee2abf1539bf71de1b7d7be3b5", best)
	if err != nil {
		t.Fatal(err)
	}
	if again != got {
		t.Error("Build is not deterministic")
	}
}

func TestSplitPath(t *testing.T) {
	c := ethbs.NewCID(ethbs.EthBlock, []byte("header"))

	cases := []struct {
		in   string
		rest string
	}{
		{in: c.String(), rest: ""},
		{in: "/" + c.String() + "/parentHash", rest: "parentHash"},
		{in: "/ipfs/" + c.String() + "/a/b", rest: "a/b"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, rest, err := SplitPath(tc.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != c {
				t.Errorf("got root %s, want %s", got, c)
			}
			if rest != tc.rest {
				t.Errorf("got rest %q, want %q", rest, tc.rest)
			}
		})
	}

	if _, _, err := SplitPath("/notacid/x"); !errors.Is(err, ethbs.ErrBadCID) {
		t.Errorf("got %v, want ErrBadCID", err)
	}
}
