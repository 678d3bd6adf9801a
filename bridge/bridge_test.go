package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"testing"
	"testing/quick"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	"go.uber.org/goleak"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/config"
	"github.com/bobg/ethbs/ingest"
	"github.com/bobg/ethbs/lookup"
	"github.com/bobg/ethbs/node"
	"github.com/bobg/ethbs/query"
	"github.com/bobg/ethbs/state"
	"github.com/bobg/ethbs/store/mem"
	"github.com/bobg/ethbs/testutil"
)

func TestMain(m *testing.M) {
	os.Exit(testutil.Logging(m))
}

func testConfig() *config.Config {
	conf := config.Default()
	conf.Bridges = nil
	conf.PeerRefresh = config.Duration(10 * time.Millisecond)
	return conf
}

func newBridge(t *testing.T, c lookup.Caller) (*Bridge, *ingest.Feed) {
	t.Helper()
	feed := ingest.NewFeed(4)
	b, err := Open(context.Background(), testConfig(), feed, c)
	if err != nil {
		t.Fatal(err)
	}
	return b, feed
}

func block(n uint64, hash string) ethbs.Block {
	return ethbs.Block{
		CID:    ethbs.NewCID(ethbs.EthBlock, []byte(fmt.Sprintf("%d/%s", n, hash))).String(),
		Hash:   hash,
		Number: n,
	}
}

func waitFor(t *testing.T, st *state.Store, pred func(state.State) bool) state.State {
	t.Helper()

	ch := make(chan state.State, 1)
	unsub := st.Subscribe(func(s state.State) {
		if pred(s) {
			select {
			case ch <- s:
			default:
			}
		}
	})
	defer unsub()

	if s := st.GetState(); pred(s) {
		return s
	}
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state")
	}
	return state.State{}
}

func TestOpenBackend(t *testing.T) {
	conf := testConfig()
	conf.Store = map[string]interface{}{"type": "sqlite3", "conn": ":memory:"}
	if _, err := Open(context.Background(), conf, ingest.NewFeed(1), nil); err == nil {
		t.Error("opened a bridge on a backend nobody registered")
	}
}

func TestRegisterScenario(t *testing.T) {
	b, _ := newBridge(t, nil)

	var notified int
	b.State().Subscribe(func(state.State) { notified++ })

	b100, b99 := block(100, "0xabc"), block(99, "0xdef")
	b.RegisterBlock(b100)
	b.RegisterBlock(b99)

	s := b.State().GetState()
	if s.BestBlock == nil || *s.BestBlock != b100 {
		t.Errorf("got best block %v, want %v", s.BestBlock, b100)
	}
	if s.Blocks.Len() != 2 {
		t.Errorf("got %d blocks, want 2", s.Blocks.Len())
	}
	if got, _ := s.Blocks.Get(99); got != b99 {
		t.Errorf("slot 99 holds %v", got)
	}
	if notified != 2 {
		t.Errorf("got %d notifications, want 2", notified)
	}

	want, err := query.Build(s.PseudoQuery, &b100)
	if err != nil {
		t.Fatal(err)
	}
	if s.DagQuery != want {
		t.Errorf("got DagQuery %s, want %s", s.DagQuery, want)
	}
}

func TestBestIsMax(t *testing.T) {
	f := func(nums []uint16) bool {
		b, _ := newBridge(t, nil)
		var max uint64
		for i, n := range nums {
			b.RegisterBlock(block(uint64(n), "0x01"))
			if i == 0 || uint64(n) > max {
				max = uint64(n)
			}
			best := b.State().GetState().BestBlock
			if best == nil || best.Number != max {
				return false
			}
		}
		return true
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

func TestOverwrite(t *testing.T) {
	b, _ := newBridge(t, nil)

	for n := uint64(1); n <= 5; n++ {
		b.RegisterBlock(block(n, "0xold"))
	}
	before := b.State().GetState()

	replacement := block(3, "0xnew")
	b.RegisterBlock(replacement)
	after := b.State().GetState()

	for n := uint64(1); n <= 5; n++ {
		got, _ := after.Blocks.Get(n)
		want, _ := before.Blocks.Get(n)
		if n == 3 {
			want = replacement
		}
		if got != want {
			t.Errorf("slot %d: got %v, want %v", n, got, want)
		}
	}
	if after.BestBlock.Number != 5 || after.DagQuery != before.DagQuery {
		t.Errorf("overwriting a lower slot changed the best block or query")
	}
}

func TestDerivedQuery(t *testing.T) {
	b, _ := newBridge(t, nil)

	b.SetPseudoQuery("/eth/latest/state/a/b")
	if got := b.State().GetState().DagQuery; got != "" {
		t.Errorf("got DagQuery %q with no best block", got)
	}

	blk := block(7, "0x07")
	b.RegisterBlock(blk)
	if got, want := b.State().GetState().DagQuery, blk.CID+"/a/b"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	b.SetPseudoQuery("/eth")
	s := b.State().GetState()
	if s.DagQuery != "" || !errors.Is(s.Err, query.ErrShortQuery) {
		t.Errorf("short query: got DagQuery %q, err %v", s.DagQuery, s.Err)
	}

	b.SetPseudoQuery("/eth/latest/state/c")
	s = b.State().GetState()
	if s.Err != nil || s.DagQuery != blk.CID+"/c" {
		t.Errorf("fixed query: got DagQuery %q, err %v", s.DagQuery, s.Err)
	}

	lower := block(2, "0x02")
	if err := b.SetBestBlock(lower); !errors.Is(err, ErrNotBest) {
		t.Errorf("got %v, want ErrNotBest", err)
	}
	s = b.State().GetState()
	if s.BestBlock.Number != 7 || s.DagQuery != blk.CID+"/c" {
		t.Errorf("lower block replaced the best block: %+v, %s", s.BestBlock, s.DagQuery)
	}

	higher := block(9, "0x09")
	if err := b.SetBestBlock(higher); err != nil {
		t.Fatal(err)
	}
	if got, want := b.State().GetState().DagQuery, higher.CID+"/c"; got != want {
		t.Errorf("after SetBestBlock got %s, want %s", got, want)
	}
	b.RegisterBlock(block(8, "0x08"))
	if got := b.State().GetState().BestBlock.Number; got != 9 {
		t.Errorf("registering a lower block moved the best block to %d", got)
	}
}

func word(v *big.Int) []byte {
	w := make([]byte, 32)
	v.FillBytes(w)
	return w
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
}

func TestLookupTokenBalance(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		slow    = "0x00000000000000000000000000000000000000aa"
		fast    = "0x00000000000000000000000000000000000000bb"
		started = make(chan struct{})
		release = make(chan struct{})
	)

	caller := lookup.CallerFunc(func(_ context.Context, _ common.Address, data []byte) ([]byte, error) {
		switch data[35] {
		case 0xaa:
			close(started)
			<-release
			return word(ether(1)), nil
		case 0xbb:
			return word(ether(2)), nil
		}
		return nil, errors.New("execution reverted")
	})

	b, _ := newBridge(t, caller)
	ctx := context.Background()

	b.SetTokenHolder(slow)
	done := make(chan error)
	go func() { done <- b.LookupTokenBalance(ctx) }()
	<-started

	b.SetTokenHolder(fast)
	if err := b.LookupTokenBalance(ctx); err != nil {
		t.Fatal(err)
	}
	if got := b.State().GetState().TokenBalance; got != "2" {
		t.Errorf("got balance %s, want 2", got)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := b.State().GetState().TokenBalance; got != "2" {
		t.Errorf("stale lookup overwrote balance with %s", got)
	}

	b.SetTokenHolder("0x00000000000000000000000000000000000000cc")
	if err := b.LookupTokenBalance(ctx); err == nil {
		t.Error("got no error from reverted call")
	}
	s := b.State().GetState()
	if s.Err == nil || s.TokenBalance != "" {
		t.Errorf("after failure got err %v, balance %q", s.Err, s.TokenBalance)
	}

	b.SetTokenHolder("not an address")
	if err := b.LookupTokenBalance(ctx); !errors.Is(err, lookup.ErrBadAddress) {
		t.Errorf("got %v, want ErrBadAddress", err)
	}

	b.SetTokenHolder(fast)
	if err := b.LookupTokenBalance(ctx); err != nil {
		t.Fatal(err)
	}
	if s = b.State().GetState(); s.Err != nil || s.TokenBalance != "2" {
		t.Errorf("after success got err %v, balance %q", s.Err, s.TokenBalance)
	}
}

func TestLookupENSRecord(t *testing.T) {
	var (
		registry, _ = lookup.ParseAddress(config.Default().ENSRegistry)
		resolver, _ = lookup.ParseAddress("0x5ffc014343cd971b7eb70732021e26c35b744cc4")
		target, _   = lookup.ParseAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
		known       = lookup.Namehash("ethereum.eth")
	)

	caller := lookup.CallerFunc(func(_ context.Context, to common.Address, data []byte) ([]byte, error) {
		w := make([]byte, 32)
		if string(data[4:]) != string(known[:]) {
			return w, nil
		}
		switch to {
		case registry:
			copy(w[12:], resolver[:])
		case resolver:
			copy(w[12:], target[:])
		}
		return w, nil
	})

	b, _ := newBridge(t, caller)
	ctx := context.Background()

	if err := b.LookupENSRecord(ctx); err != nil {
		t.Fatal(err)
	}
	if got := b.State().GetState().ENSAddress; got != target.Hex() {
		t.Errorf("got %s, want %s", got, target.Hex())
	}

	b.SetENSName("nobody.eth")
	if err := b.LookupENSRecord(ctx); !errors.Is(err, lookup.ErrNoResolver) {
		t.Errorf("got %v, want ErrNoResolver", err)
	}
	s := b.State().GetState()
	if s.ENSAddress != "" || !errors.Is(s.Err, lookup.ErrNoResolver) {
		t.Errorf("after failure got address %q, err %v", s.ENSAddress, s.Err)
	}

	b.SetENSName("ethereum.eth")
	if err := b.LookupENSRecord(ctx); err != nil {
		t.Fatal(err)
	}
	s = b.State().GetState()
	if s.Err != nil || s.ENSAddress != target.Hex() {
		t.Errorf("after success got address %q, err %v", s.ENSAddress, s.Err)
	}
}

func peerAddr(t *testing.T, port int) string {
	t.Helper()
	priv, _, err := crypto.GenerateKeyPair(crypto.Ed25519, -1)
	if err != nil {
		t.Fatal(err)
	}
	id, err := peer.IDFromPrivateKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return fmt.Sprintf("/ip4/10.0.0.1/tcp/%d/ipfs/%s", port, peer.IDB58Encode(id))
}

func TestPeers(t *testing.T) {
	b, _ := newBridge(t, nil)
	ctx := context.Background()

	var sawPending bool
	b.State().Subscribe(func(s state.State) {
		if len(s.Pending) > 0 {
			sawPending = true
		}
	})

	a1, a2 := peerAddr(t, 4001), peerAddr(t, 4002)
	for _, a := range []string{a1, a2} {
		if err := b.ConnectPeer(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	if !sawPending {
		t.Error("connect never marked an address pending")
	}

	s := b.State().GetState()
	var got []string
	for _, p := range s.Peers {
		got = append(got, p.String())
	}
	if len(got) != 2 {
		t.Fatalf("got peers %v, want 2", got)
	}
	if len(s.Pending) != 0 {
		t.Errorf("got pending %v after connects", s.Pending)
	}

	if err := b.DisconnectPeer(ctx, got[0]); err != nil {
		t.Fatal(err)
	}
	s = b.State().GetState()
	if len(s.Peers) != 1 || s.Peers[0].String() != got[1] {
		t.Errorf("after disconnect got %v, want [%s]", s.Peers, got[1])
	}

	if err := b.DisconnectPeer(ctx, got[0]); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("got %v, want ErrUnknownPeer", err)
	}

	if err := b.ConnectPeer(ctx, "/not/a/multiaddr"); err == nil {
		t.Error("got no error for malformed address")
	}
	s = b.State().GetState()
	if s.Err == nil || len(s.Pending) != 0 {
		t.Errorf("after failed connect got err %v, pending %v", s.Err, s.Pending)
	}
}

type countingNode struct {
	node.Node
	peers chan struct{}
}

func (n *countingNode) Peers(ctx context.Context) ([]node.Peer, error) {
	select {
	case n.peers <- struct{}{}:
	default:
	}
	return n.Node.Peers(ctx)
}

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := node.NewLocal(mem.New(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	n := &countingNode{Node: local, peers: make(chan struct{}, 1)}

	conf := testConfig()
	conf.PseudoQuery = "/eth/latest/state/number"
	conf.Bridges = []string{peerAddr(t, 4001), "/dns4/unparseable/tcp/443/wss"}

	feed := ingest.NewFeed(4)
	b, err := New(conf, n, feed, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	errCh := make(chan error)
	go func() { errCh <- b.Run(ctx) }()

	waitFor(t, b.State(), func(s state.State) bool { return s.PeerInfo.ID != "" })

	if err = b.StartTracker(ctx); err != nil {
		t.Fatal(err)
	}
	if err = b.StartTracker(ctx); !errors.Is(err, ingest.ErrTracking) {
		t.Errorf("got %v, want ErrTracking", err)
	}

	chain := testutil.Chain(t, 100)
	for _, p := range []ethbs.BlockParams{chain[99], chain[98]} {
		if _, err = feed.Publish(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	s := waitFor(t, b.State(), func(s state.State) bool { return s.Blocks.Len() == 2 })
	if s.BestBlock.Number != 100 || s.BestBlock.Hash != chain[99].Hash {
		t.Errorf("got best block %+v", s.BestBlock)
	}

	<-n.peers // a periodic refresh happened

	waitFor(t, b.State(), func(s state.State) bool {
		if s.BestBlock == nil {
			return false
		}
		c, err := ethbs.ParseCID(s.BestBlock.CID)
		if err != nil {
			return false
		}
		_, err = local.Get(ctx, c, "")
		return err == nil
	})
	if err = b.ResolvePath(ctx, s.DagQuery); err != nil {
		t.Fatal(err)
	}
	if got := b.State().GetState().DagResult; got != "0x64" {
		t.Errorf("got DagResult %s, want 0x64", got)
	}

	cancel()
	if err = <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
	if b.State().GetState().Tracking {
		t.Error("still tracking after Run exited")
	}
}

func TestTrackerEnded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, feed := newBridge(t, nil)
	errCh := make(chan error)
	go func() { errCh <- b.Run(ctx) }()

	if err := b.StartTracker(ctx); err != nil {
		t.Fatal(err)
	}
	waitFor(t, b.State(), func(s state.State) bool { return s.Tracking })

	feed.Close()
	waitFor(t, b.State(), func(s state.State) bool { return !s.Tracking })

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	startCtx, cancel := context.WithCancel(context.Background())
	b, feed := newBridge(t, nil)
	if err := b.StartTracker(startCtx); err != nil {
		t.Fatal(err)
	}
	cancel()

	// Tracking outlives the context it was started with.
	if _, err := feed.Publish(context.Background(), testutil.Chain(t, 1)[0]); err != nil {
		t.Fatal(err)
	}
	if !b.State().GetState().Tracking {
		t.Error("tracking ended with the start context")
	}

	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if b.State().GetState().Tracking {
		t.Error("still tracking after Close")
	}
	if err := b.Close(); err != nil {
		t.Errorf("second Close: %s", err)
	}
}

func TestStateDiff(t *testing.T) {
	b, _ := newBridge(t, nil)
	b.SetTokenHolder("0x01")
	b.SetENSName("x.eth")

	s := b.State().GetState()
	got := []string{s.TokenHolder, s.ENSName, s.PseudoQuery}
	want := []string{"0x01", "x.eth", config.Default().PseudoQuery}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}
