// Package bridge ties the pieces of an Ethereum-to-storage bridge together.
//
// A Bridge owns the application state
// (see package state)
// and is the only thing that mutates it.
// Blocks arrive from an ingest loop,
// user actions arrive as method calls,
// and every change is published to the state's subscribers.
package bridge

import (
	"context"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/libp2p/go-libp2p-core/peer"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/config"
	"github.com/bobg/ethbs/ingest"
	"github.com/bobg/ethbs/lookup"
	"github.com/bobg/ethbs/node"
	"github.com/bobg/ethbs/query"
	"github.com/bobg/ethbs/state"
	"github.com/bobg/ethbs/store"
)

var (
	// ErrUnknownPeer means a disconnect named an address that is not among the connected peers.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrNotBest means a block offered as the best block is lower than one already seen.
	ErrNotBest = errors.New("block is below the best block")
)

// Bridge is the context object of a running bridge.
// Create it with New or Open,
// drive it with Run,
// observe it through State,
// and release it with Close.
type Bridge struct {
	conf     *config.Config
	state    *state.Store
	node     node.Node
	loop     *ingest.Loop
	caller   lookup.Caller
	resolver *lookup.Resolver
	token    common.Address
	log      *logger.L

	balanceSeq atomic.Uint64
	ensSeq     atomic.Uint64

	bg sync.WaitGroup // peer polls and bootstrap connects
}

// New produces a Bridge.
// The tracker supplies new blocks,
// the node stores them,
// and the caller makes the contract calls behind lookups.
// A nil hasher means lookup.Namehash.
func New(conf *config.Config, n node.Node, t ingest.Tracker, c lookup.Caller, h lookup.NameHasher) (*Bridge, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	token, err := lookup.ParseAddress(conf.Token)
	if err != nil {
		return nil, errors.Wrap(err, "parsing token address")
	}
	registry, err := lookup.ParseAddress(conf.ENSRegistry)
	if err != nil {
		return nil, errors.Wrap(err, "parsing ENS registry address")
	}

	return &Bridge{
		conf: conf,
		state: state.New(state.State{
			PseudoQuery: conf.PseudoQuery,
			TokenHolder: conf.TokenHolder,
			ENSName:     conf.ENSName,
		}),
		node:     n,
		loop:     ingest.New(t, n, conf.MaxInFlight),
		caller:   c,
		resolver: lookup.NewResolver(c, registry, h, time.Duration(conf.LookupCacheTTL)),
		token:    token,
		log:      logger.New("bridge"),
	}, nil
}

// Open builds the blob store described by conf.Store,
// a local node over it,
// and a Bridge using that node.
// The backend named there must be registered
// by importing its package,
// or package store/all for every backend.
func Open(ctx context.Context, conf *config.Config, t ingest.Tracker, c lookup.Caller) (*Bridge, error) {
	s, err := store.FromConfig(ctx, conf.Store)
	if err != nil {
		return nil, errors.Wrap(err, "creating blob store")
	}
	n, err := node.NewLocal(s, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "creating node")
	}
	return New(conf, n, t, c, nil)
}

// State is the observable state of b.
// Callers may read and subscribe to it
// but should leave mutation to b's methods.
func (b *Bridge) State() *state.Store {
	return b.state
}

// Run connects to the configured bridge nodes,
// then registers blocks from the ingest loop
// and refreshes the peer list periodically
// until ctx is canceled.
// On exit it stops tracking and waits for its goroutines.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.bg.Wait()

	info, err := b.node.ID(ctx)
	if err != nil {
		b.log.Errorf("reading self info: %s", err)
	} else {
		b.state.UpdateState(func(s *state.State) { s.PeerInfo = info })
		b.log.Infof("running as %s", peer.IDB58Encode(info.ID))
	}

	for _, addr := range b.conf.Bridges {
		addr := addr
		b.bg.Add(1)
		go func() {
			defer b.bg.Done()
			if err := b.connect(ctx, addr); err != nil {
				b.log.Warnf("connecting to bridge %s: %s", addr, err)
			}
		}()
	}

	ticker := time.NewTicker(time.Duration(b.conf.PeerRefresh))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if b.loop.Tracking() {
				if err := b.StopTracker(); err != nil {
					b.log.Errorf("stopping tracker: %s", err)
				}
			}
			b.loop.Wait()
			return ctx.Err()

		case blk := <-b.loop.Blocks():
			b.RegisterBlock(blk)

		case <-b.loop.Ended():
			b.log.Warn("block tracker ended")
			b.state.UpdateState(func(s *state.State) { s.Tracking = b.loop.Tracking() })

		case <-ticker.C:
			// Polls may overlap; the last to finish wins.
			b.bg.Add(1)
			go func() {
				defer b.bg.Done()
				_ = b.RefreshPeers(ctx)
			}()
		}
	}
}

// Close stops tracking if it is under way
// and waits for header writes and background work to finish.
func (b *Bridge) Close() error {
	var err error
	if b.loop.Tracking() {
		err = b.StopTracker()
	}
	b.loop.Wait()
	b.bg.Wait()
	return err
}

// fail records err as the visible error and returns it.
func (b *Bridge) fail(err error) error {
	b.log.Warnf("%s", err)
	b.state.UpdateState(func(s *state.State) { s.Err = err })
	return err
}

// StartTracker begins ingesting blocks.
func (b *Bridge) StartTracker(ctx context.Context) error {
	if err := b.loop.Start(ctx); err != nil {
		return b.fail(err)
	}
	b.state.UpdateState(func(s *state.State) { s.Tracking = true })
	return nil
}

// StopTracker stops ingesting blocks.
// Header writes already under way still finish.
func (b *Bridge) StopTracker() error {
	err := b.loop.Stop()
	b.state.UpdateState(func(s *state.State) { s.Tracking = b.loop.Tracking() })
	if err != nil {
		return b.fail(err)
	}
	return nil
}

// SetPseudoQuery replaces the pseudo-query and rederives the storage query.
func (b *Bridge) SetPseudoQuery(q string) {
	b.state.UpdateState(func(s *state.State) {
		s.PseudoQuery = q
		derive(s)
	})
}

// SetBestBlock makes blk the best block
// and rederives the storage query.
// It fails with ErrNotBest if blk is lower than the best block
// or than any registered block.
func (b *Bridge) SetBestBlock(blk ethbs.Block) error {
	var err error
	b.state.UpdateState(func(s *state.State) {
		if hi, ok := s.Blocks.Max(); ok && blk.Number < hi.Number {
			err = errors.Wrapf(ErrNotBest, "block %d, highest registered %d", blk.Number, hi.Number)
			return
		}
		if s.BestBlock != nil && blk.Number < s.BestBlock.Number {
			err = errors.Wrapf(ErrNotBest, "block %d, best %d", blk.Number, s.BestBlock.Number)
			return
		}
		s.BestBlock = &blk
		derive(s)
	})
	if err != nil {
		return b.fail(err)
	}
	return nil
}

// RegisterBlock records blk in its slot,
// replacing any block already there.
// If blk is higher than the best block it becomes the best block
// and the storage query is rederived.
// All of this is a single state update.
func (b *Bridge) RegisterBlock(blk ethbs.Block) {
	b.state.UpdateState(func(s *state.State) {
		s.Blocks = s.Blocks.With(blk)
		if s.BestBlock == nil || blk.Number > s.BestBlock.Number {
			s.BestBlock = &blk
			derive(s)
		}
	})
	b.log.Debugf("registered block %d (%s)", blk.Number, blk.CID)
}

// derive recomputes s.DagQuery from s.PseudoQuery and s.BestBlock.
// On failure the query is cleared and the error recorded.
func derive(s *state.State) {
	q, err := query.Build(s.PseudoQuery, s.BestBlock)
	if err != nil {
		s.DagQuery = ""
		s.Err = err
		return
	}
	s.DagQuery = q
	if errors.Is(s.Err, query.ErrShortQuery) || errors.Is(s.Err, query.ErrBadKey) {
		s.Err = nil
	}
}

// ResolvePath resolves an explicit content path,
// such as the current DagQuery,
// and records the result as 0x-prefixed hex in DagResult.
func (b *Bridge) ResolvePath(ctx context.Context, p string) error {
	b.state.UpdateState(func(s *state.State) { s.DagResult = "" })

	c, rest, err := query.SplitPath(p)
	if err != nil {
		return b.fail(err)
	}
	val, err := b.node.Get(ctx, c, rest)
	if err != nil {
		return b.fail(errors.Wrapf(err, "resolving %s", p))
	}
	b.state.UpdateState(func(s *state.State) { s.DagResult = "0x" + hex.EncodeToString(val) })
	return nil
}

// SetTokenHolder sets the address used by LookupTokenBalance.
func (b *Bridge) SetTokenHolder(addr string) {
	b.state.UpdateState(func(s *state.State) { s.TokenHolder = addr })
}

// SetENSName sets the name used by LookupENSRecord.
func (b *Bridge) SetENSName(name string) {
	b.state.UpdateState(func(s *state.State) { s.ENSName = name })
}
