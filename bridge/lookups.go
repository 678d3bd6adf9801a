package bridge

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/bobg/ethbs/lookup"
	"github.com/bobg/ethbs/state"
)

// LookupTokenBalance queries the configured token's balance for the current TokenHolder.
// If another balance lookup starts before this one finishes,
// this one's outcome is discarded.
func (b *Bridge) LookupTokenBalance(ctx context.Context) error {
	seq := b.balanceSeq.Add(1)
	b.state.UpdateState(func(s *state.State) { s.TokenBalance = "" })

	holder := b.state.GetState().TokenHolder
	balance, err := func() (string, error) {
		addr, err := lookup.ParseAddress(holder)
		if err != nil {
			return "", errors.Wrap(err, "token holder")
		}
		v, err := lookup.BalanceOf(ctx, b.caller, b.token, addr)
		if err != nil {
			return "", errors.Wrapf(err, "balance of %s", addr.Hex())
		}
		return lookup.FormatUnits(v, b.conf.TokenDecimals), nil
	}()

	b.finish(&b.balanceSeq, seq, func(s *state.State) {
		if err != nil {
			s.Err = err
		} else {
			s.TokenBalance = balance
			s.Err = nil
		}
	})
	return err
}

// LookupENSRecord resolves the current ENSName to an address.
// If another ENS lookup starts before this one finishes,
// this one's outcome is discarded.
func (b *Bridge) LookupENSRecord(ctx context.Context) error {
	seq := b.ensSeq.Add(1)
	b.state.UpdateState(func(s *state.State) { s.ENSAddress = "" })

	name := b.state.GetState().ENSName
	addr, err := b.resolver.Resolve(ctx, name)
	if err != nil {
		err = errors.Wrapf(err, "resolving %s", name)
	}

	b.finish(&b.ensSeq, seq, func(s *state.State) {
		if err != nil {
			s.Err = err
		} else {
			s.ENSAddress = addr.Hex()
			s.Err = nil
		}
	})
	return err
}

// finish applies f to the state
// unless a later lookup of the same kind has started since seq was issued.
func (b *Bridge) finish(counter *atomic.Uint64, seq uint64, f func(*state.State)) {
	stale := false
	b.state.UpdateState(func(s *state.State) {
		if counter.Load() != seq {
			stale = true
			return
		}
		f(s)
	})
	if stale {
		b.log.Debugf("discarding stale lookup result %d", seq)
	}
}
