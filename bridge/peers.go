package bridge

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs/state"
)

// ConnectPeer connects to the peer at the given multiaddr.
// While the attempt is in flight the address is marked pending.
func (b *Bridge) ConnectPeer(ctx context.Context, addr string) error {
	if err := b.connect(ctx, addr); err != nil {
		return b.fail(err)
	}
	return b.RefreshPeers(ctx)
}

func (b *Bridge) connect(ctx context.Context, addr string) error {
	b.setPending(addr, true)
	defer b.setPending(addr, false)

	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", addr)
	}
	return b.node.Connect(ctx, m)
}

// DisconnectPeer hangs up on the connected peer with the given address.
// While the attempt is in flight the address is marked pending.
func (b *Bridge) DisconnectPeer(ctx context.Context, addr string) error {
	peers, err := b.node.Peers(ctx)
	if err != nil {
		return b.fail(errors.Wrap(err, "listing peers"))
	}
	var found bool
	for _, p := range peers {
		if p.String() != addr {
			continue
		}
		found = true
		err = func() error {
			b.setPending(addr, true)
			defer b.setPending(addr, false)
			return b.node.Disconnect(ctx, p.ID)
		}()
		break
	}
	if !found {
		return b.fail(errors.Wrap(ErrUnknownPeer, addr))
	}
	if err != nil {
		return b.fail(errors.Wrapf(err, "disconnecting from %s", addr))
	}
	return b.RefreshPeers(ctx)
}

// RefreshPeers replaces the peer list in the state with the node's current one.
func (b *Bridge) RefreshPeers(ctx context.Context) error {
	peers, err := b.node.Peers(ctx)
	if err != nil {
		return b.fail(errors.Wrap(err, "listing peers"))
	}
	b.state.UpdateState(func(s *state.State) { s.Peers = peers })
	return nil
}

func (b *Bridge) setPending(addr string, pending bool) {
	b.state.UpdateState(func(s *state.State) { s.Pending = s.WithPending(addr, pending) })
}
