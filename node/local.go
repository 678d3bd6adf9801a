package node

import (
	"context"
	"sort"
	"sync"

	"github.com/bitmark-inc/logger"
	"github.com/libp2p/go-libp2p-core/crypto"
	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	madns "github.com/multiformats/go-multiaddr-dns"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
)

// Dialer makes and breaks the transport-level connections of a Local node.
type Dialer interface {
	Dial(context.Context, peer.AddrInfo) error
	HangUp(context.Context, peer.ID) error
}

var _ Node = &Local{}

// Local is a Node backed by a blob store.
// Connections are made through an optional Dialer;
// without one, peers are only recorded.
type Local struct {
	s      ethbs.Store
	dialer Dialer
	id     peer.ID
	addrs  []ma.Multiaddr
	log    *logger.L

	mu    sync.Mutex
	peers map[string]Peer // keyed by address string
}

// NewLocal produces a Local node over s.
// If key is nil a fresh ed25519 identity is generated.
// The dialer may be nil.
func NewLocal(s ethbs.Store, key crypto.PrivKey, dialer Dialer, addrs ...ma.Multiaddr) (*Local, error) {
	if key == nil {
		var err error
		key, _, err = crypto.GenerateKeyPair(crypto.Ed25519, -1)
		if err != nil {
			return nil, errors.Wrap(err, "generating identity")
		}
	}
	id, err := peer.IDFromPrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "computing peer ID")
	}
	return &Local{
		s:      s,
		dialer: dialer,
		id:     id,
		addrs:  addrs,
		log:    logger.New("node"),
		peers:  make(map[string]Peer),
	}, nil
}

// Put implements Node.Put.
func (n *Local) Put(ctx context.Context, blob []byte, c ethbs.CID) error {
	if !c.Verify(blob) {
		return errors.Wrapf(ErrMismatch, "putting %s", c)
	}
	_, added, err := n.s.Put(ctx, c.Codec, blob)
	if err != nil {
		return errors.Wrapf(err, "storing %s", c)
	}
	if added {
		n.log.Debugf("stored %s (%d bytes)", c, len(blob))
	}
	return nil
}

// Get implements Node.Get.
func (n *Local) Get(ctx context.Context, c ethbs.CID, subpath string) ([]byte, error) {
	return resolve(ctx, n.s, c, subpath)
}

// Connect implements Node.Connect.
func (n *Local) Connect(ctx context.Context, addr ma.Multiaddr) error {
	info, err := peer.AddrInfoFromP2pAddr(addr)
	if err != nil {
		return errors.Wrapf(err, "parsing %s", addr)
	}
	if info.ID == n.id {
		return errors.Errorf("refusing to connect to self (%s)", addr)
	}
	if n.dialer != nil {
		info.Addrs, err = resolveAddrs(ctx, info.Addrs)
		if err != nil {
			return errors.Wrapf(err, "resolving %s", addr)
		}
		if err = n.dialer.Dial(ctx, *info); err != nil {
			return errors.Wrapf(err, "dialing %s", addr)
		}
	}

	n.mu.Lock()
	n.peers[addr.String()] = Peer{ID: info.ID, Addr: addr}
	n.mu.Unlock()

	n.log.Infof("connected to %s", addr)
	return nil
}

// Disconnect implements Node.Disconnect.
// Disconnecting from an unknown peer is not an error.
func (n *Local) Disconnect(ctx context.Context, id peer.ID) error {
	if n.dialer != nil {
		if err := n.dialer.HangUp(ctx, id); err != nil {
			return errors.Wrapf(err, "hanging up on %s", peer.IDB58Encode(id))
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for k, p := range n.peers {
		if p.ID == id {
			delete(n.peers, k)
		}
	}
	n.log.Infof("disconnected from %s", peer.IDB58Encode(id))
	return nil
}

// Peers implements Node.Peers.
// The result is sorted by address.
func (n *Local) Peers(context.Context) ([]Peer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	result := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	return result, nil
}

// ID implements Node.ID.
func (n *Local) ID(context.Context) (Info, error) {
	return Info{ID: n.id, Addrs: n.addrs}, nil
}

// resolveAddrs expands /dns4, /dns6 and /dnsaddr components
// into the addresses they name.
func resolveAddrs(ctx context.Context, addrs []ma.Multiaddr) ([]ma.Multiaddr, error) {
	var result []ma.Multiaddr
	for _, a := range addrs {
		if !madns.Matches(a) {
			result = append(result, a)
			continue
		}
		resolved, err := madns.Resolve(ctx, a)
		if err != nil {
			return nil, err
		}
		result = append(result, resolved...)
	}
	return result, nil
}
