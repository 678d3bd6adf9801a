// Package node is the storage-network side of the bridge:
// a place to put block headers and resolve paths through them,
// plus the bookkeeping for the peers it is connected to.
package node

import (
	"context"

	"github.com/libp2p/go-libp2p-core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/pkg/errors"

	"github.com/bobg/ethbs"
)

// Node is a content-addressed storage network endpoint.
type Node interface {
	// Put stores blob under c.
	// It fails with ErrMismatch if blob does not hash to c.
	Put(ctx context.Context, blob []byte, c ethbs.CID) error

	// Get resolves subpath starting at the blob named by c.
	// An empty subpath yields the blob itself.
	Get(ctx context.Context, c ethbs.CID, subpath string) ([]byte, error)

	// Connect dials the peer at addr,
	// which must end in a /ipfs/<peer-id> component.
	Connect(ctx context.Context, addr ma.Multiaddr) error

	// Disconnect hangs up on every address of the given peer.
	Disconnect(ctx context.Context, id peer.ID) error

	// Peers lists the connected peers.
	Peers(ctx context.Context) ([]Peer, error)

	// ID describes this node.
	ID(ctx context.Context) (Info, error)
}

// Peer is one connection to a remote node.
type Peer struct {
	ID   peer.ID
	Addr ma.Multiaddr
}

// String is the full /.../ipfs/<id> form of p's address.
func (p Peer) String() string {
	if p.Addr == nil {
		return "/ipfs/" + peer.IDB58Encode(p.ID)
	}
	return p.Addr.String()
}

// Info is a node's self-description.
type Info struct {
	ID    peer.ID
	Addrs []ma.Multiaddr
}

var (
	// ErrMismatch means a blob does not hash to the CID it was offered under.
	ErrMismatch = errors.New("content does not match identifier")

	// ErrNoPath means a path segment named nothing in the value being walked.
	ErrNoPath = errors.New("no such path")
)
