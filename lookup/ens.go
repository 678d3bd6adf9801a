package lookup

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
)

// NameHasher maps an ENS name to its 32-byte node identifier.
type NameHasher func(name string) [32]byte

// Namehash is the EIP-137 name hash.
// Names are used as given, without normalization.
func Namehash(name string) [32]byte {
	var node [32]byte
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		copy(node[:], ethcrypto.Keccak256(node[:], ethcrypto.Keccak256([]byte(labels[i]))))
	}
	return node
}

// Resolver resolves ENS names to addresses
// through a registry contract and the resolver contract it names.
// Results are cached.
type Resolver struct {
	caller   Caller
	registry common.Address
	hash     NameHasher
	cache    *cache.Cache
}

// NewResolver produces a Resolver.
// A nil hasher means Namehash.
// Results are kept for ttl.
func NewResolver(c Caller, registry common.Address, h NameHasher, ttl time.Duration) *Resolver {
	if h == nil {
		h = Namehash
	}
	return &Resolver{
		caller:   c,
		registry: registry,
		hash:     h,
		cache:    cache.New(ttl, 0),
	}
}

// Resolve looks up the address record of name.
func (r *Resolver) Resolve(ctx context.Context, name string) (common.Address, error) {
	if got, ok := r.cache.Get(name); ok {
		return got.(common.Address), nil
	}

	node := r.hash(name)

	v, err := call(ctx, r.caller, r.registry, "resolver", node)
	if err != nil {
		return common.Address{}, err
	}
	resolver := v.(common.Address)
	if resolver == (common.Address{}) {
		return common.Address{}, errors.Wrapf(ErrNoResolver, "%q", name)
	}

	if v, err = call(ctx, r.caller, resolver, "addr", node); err != nil {
		return common.Address{}, err
	}
	result := v.(common.Address)

	r.cache.SetDefault(name, result)
	return result, nil
}
