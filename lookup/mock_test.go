package lookup_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobg/ethbs/lookup"
	"github.com/bobg/ethbs/lookup/mocks"
)

func TestResolveCallsInOrder(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	m := mocks.NewMockCaller(ctl)

	registry, err := lookup.ParseAddress("0x314159265dd8dbb310642f98f50c066173c1259b")
	require.NoError(t, err)
	resolver, err := lookup.ParseAddress("0x5ffc014343cd971b7eb70732021e26c35b744cc4")
	require.NoError(t, err)
	target, err := lookup.ParseAddress("0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	require.NoError(t, err)

	node := lookup.Namehash("ethereum.eth")
	call := func(sig string) []byte {
		return append(append([]byte{}, lookup.Selector(sig)...), node[:]...)
	}
	word := func(a common.Address) []byte {
		return common.LeftPadBytes(a.Bytes(), 32)
	}

	gomock.InOrder(
		m.EXPECT().CallContract(gomock.Any(), registry, call("resolver(bytes32)")).Return(word(resolver), nil).Times(1),
		m.EXPECT().CallContract(gomock.Any(), resolver, call("addr(bytes32)")).Return(word(target), nil).Times(1),
	)

	r := lookup.NewResolver(m, registry, nil, time.Minute)
	got, err := r.Resolve(context.Background(), "ethereum.eth")
	require.NoError(t, err)
	assert.Equal(t, target, got)

	// Second lookup is served from the cache.
	got, err = r.Resolve(context.Background(), "ethereum.eth")
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestBalanceOfCallError(t *testing.T) {
	ctl := gomock.NewController(t)
	defer ctl.Finish()

	m := mocks.NewMockCaller(ctl)
	boom := errors.New("execution reverted")
	m.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, boom).Times(1)

	_, err := lookup.BalanceOf(context.Background(), m, common.Address{1}, common.Address{2})
	assert.ErrorIs(t, err, boom)
}
