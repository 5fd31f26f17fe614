package policy

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gipsh/safe-approver-go/internal/events"
	"github.com/gipsh/safe-approver-go/internal/types"
)

var (
	admin    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	hacker   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	safeAddr = common.HexToAddress("0x1B55c54E870cb58d013B4AE39E276894ce1e0EdD")
	protocol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func newStore(t *testing.T) (*Store, *events.Recorder) {
	t.Helper()
	bus := events.NewBus()
	rec := &events.Recorder{}
	bus.Subscribe(rec.Handle)
	s, err := New(Config{
		Admin:     admin,
		Safe:      safeAddr,
		Limit:     big.NewInt(100),
		Whitelist: []common.Address{protocol},
	}, bus)
	require.NoError(t, err)
	return s, rec
}

func TestNew(t *testing.T) {
	s, rec := newStore(t)
	assert.Equal(t, safeAddr, s.Safe())
	assert.Equal(t, admin, s.Admin())
	assert.Equal(t, int64(100), s.Limit().Int64())
	assert.True(t, s.IsWhitelisted(protocol))
	assert.False(t, s.IsWhitelisted(hacker))
	assert.Empty(t, rec.Events(), "initial whitelist is installed silently")

	bus := events.NewBus()
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "no safe", cfg: Config{Admin: admin, Limit: big.NewInt(0)}},
		{name: "no admin", cfg: Config{Safe: safeAddr, Limit: big.NewInt(0)}},
		{name: "nil limit", cfg: Config{Admin: admin, Safe: safeAddr}},
		{name: "negative limit", cfg: Config{Admin: admin, Safe: safeAddr, Limit: big.NewInt(-1)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.cfg, bus)
			assert.Error(t, err)
		})
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	s, rec := newStore(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000d4")

	mutations := map[string]func() error{
		"set limit":        func() error { return s.SetLimit(hacker, big.NewInt(1)) },
		"add":              func() error { return s.AddToWhitelist(hacker, other) },
		"remove":           func() error { return s.RemoveFromWhitelist(hacker, protocol) },
		"transfer admin":   func() error { return s.TransferAdmin(hacker, hacker) },
		// Invalid arguments from a non-admin are still unauthorized.
		"negative limit":   func() error { return s.SetLimit(hacker, big.NewInt(-1)) },
		"nil limit":        func() error { return s.SetLimit(hacker, nil) },
		"transfer to zero": func() error { return s.TransferAdmin(hacker, common.Address{}) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			err := mutate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnauthorized))
			var unauthorized *UnauthorizedError
			require.True(t, errors.As(err, &unauthorized))
			assert.Equal(t, hacker, unauthorized.Caller)
		})
	}

	assert.Equal(t, int64(100), s.Limit().Int64())
	assert.True(t, s.IsWhitelisted(protocol))
	assert.False(t, s.IsWhitelisted(other))
	assert.Equal(t, admin, s.Admin())
	assert.Empty(t, rec.Events())
}

func TestSetLimit(t *testing.T) {
	s, rec := newStore(t)
	require.NoError(t, s.SetLimit(admin, big.NewInt(1000)))
	assert.Equal(t, int64(1000), s.Limit().Int64())

	evs := rec.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, types.EventLimitChanged, evs[0].Kind)
	assert.Equal(t, int64(1000), evs[0].Limit.Int64())

	assert.ErrorIs(t, s.SetLimit(admin, big.NewInt(-5)), ErrInvalid)
	assert.Error(t, s.SetLimit(admin, nil))
	assert.Equal(t, int64(1000), s.Limit().Int64())
}

func TestLimitIsCopied(t *testing.T) {
	s, _ := newStore(t)
	l := s.Limit()
	l.SetInt64(1)
	assert.Equal(t, int64(100), s.Limit().Int64())
}

func TestWhitelistIdempotence(t *testing.T) {
	s, rec := newStore(t)
	fresh := common.HexToAddress("0x00000000000000000000000000000000000000e5")
	absent := common.HexToAddress("0x00000000000000000000000000000000000000f6")

	require.NoError(t, s.AddToWhitelist(admin, fresh))
	require.NoError(t, s.AddToWhitelist(admin, fresh))
	assert.True(t, s.IsWhitelisted(fresh))

	require.NoError(t, s.RemoveFromWhitelist(admin, absent))
	assert.False(t, s.IsWhitelisted(absent))
	assert.Equal(t, []common.Address{protocol, fresh}, s.Whitelist())

	require.NoError(t, s.RemoveFromWhitelist(admin, protocol))
	assert.False(t, s.IsWhitelisted(protocol))

	assert.Equal(t, []types.EventKind{
		types.EventWhitelistAdded,
		types.EventWhitelistAdded,
		types.EventWhitelistRemoved,
		types.EventWhitelistRemoved,
	}, rec.Kinds())
	evs := rec.Events()
	assert.Equal(t, fresh, *evs[0].Protocol)
	assert.Equal(t, absent, *evs[2].Protocol)
	assert.Equal(t, protocol, *evs[3].Protocol)
}

func TestTransferAdmin(t *testing.T) {
	s, rec := newStore(t)
	require.ErrorIs(t, s.TransferAdmin(admin, common.Address{}), ErrInvalid)

	require.NoError(t, s.TransferAdmin(admin, hacker))
	assert.Equal(t, hacker, s.Admin())

	err := s.SetLimit(admin, big.NewInt(1))
	assert.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, s.SetLimit(hacker, big.NewInt(1)))

	assert.Equal(t, []types.EventKind{types.EventAdminTransferred, types.EventLimitChanged}, rec.Kinds())
}
