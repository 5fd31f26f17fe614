package events

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/gipsh/safe-approver-go/internal/types"
)

func TestBusOrdering(t *testing.T) {
	bus := NewBus()
	var first, second Recorder
	bus.Subscribe(first.Handle)
	bus.Subscribe(second.Handle)

	p := common.HexToAddress("0x1")
	bus.Emit(types.WhitelistAdded(p))
	bus.Emit(types.LimitChanged(big.NewInt(7)))
	last := bus.Emit(types.WhitelistRemoved(p))

	assert.Equal(t, uint64(3), last.Seq)
	assert.Equal(t, uint64(3), bus.Seq())
	want := []types.EventKind{types.EventWhitelistAdded, types.EventLimitChanged, types.EventWhitelistRemoved}
	assert.Equal(t, want, first.Kinds())
	assert.Equal(t, want, second.Kinds())
	for i, ev := range first.Events() {
		assert.Equal(t, uint64(i+1), ev.Seq)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	var kept, dropped Recorder
	bus.Subscribe(kept.Handle)
	unsubscribe := bus.Subscribe(dropped.Handle)

	bus.Emit(types.LimitChanged(big.NewInt(1)))
	unsubscribe()
	unsubscribe()
	bus.Emit(types.LimitChanged(big.NewInt(2)))

	assert.Len(t, kept.Events(), 2)
	assert.Len(t, dropped.Events(), 1)
}

func TestEventCopiesLimit(t *testing.T) {
	limit := big.NewInt(5)
	ev := types.LimitChanged(limit)
	limit.SetInt64(6)
	assert.Equal(t, int64(5), ev.Limit.Int64())
}
