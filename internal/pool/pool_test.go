package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clobcore/xchange/internal/orders"
)

// assertFatal swaps the invariant-violation exit for a panic so fatal
// paths can be asserted without killing the test binary.
func assertFatal(t *testing.T, f func()) {
	t.Helper()
	prev := orders.ExitFunc
	orders.ExitFunc = func(int) { panic("invariant violation") }
	defer func() { orders.ExitFunc = prev }()
	assert.Panics(t, f)
}

type widget struct {
	id   int
	next Handle
}

func TestAllocateReturnsZeroedStableSlots(t *testing.T) {
	p := New[widget]("test", 4)

	h1 := p.Allocate()
	h2 := p.Allocate()
	require.NotEqual(t, h1, h2)

	p.Get(h1).id = 7
	p.Get(h1).next = h2
	p.Get(h2).id = 9

	// Pointers stay valid across further allocations.
	h3 := p.Allocate()
	assert.Equal(t, 7, p.Get(h1).id)
	assert.Equal(t, h2, p.Get(h1).next)
	assert.Equal(t, 9, p.Get(h2).id)
	assert.Equal(t, 0, p.Get(h3).id, "a fresh slot is zeroed")

	assert.Equal(t, 3, p.InUse())
	assert.Equal(t, 4, p.Capacity())
}

func TestFreeMakesSlotReusable(t *testing.T) {
	p := New[widget]("test", 2)

	h1 := p.Allocate()
	h2 := p.Allocate()
	p.Get(h1).id = 1
	p.Get(h2).id = 2

	p.Free(h1)
	assert.Equal(t, 1, p.InUse())

	h3 := p.Allocate()
	assert.Equal(t, h1, h3, "the freed slot is handed out again")
	assert.Equal(t, 0, p.Get(h3).id, "reused slot is reset, not stale")
}

func TestRotatingCursorAvoidsImmediateReuseWhenFreeSlotsRemain(t *testing.T) {
	p := New[widget]("test", 4)

	h1 := p.Allocate()
	p.Allocate()
	p.Free(h1)

	// The cursor keeps rotating forward: with slots 2 and 3 still never
	// used, the next allocation takes one of them before wrapping back to
	// the freed slot 0.
	h3 := p.Allocate()
	assert.NotEqual(t, h1, h3)
}

func TestExhaustionIsFatal(t *testing.T) {
	p := New[widget]("test", 1)
	p.Allocate()
	assertFatal(t, func() { p.Allocate() })
}

func TestDoubleFreeIsFatal(t *testing.T) {
	p := New[widget]("test", 2)
	h := p.Allocate()
	p.Free(h)
	assertFatal(t, func() { p.Free(h) })
}

func TestOutOfRangeHandleIsFatal(t *testing.T) {
	p := New[widget]("test", 2)
	assertFatal(t, func() { p.Get(InvalidHandle) })
	assertFatal(t, func() { p.Free(Handle(99)) })
}
