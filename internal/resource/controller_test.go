package resource

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryBytes: 100})

	require.NoError(t, c.Reserve(50))
	require.NoError(t, c.Reserve(40))
	assert.Equal(t, int64(90), c.MemoryInUse())
	assert.Equal(t, int64(10), c.MemoryAvailable())

	assert.ErrorIs(t, c.Reserve(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryInUse())

	c.Unreserve(50)
	require.NoError(t, c.Reserve(20))
	assert.Equal(t, int64(60), c.MemoryInUse())
}

func TestController_ReservationLargerThanBudget(t *testing.T) {
	c := NewController(Config{MemoryBytes: 100})
	assert.ErrorIs(t, c.Reserve(101), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(0), c.MemoryInUse())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.Reserve(1000))
	assert.Equal(t, int64(1000), c.MemoryInUse())
	assert.Equal(t, int64(-1), c.MemoryAvailable())

	c.Unreserve(500)
	assert.Equal(t, int64(500), c.MemoryInUse())
}

func TestController_Slots(t *testing.T) {
	c := NewController(Config{Slots: 2})

	require.NoError(t, c.AcquireSlot(t.Context()))
	require.NoError(t, c.AcquireSlot(t.Context()))
	assert.Equal(t, int64(2), c.SlotsInUse())
	assert.False(t, c.TryAcquireSlot())

	c.ReleaseSlot()
	assert.True(t, c.TryAcquireSlot())
}

func TestController_AcquireSlotHonorsContext(t *testing.T) {
	c := NewController(Config{Slots: 1})
	require.NoError(t, c.AcquireSlot(t.Context()))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, c.AcquireSlot(ctx), context.Canceled)
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	assert.NoError(t, c.Reserve(1<<40))
	c.Unreserve(1 << 40)
	assert.NoError(t, c.AcquireSlot(t.Context()))
	assert.True(t, c.TryAcquireSlot())
	c.ReleaseSlot()
	assert.NoError(t, c.WaitIO(t.Context(), 1<<20))
	assert.Equal(t, int64(0), c.MemoryInUse())
}

func TestRateLimitedIO(t *testing.T) {
	c := NewController(Config{BytesPerSec: 1 << 20})

	var buf bytes.Buffer
	w := NewWriter(t.Context(), &buf, c)
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	r := NewReader(t.Context(), strings.NewReader("payload"), c)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestReaderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r := NewReader(ctx, strings.NewReader("payload"), nil)
	_, err := r.Read(make([]byte, 4))
	assert.ErrorIs(t, err, context.Canceled)
}
