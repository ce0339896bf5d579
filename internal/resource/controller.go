package resource

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a reservation does not fit the budget.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryBytes is the hard memory budget. If 0, usage is only tracked.
	MemoryBytes int64

	// Slots is the number of concurrent sessions. If 0, defaults to 1.
	Slots int64

	// BytesPerSec throttles IO. If 0, unlimited.
	BytesPerSec int64
}

// Controller manages a memory budget, session slots and IO throughput.
type Controller struct {
	cfg Config

	mem     *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	slots     *semaphore.Weighted
	slotsUsed atomic.Int64

	limiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.Slots <= 0 {
		cfg.Slots = 1
	}

	c := &Controller{
		cfg:   cfg,
		slots: semaphore.NewWeighted(cfg.Slots),
	}

	if cfg.MemoryBytes > 0 {
		c.mem = semaphore.NewWeighted(cfg.MemoryBytes)
	}

	if cfg.BytesPerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.BytesPerSec), int(cfg.BytesPerSec))
	}

	return c
}

// Reserve claims bytes of the memory budget without blocking.
func (c *Controller) Reserve(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.mem != nil {
		if bytes > c.cfg.MemoryBytes || !c.mem.TryAcquire(bytes) {
			return ErrMemoryLimitExceeded
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// Unreserve returns bytes to the memory budget.
func (c *Controller) Unreserve(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.mem != nil {
		c.mem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryInUse returns the reserved bytes.
func (c *Controller) MemoryInUse() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryAvailable returns the unreserved budget, or -1 when unlimited.
func (c *Controller) MemoryAvailable() int64 {
	if c == nil || c.mem == nil {
		return -1
	}
	return c.cfg.MemoryBytes - c.memUsed.Load()
}

// MemoryLimit returns the configured budget in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryBytes
}

// AcquireSlot blocks until a session slot is free or ctx is done.
func (c *Controller) AcquireSlot(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.slots.Acquire(ctx, 1); err != nil {
		return err
	}
	c.slotsUsed.Add(1)
	return nil
}

// TryAcquireSlot reserves a session slot without blocking.
func (c *Controller) TryAcquireSlot() bool {
	if c == nil {
		return true
	}
	if !c.slots.TryAcquire(1) {
		return false
	}
	c.slotsUsed.Add(1)
	return true
}

// ReleaseSlot frees a session slot.
func (c *Controller) ReleaseSlot() {
	if c == nil {
		return
	}
	c.slotsUsed.Add(-1)
	c.slots.Release(1)
}

// SlotsInUse returns the number of held slots.
func (c *Controller) SlotsInUse() int64 {
	if c == nil {
		return 0
	}
	return c.slotsUsed.Load()
}

// Slots returns the configured slot count.
func (c *Controller) Slots() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.Slots
}

// WaitIO waits until the limiter admits bytes. Requests larger than the
// burst are admitted in burst-sized steps.
func (c *Controller) WaitIO(ctx context.Context, bytes int) error {
	if c == nil || c.limiter == nil {
		return nil
	}
	burst := c.limiter.Burst()
	for bytes > 0 {
		n := min(bytes, burst)
		if err := c.limiter.WaitN(ctx, n); err != nil {
			return err
		}
		bytes -= n
	}
	return nil
}
