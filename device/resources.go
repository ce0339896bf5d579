package device

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hupe1980/vecforge/errs"
	"github.com/hupe1980/vecforge/internal/resource"
)

// Resources admits work onto one device. Each Lease is an exclusive session
// holding a memory reservation for its working set.
type Resources struct {
	dev Device
	rc  *resource.Controller
}

// ResourceOptions tunes admission.
type ResourceOptions struct {
	// Sessions is the number of concurrent leases. Defaults to 1.
	Sessions int
	// MemoryBytes overrides the device budget when positive.
	MemoryBytes int64
}

// NewResources creates the admission controller of dev.
func NewResources(dev Device, optFns ...func(o *ResourceOptions)) *Resources {
	opts := ResourceOptions{Sessions: 1, MemoryBytes: dev.MemoryBytes}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MemoryBytes > 0 {
		dev.MemoryBytes = opts.MemoryBytes
	}
	if dev.Streams <= 0 {
		dev.Streams = 1
	}
	return &Resources{
		dev: dev,
		rc: resource.NewController(resource.Config{
			MemoryBytes: dev.MemoryBytes,
			Slots:       int64(max(opts.Sessions, 1)),
		}),
	}
}

// Device returns the managed device.
func (r *Resources) Device() Device { return r.dev }

// MemoryInUse returns the bytes held by outstanding leases.
func (r *Resources) MemoryInUse() int64 { return r.rc.MemoryInUse() }

// Acquire waits for a session, then reserves bytes of device memory without
// blocking. A reservation that does not fit yields a ResourceExhausted error
// and no session is held.
func (r *Resources) Acquire(ctx context.Context, op string, bytes int64) (*Lease, error) {
	if err := r.rc.AcquireSlot(ctx); err != nil {
		return nil, err
	}
	if err := r.rc.Reserve(bytes); err != nil {
		avail := r.rc.MemoryAvailable()
		r.rc.ReleaseSlot()
		if errors.Is(err, resource.ErrMemoryLimitExceeded) {
			return nil, errs.With(
				errs.ResourceExhausted(op, r.dev.Kind.String()+" memory", bytes, avail, err),
				errs.Field("device_id", r.dev.ID),
			)
		}
		return nil, err
	}
	return &Lease{res: r, bytes: bytes}, nil
}

// Lease is an admitted session on a device.
type Lease struct {
	res      *Resources
	bytes    int64
	released atomic.Bool
}

// Device returns the leased device.
func (l *Lease) Device() Device { return l.res.dev }

// Streams returns the parallelism available to the session.
func (l *Lease) Streams() int { return l.res.dev.Streams }

// Bytes returns the reserved memory.
func (l *Lease) Bytes() int64 { return l.bytes }

// Release returns the memory and the session. It is safe to call more than once.
func (l *Lease) Release() {
	if l == nil || !l.released.CompareAndSwap(false, true) {
		return
	}
	l.res.rc.Unreserve(l.bytes)
	l.res.rc.ReleaseSlot()
}
