// Package resource governs the finite resources of a device or service:
//
//   - Memory: a byte budget reserved up front (non-blocking, fail-fast)
//   - Slots: exclusive or bounded concurrent sessions (blocking, context-aware)
//   - IO: token-bucket throttling of bulk transfers
//
// Memory reservations never block; a build that does not fit fails
// immediately so the caller can report exhaustion instead of waiting.
//
//	rc := resource.NewController(resource.Config{MemoryBytes: 1 << 30, Slots: 1})
//	if err := rc.AcquireSlot(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseSlot()
//	if err := rc.Reserve(estimate); err != nil {
//	    return err // ErrMemoryLimitExceeded
//	}
//	defer rc.Unreserve(estimate)
//
// All methods are nil-safe: a nil *Controller imposes no limits.
package resource
