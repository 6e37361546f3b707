package parley

import "time"

// Admit runs the sliding-window rate check for one inbound chat payload.
// It is a single atomic Registry operation: the window inspection and the
// counter update happen under the Registry lock, so a concurrent Snapshot
// or Remove never observes a half-applied window.
//
// Semantics per window: once the window length has elapsed since
// windowStart, the window resets (count=1, admit); below the limit the
// count increments and the payload is admitted; at the limit the payload
// is rejected. Rejection never evicts the connection.
//
// Commands and PING/PONG control traffic are not rate limited; callers
// invoke Admit only for chat text. A missing key (member already removed)
// admits — the handler is about to exit anyway.
func (r *Registry) Admit(key string, limit int, window time.Duration, now time.Time) bool {
	if limit <= 0 {
		return true
	}
	admitted := true
	found := r.Update(key, func(m *Member) {
		if m.windowStart.IsZero() || now.Sub(m.windowStart) >= window {
			m.windowStart = now
			m.windowCount = 1
			return
		}
		if m.windowCount < limit {
			m.windowCount++
			return
		}
		admitted = false
	})
	if !found {
		return true
	}
	return admitted
}
