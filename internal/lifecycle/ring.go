package lifecycle

// sigRing remembers the last N processed signatures for one token, backing
// event idempotence. Membership checks are O(1); eviction is oldest-first.
// Upstream de-duplication (the poller's seen set) already filters most
// repeats; the ring catches replays that slip past it. Its contents are
// persisted on the token record and rebuilt on startup, so membership
// survives a process restart.
type sigRing struct {
	order []string
	set   map[string]struct{}
	size  int
	next  int
}

func newSigRing(size int) *sigRing {
	if size <= 0 {
		size = 64
	}
	return &sigRing{
		order: make([]string, size),
		set:   make(map[string]struct{}, size),
		size:  size,
	}
}

// newSigRingFrom rebuilds a ring from a persisted oldest-first snapshot.
func newSigRingFrom(size int, sigs []string) *sigRing {
	r := newSigRing(size)
	for _, s := range sigs {
		if s != "" {
			r.add(s)
		}
	}
	return r
}

func (r *sigRing) contains(sig string) bool {
	_, ok := r.set[sig]
	return ok
}

func (r *sigRing) add(sig string) {
	if r.contains(sig) {
		return
	}
	if old := r.order[r.next]; old != "" {
		delete(r.set, old)
	}
	r.order[r.next] = sig
	r.set[sig] = struct{}{}
	r.next = (r.next + 1) % r.size
}

// snapshot returns the remembered signatures oldest-first, for persistence.
func (r *sigRing) snapshot() []string {
	out := make([]string, 0, len(r.set))
	for i := 0; i < r.size; i++ {
		if s := r.order[(r.next+i)%r.size]; s != "" {
			out = append(out, s)
		}
	}
	return out
}

// snapshotWith returns snapshot() extended by sig, trimmed to capacity.
func (r *sigRing) snapshotWith(sig string) []string {
	if r.contains(sig) {
		return r.snapshot()
	}
	out := append(r.snapshot(), sig)
	if len(out) > r.size {
		out = out[len(out)-r.size:]
	}
	return out
}
