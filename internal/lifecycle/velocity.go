package lifecycle

import "sync"

// hourMs is one hour in milliseconds.
const hourMs = 3_600_000

// velocityTracker counts events per token per hour bucket, keeping the
// current and previous hour so the scorer can see hour-over-hour
// acceleration. State is in-memory: after a restart acceleration starts from
// zero, which only costs the bonus points until a full hour accumulates.
type velocityTracker struct {
	mu      sync.Mutex
	buckets map[string]*hourBucket
}

type hourBucket struct {
	hourStart int64 // Unix ms, aligned to the hour
	count     int
	prevCount int
}

func newVelocityTracker() *velocityTracker {
	return &velocityTracker{buckets: make(map[string]*hourBucket)}
}

// record counts one event at the given time.
func (v *velocityTracker) record(mint string, atMs int64) {
	hour := atMs - atMs%hourMs

	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.buckets[mint]
	if !ok {
		v.buckets[mint] = &hourBucket{hourStart: hour, count: 1}
		return
	}

	switch {
	case hour == b.hourStart:
		b.count++
	case hour == b.hourStart+hourMs:
		b.prevCount = b.count
		b.count = 1
		b.hourStart = hour
	case hour > b.hourStart:
		// A gap of more than one hour: the previous hour saw nothing.
		b.prevCount = 0
		b.count = 1
		b.hourStart = hour
	default:
		// Late event for an older hour; count it against the current bucket
		// rather than losing it.
		b.count++
	}
}

// counts returns the current and previous hour counts for a token.
func (v *velocityTracker) counts(mint string, nowMs int64) (lastHour, prevHour int) {
	hour := nowMs - nowMs%hourMs

	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.buckets[mint]
	if !ok {
		return 0, 0
	}
	switch {
	case hour == b.hourStart:
		return b.count, b.prevCount
	case hour == b.hourStart+hourMs:
		return 0, b.count
	default:
		return 0, 0
	}
}

// forget drops a token's buckets once it leaves active tracking.
func (v *velocityTracker) forget(mint string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.buckets, mint)
}
