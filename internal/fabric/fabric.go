package fabric

import "sync/atomic"

// ServerRing round-robins write destinations across every server id in
// [0, n). The data plane uses it for writes to keys that hold an R-set
// entry: fanning those writes across the whole fleet is what lets every
// replica's ack re-converge the membership at the new version.
type ServerRing struct {
	n   uint8
	idx atomic.Uint32
}

// NewServerRing returns a ring over n server ids.
func NewServerRing(n uint8) *ServerRing {
	return &ServerRing{n: n}
}

// Select returns the next server id in round-robin order.
func (s *ServerRing) Select() uint8 {
	if s.n == 0 {
		return 0
	}
	idx := s.idx.Add(1) - 1
	return uint8(idx % uint32(s.n))
}

// Fabric is the coordinator's per-replica singleton: the monotonic
// write-version counter, the R-set, and the access statistics that
// drive promotion. One Fabric serves one coordinator shard; in a
// multi-coordinator deployment each shard owns its own Fabric and its
// own slice of the keyhash space (see internal/cluster).
type Fabric struct {
	version    atomic.Uint32
	rset       *RSet
	stats      *Stats
	servers    *ServerRing
	sendErrors atomic.Uint64
	owns       func(keyhash uint32) bool
}

// NewFabric builds a Fabric that rotates replicated-key writes across
// numServers server ids.
func NewFabric(numServers int) *Fabric {
	return &Fabric{
		rset:    NewRSet(),
		stats:   NewStats(),
		servers: NewServerRing(uint8(numServers)),
	}
}

// SetShardFilter restricts the promotion loop to keyhashes owns reports
// as belonging to this coordinator replica's partition. A nil filter
// (the default, and the single-coordinator case) owns the entire
// keyspace. Set once at startup, before any epoch runs.
func (f *Fabric) SetShardFilter(owns func(keyhash uint32) bool) {
	f.owns = owns
}

// RSet exposes the replica-set map for the admin surface and the
// promotion loop.
func (f *Fabric) RSet() *RSet { return f.rset }

// Stats exposes the access-count block for the promotion loop.
func (f *Fabric) Stats() *Stats { return f.stats }

// Version returns the current write-version counter without advancing
// it, for admin introspection.
func (f *Fabric) Version() uint32 { return f.version.Load() }

// RecordSendError bumps the error counter the admin surface reports at
// /stats.
func (f *Fabric) RecordSendError() { f.sendErrors.Add(1) }

// SendErrors returns the cumulative send-error count.
func (f *Fabric) SendErrors() uint64 { return f.sendErrors.Load() }

// Worker is the per-goroutine state a data-plane packet handler
// carries: a private, non-atomic sampling counter. Never share a
// Worker across goroutines.
type Worker struct {
	fabric *Fabric
	sample uint64
}

// NewWorker returns a fresh per-goroutine handle on f.
func (f *Fabric) NewWorker() *Worker {
	return &Worker{fabric: f}
}

// sampled advances the private counter and reports whether this request
// should update the shared stats maps.
func (w *Worker) sampled() bool {
	w.sample++
	return w.sample%StatsSampleRate == 0
}
