package sctp

// tsnTracker maintains the contiguous prefix of TSNs an association has
// received on the peer's stream, RFC 4960 §1.6's cumulative TSN. spec.md
// §4.4 requires tracking the out-of-order set even though delivery itself
// is unordered and unreliable; Testable Invariant #2 is exactly this
// value: the maximum t' such that every TSN in (previous last-received-TSN,
// t'] has been seen. Nothing here gates delivery to onData or triggers a
// retransmission request; DATA chunks arrive and are handed up immediately
// regardless of gaps, matching this profile's no-SACK, no-reorder-buffer
// design (see DESIGN.md).
type tsnTracker struct {
	cumulative uint32
	gaps       map[uint32]struct{}
}

// newTSNTracker seeds a tracker at the peer's initial TSN: nothing has
// been received yet, so the cumulative point sits one below the first TSN
// the peer will ever send.
func newTSNTracker(peerInitialTSN uint32) *tsnTracker {
	return &tsnTracker{cumulative: peerInitialTSN - 1, gaps: make(map[uint32]struct{})}
}

// observe records one received TSN, folding it and any now-contiguous
// out-of-order TSNs into the cumulative point.
func (t *tsnTracker) observe(tsn uint32) {
	if !tsnGreaterThan(tsn, t.cumulative) {
		return // duplicate, or already covered by the contiguous prefix
	}
	if tsn != t.cumulative+1 {
		t.gaps[tsn] = struct{}{}
		return
	}
	t.cumulative = tsn
	for {
		next := t.cumulative + 1
		if _, ok := t.gaps[next]; !ok {
			break
		}
		delete(t.gaps, next)
		t.cumulative = next
	}
}

// cumulativeTSN returns the current cumulative TSN ack point.
func (t *tsnTracker) cumulativeTSN() uint32 { return t.cumulative }
