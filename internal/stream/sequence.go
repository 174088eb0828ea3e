package stream

// maxTrackedGap bounds how far back a missing packet number may still arrive
// and how large a jump is treated as loss rather than a device restart.
const maxTrackedGap = 100

// sequenceTracker accounts for EmotiBit packet numbers that never arrived.
// Numbers skipped by a forward jump stay pending until they show up late or
// fall more than maxTrackedGap behind the next expected number.
type sequenceTracker struct {
	started  bool
	expected uint32
	missing  map[uint32]struct{}

	expired    uint64 // missing numbers given up on
	reordered  uint64
	duplicates uint64 // already seen or given up on
	restarts   uint64
}

func (t *sequenceTracker) observe(seq uint32) {
	if !t.started {
		t.started = true
		t.expected = seq + 1
		return
	}

	switch {
	case seq == t.expected:
		t.expected++

	case seq > t.expected:
		gap := seq - t.expected
		if gap > maxTrackedGap {
			t.expired += uint64(gap)
		} else {
			if t.missing == nil {
				t.missing = make(map[uint32]struct{})
			}
			for s := t.expected; s < seq; s++ {
				t.missing[s] = struct{}{}
			}
		}
		t.expected = seq + 1

	case seq <= maxTrackedGap && t.expected-seq > maxTrackedGap:
		// Counter wrapped or the device rebooted
		t.restarts++
		t.expected = seq + 1

	default:
		if _, ok := t.missing[seq]; ok {
			delete(t.missing, seq)
			t.reordered++
		} else {
			t.duplicates++
		}
	}

	t.expire()
}

// expire gives up on missing numbers too far behind to still arrive.
func (t *sequenceTracker) expire() {
	if len(t.missing) == 0 || t.expected <= maxTrackedGap {
		return
	}
	cutoff := t.expected - maxTrackedGap
	for s := range t.missing {
		if s < cutoff {
			delete(t.missing, s)
			t.expired++
		}
	}
}

// lost counts packet numbers skipped and not (yet) received.
func (t *sequenceTracker) lost() uint64 {
	return t.expired + uint64(len(t.missing))
}
