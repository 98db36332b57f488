package game

import "time"

// pendingJournal holds the ordered, seq-tagged deltas awaiting server
// confirmation. All access happens under the owning store's lock.
type pendingJournal struct {
	deltas          []PendingDelta
	nextSeq         uint64
	inFlightThrough uint64
}

func newPendingJournal() pendingJournal {
	return pendingJournal{deltas: make([]PendingDelta, 0), nextSeq: 1}
}

// record folds a tap into the newest open delta when it falls inside the
// coalesce window, otherwise appends a fresh delta with the next sequence.
// A zero window disables coalescing. Deltas already staged for an in-flight
// request are never touched.
func (j *pendingJournal) record(taps int, coins int64, energy int, at time.Time, window time.Duration) PendingDelta {
	if n := len(j.deltas); n > 0 {
		newest := &j.deltas[n-1]
		open := newest.Seq > j.inFlightThrough
		if open && window > 0 && !at.After(newest.ClientTime.Add(window)) {
			newest.Taps += taps
			newest.CoinsEarned += coins
			newest.EnergySpent += energy
			return *newest
		}
	}
	delta := PendingDelta{
		Seq:         j.nextSeq,
		Taps:        taps,
		CoinsEarned: coins,
		EnergySpent: energy,
		ClientTime:  at,
	}
	j.nextSeq++
	j.deltas = append(j.deltas, delta)
	return delta
}

// stage freezes the current buffer for a round-trip. Returns false when a
// request is already outstanding or nothing is pending.
func (j *pendingJournal) stage() ([]PendingDelta, uint64, bool) {
	if j.inFlightThrough != 0 || len(j.deltas) == 0 {
		return nil, 0, false
	}
	staged := make([]PendingDelta, len(j.deltas))
	copy(staged, j.deltas)
	highest := staged[len(staged)-1].Seq
	j.inFlightThrough = highest
	return staged, highest, true
}

// release clears the in-flight marker after a failed round-trip, keeping
// every delta for the next attempt.
func (j *pendingJournal) release() {
	j.inFlightThrough = 0
}

// confirmThrough discards exactly the deltas covered by an acknowledged
// request and clears the in-flight marker. Deltas created after the request
// was dispatched survive for re-application.
func (j *pendingJournal) confirmThrough(seq uint64) {
	kept := j.deltas[:0]
	for _, d := range j.deltas {
		if d.Seq > seq {
			kept = append(kept, d)
		}
	}
	j.deltas = kept
	j.inFlightThrough = 0
}

// clear drops every pending delta, reporting how many were discarded.
func (j *pendingJournal) clear() int {
	dropped := len(j.deltas)
	j.deltas = j.deltas[:0]
	j.inFlightThrough = 0
	return dropped
}

// restore seeds the journal from persisted deltas, resuming the sequence
// counter past the highest restored value.
func (j *pendingJournal) restore(deltas []PendingDelta) {
	j.deltas = j.deltas[:0]
	j.inFlightThrough = 0
	for _, d := range deltas {
		j.deltas = append(j.deltas, d)
		if d.Seq >= j.nextSeq {
			j.nextSeq = d.Seq + 1
		}
	}
}

func (j *pendingJournal) counts() (deltas int, taps int) {
	for _, d := range j.deltas {
		taps += d.Taps
	}
	return len(j.deltas), taps
}

func (j *pendingJournal) oldest() (time.Time, bool) {
	if len(j.deltas) == 0 {
		return time.Time{}, false
	}
	return j.deltas[0].ClientTime, true
}
