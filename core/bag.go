package core

// MolBag is the multiset of pending molecule instances owned by one
// Site. It is not a queue: instances within one emitter's multiset
// have no guaranteed order, and the scheduler is free to select any
// combination that satisfies some reaction.
//
// MolBag is not internally synchronized. It is mutated only while the
// owning Site holds its scheduling lock.
type MolBag struct {
	entries map[*Emitter][]MolValue
}

func newMolBag() *MolBag {
	return &MolBag{entries: make(map[*Emitter][]MolValue)}
}

// add appends one instance to e's multiset.
func (b *MolBag) add(e *Emitter, v MolValue) {
	b.entries[e] = append(b.entries[e], v)
}

// count returns how many instances of e are currently in the bag.
func (b *MolBag) count(e *Emitter) int {
	return len(b.entries[e])
}

// valuesOf returns e's current multiset. The slice is owned by the
// bag; callers must not retain or mutate it past the scheduling
// critical section.
func (b *MolBag) valuesOf(e *Emitter) []MolValue {
	return b.entries[e]
}

// removeAt deletes the instance at index i of e's multiset.
func (b *MolBag) removeAt(e *Emitter, i int) {
	vs := b.entries[e]
	vs[i] = vs[len(vs)-1]
	b.entries[e] = vs[:len(vs)-1]
	if len(b.entries[e]) == 0 {
		delete(b.entries, e)
	}
}

// removeMany deletes, for each emitter, the instances at the given
// indices. Indices for one emitter must be in ascending order.
func (b *MolBag) removeMany(picks map[*Emitter][]int) {
	for e, idxs := range picks {
		vs := b.entries[e]
		keep := vs[:0:0]
		skip := make(map[int]bool, len(idxs))
		for _, i := range idxs {
			skip[i] = true
		}
		for i, v := range vs {
			if !skip[i] {
				keep = append(keep, v)
			}
		}
		if len(keep) == 0 {
			delete(b.entries, e)
		} else {
			b.entries[e] = keep
		}
	}
}

// snapshot returns a shallow copy of the bag's emitter->count map, for
// LogSoup and diagnostics. Payloads are not copied.
func (b *MolBag) snapshot() map[string]int {
	out := make(map[string]int, len(b.entries))
	for e, vs := range b.entries {
		out[e.Name()] = len(vs)
	}
	return out
}
