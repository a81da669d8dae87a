package core

// matchReaction looks for one combination of bag entries satisfying
// r's inputs, its static guard and all cross-guards. It does not
// mutate bag. When no cross-guards are declared, the search degrades
// to the simple greedy fold of spec §4.2: there is nothing to
// backtrack over because each position's candidates are independent
// of every other position's choice. When cross-guards are present,
// tryFrom backtracks across positions exactly as the examples'
// mapcatMatch/arraycatMatch pair backtracks across array patterns.
func matchReaction(r *Reaction, bag *MolBag) (picks map[*Emitter][]int, bindings []any, matched []MolValue, ok bool) {
	n := len(r.Inputs)
	bindings = make([]any, n)
	matched = make([]MolValue, n)
	picks = make(map[*Emitter][]int)
	used := make(map[*Emitter]map[int]bool, n)

	order := r.inputsSorted
	if len(order) != n {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	var tryFrom func(pos int) bool
	tryFrom = func(pos int) bool {
		if pos == n {
			return r.Guard.checkCross(bindings)
		}
		idx := order[pos]
		in := r.Inputs[idx]
		e := in.Emitter
		vs := bag.valuesOf(e)
		usedForE := used[e]

		for i, v := range vs {
			if usedForE != nil && usedForE[i] {
				continue
			}
			bs, ok := in.Pattern.Admits(v.Payload)
			if !ok {
				continue
			}

			if usedForE == nil {
				usedForE = make(map[int]bool, 1)
				used[e] = usedForE
			}
			usedForE[i] = true
			picks[e] = append(picks[e], i)

			if len(bs) > 0 {
				bindings[idx] = bs
			} else {
				bindings[idx] = v.Payload
			}
			matched[idx] = v

			if tryFrom(pos + 1) {
				return true
			}

			usedForE[i] = false
			picks[e] = picks[e][:len(picks[e])-1]
			if len(picks[e]) == 0 {
				delete(picks, e)
			}
		}
		return false
	}

	if !r.Guard.checkStatic() {
		return nil, nil, nil, false
	}
	if !tryFrom(0) {
		return nil, nil, nil, false
	}
	return picks, bindings, matched, true
}
