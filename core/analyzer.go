package core

import "fmt"

// analysisResult is what the static analyzer produces for one Site:
// the emitters it discovered (in first-seen order), the set of
// emitters classified static, and a list of
// non-fatal warnings. A non-nil err means Construct must fail; the
// site is never partially usable.
type analysisResult struct {
	emitters []*Emitter
	static   map[*Emitter]*Reaction // static emitter -> its seeding reaction
	warnings []string
}

// analyze runs every check in spec §4.4 against the declared
// reactions of one site, before any molecule has ever been bagged.
func analyze(reactions []*Reaction) (*analysisResult, error) {
	res := &analysisResult{static: map[*Emitter]*Reaction{}}
	seen := map[*Emitter]bool{}

	addEmitter := func(e *Emitter) {
		if !seen[e] {
			seen[e] = true
			res.emitters = append(res.emitters, e)
		}
	}

	for _, r := range reactions {
		for _, in := range r.Inputs {
			addEmitter(in.Emitter)
		}
		for _, out := range r.Outputs {
			addEmitter(out.Emitter)
		}
	}

	if err := analyzeStaticMolecules(reactions, res); err != nil {
		return nil, err
	}
	if err := analyzeShadowing(reactions, res); err != nil {
		return nil, err
	}
	if err := analyzeLivelock(reactions, res); err != nil {
		return nil, err
	}
	analyzeDeadlockWarnings(reactions, res)
	computeSelectivityOrder(reactions)

	return res, nil
}

// analyzeStaticMolecules enforces four rules on each reaction marked
// IsStatic (spec §4.4): the reaction is guardless, it declares exactly
// one output, that output molecule is non-blocking, and no two static
// reactions seed the same molecule. How the other reactions consume or
// emit a static molecule is not checked.
func analyzeStaticMolecules(reactions []*Reaction, res *analysisResult) error {
	for _, r := range reactions {
		if !r.IsStatic {
			continue
		}
		if r.Guard.kind == guardPresent {
			return &ErrStaticGuarded{Reaction: r.Name()}
		}
		if len(r.Outputs) != 1 {
			return &ErrStaticDeclaration{
				Molecule: r.Name(),
				Reason:   "a static reaction must declare exactly one output",
			}
		}
		out := r.Outputs[0]
		if out.Emitter.Kind() == Blocking {
			return &ErrBlockingStatic{Molecule: out.Emitter.Name()}
		}
		if prior, dup := res.static[out.Emitter]; dup {
			return &ErrStaticDeclaration{
				Molecule: out.Emitter.Name(),
				Reason:   fmt.Sprintf("already seeded by reaction %s", prior.Name()),
			}
		}
		res.static[out.Emitter] = r
	}
	return nil
}

// analyzeShadowing flags a guardless reaction whose inputs are no more
// selective than an earlier guardless reaction's over the same emitter
// multiset: the later reaction can never fire, since the earlier one
// always matches first.
func analyzeShadowing(reactions []*Reaction, res *analysisResult) error {
	for j := 1; j < len(reactions); j++ {
		rj := reactions[j]
		if rj.Guard.kind == guardPresent {
			continue
		}
		for i := 0; i < j; i++ {
			ri := reactions[i]
			if ri.Guard.kind == guardPresent || !sameEmitterMultiset(ri, rj) {
				continue
			}
			if everyInputWeakerOrEqual(ri, rj) {
				return &ErrShadowing{Reaction: rj.Name(), Shadows: ri.Name()}
			}
		}
	}
	return nil
}

func sameEmitterMultiset(a, b *Reaction) bool {
	if len(a.Inputs) != len(b.Inputs) {
		return false
	}
	counts := map[*Emitter]int{}
	for _, in := range a.Inputs {
		counts[in.Emitter]++
	}
	for _, in := range b.Inputs {
		counts[in.Emitter]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

// everyInputWeakerOrEqual pairs up a's and b's inputs by emitter
// identity (multiplicities matter but order does not) and checks that
// a's pattern at each position is weaker than or structurally
// identical to b's.
func everyInputWeakerOrEqual(a, b *Reaction) bool {
	remaining := append([]InputMoleculeInfo(nil), b.Inputs...)
	for _, ia := range a.Inputs {
		found := -1
		for k, ib := range remaining {
			if ib.Emitter != ia.Emitter {
				continue
			}
			if ia.Pattern.WeakerThan(ib.Pattern) || samePatternShape(ia.Pattern, ib.Pattern) {
				found = k
				break
			}
		}
		if found == -1 {
			return false
		}
		remaining = append(remaining[:found], remaining[found+1:]...)
	}
	return true
}

func samePatternShape(a, b InputPatternType) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind == kindConst {
		return structurallyEqual(a.value, b.value)
	}
	return a.Trivial() && b.Trivial()
}

// analyzeLivelock flags a reaction that is guaranteed to reproduce
// every one of its own inputs as soon as it fires, with no guard able
// to eventually stop it: an unconditional self-feeding loop.
func analyzeLivelock(reactions []*Reaction, res *analysisResult) error {
	for _, r := range reactions {
		if r.IsStatic {
			continue // seeding/update reactions are expected to reproduce their static molecule
		}
		selfFeeding := true
		for _, in := range r.Inputs {
			reproduced := false
			for _, out := range r.Outputs {
				if out.Emitter == in.Emitter && out.Pattern.reproduces(in.Pattern) {
					reproduced = true
					break
				}
			}
			if !reproduced {
				selfFeeding = false
				break
			}
		}
		if !selfFeeding || len(r.Inputs) == 0 {
			continue
		}
		if r.Guard.kind != guardPresent {
			return &ErrUnavoidableLivelock{Reaction: r.Name()}
		}
		res.warnings = append(res.warnings, fmt.Sprintf(
			"possible livelock: reaction %s reproduces all of its own inputs; guarded firing may still loop", r.Name()))
	}
	return nil
}

// analyzeDeadlockWarnings looks for reactions that consume more than
// one blocking molecule: if two such reactions each wait on a
// molecule the other one owns the only reaction able to produce,
// neither ever fires. Detecting this precisely is undecidable in
// general (spec §4.4 design note), so this is a conservative warning,
// not a hard error.
func analyzeDeadlockWarnings(reactions []*Reaction, res *analysisResult) {
	for _, r := range reactions {
		blocking := 0
		for _, in := range r.Inputs {
			if in.Emitter.Kind() == Blocking {
				blocking++
			}
		}
		if blocking > 1 {
			res.warnings = append(res.warnings, fmt.Sprintf(
				"possible deadlock: reaction %s awaits %d blocking molecules simultaneously", r.Name(), blocking))
		}
	}
}

// computeSelectivityOrder precomputes, for each reaction, an input
// evaluation order with nontrivial patterns first. The matcher uses
// this to fail fast on the most selective position before searching
// candidates for trivial ones (spec §4.2).
func computeSelectivityOrder(reactions []*Reaction) {
	for _, r := range reactions {
		order := make([]int, len(r.Inputs))
		for i := range order {
			order[i] = i
		}
		for i := 1; i < len(order); i++ {
			for k := i; k > 0; k-- {
				a, b := order[k-1], order[k]
				if r.Inputs[a].Pattern.Trivial() && !r.Inputs[b].Pattern.Trivial() {
					order[k-1], order[k] = order[k], order[k-1]
				} else {
					break
				}
			}
		}
		r.inputsSorted = order
	}
}
