package core

// InputPatternType describes how one reaction input position admits
// values from the bag. Patterns are produced by an external DSL or by
// package patterns; the core only ever consumes the descriptor below.
//
// See spec §3 for the exact semantics of each variant.
type InputPatternType struct {
	kind patternKind

	// SimpleVar, Other
	guard func(any) bool

	// Const
	value any

	// Other
	matcher     func(any) ([]any, bool)
	boundVars   []string
	irrefutable bool
}

type patternKind int

const (
	kindWildcard patternKind = iota
	kindSimpleVar
	kindConst
	kindOther
)

// Wildcard admits any value.
func Wildcard() InputPatternType {
	return InputPatternType{kind: kindWildcard}
}

// SimpleVar admits any value, optionally filtered by guard.
func SimpleVar(guard func(any) bool) InputPatternType {
	return InputPatternType{kind: kindSimpleVar, guard: guard}
}

// Const admits only values structurally equal to v.
func Const(v any) InputPatternType {
	return InputPatternType{kind: kindConst, value: v}
}

// Other admits values for which matcher is defined. irrefutable must
// be true only if matcher is defined for every value of the correct
// runtime type.
func Other(matcher func(any) ([]any, bool), boundVars []string, irrefutable bool) InputPatternType {
	return InputPatternType{
		kind:        kindOther,
		matcher:     matcher,
		boundVars:   boundVars,
		irrefutable: irrefutable,
	}
}

// Trivial reports whether the pattern admits any value of the right
// type without inspecting it: Wildcard, a guardless SimpleVar, or an
// irrefutable Other.
func (p InputPatternType) Trivial() bool {
	switch p.kind {
	case kindWildcard:
		return true
	case kindSimpleVar:
		return p.guard == nil
	case kindOther:
		return p.irrefutable
	default:
		return false
	}
}

// Admits reports whether the pattern matches v, and if so, the
// bindings (if any) it produced.
func (p InputPatternType) Admits(v any) (bindings []any, ok bool) {
	switch p.kind {
	case kindWildcard:
		return nil, true
	case kindSimpleVar:
		if p.guard == nil {
			return nil, true
		}
		return nil, p.guard(v)
	case kindConst:
		return nil, structurallyEqual(p.value, v)
	case kindOther:
		return p.matcher(v)
	default:
		return nil, false
	}
}

// WeakerThan implements the partial preorder from spec §4.4: p is
// weaker than (or equal to) q iff every value q admits is also
// admitted by p, restricted to the cases the analyzer can decide.
// Unknown combinations are treated as "not weaker" per spec.
func (p InputPatternType) WeakerThan(q InputPatternType) bool {
	switch p.kind {
	case kindWildcard:
		return true
	case kindSimpleVar:
		if p.guard == nil {
			return true
		}
		if q.kind == kindConst {
			return p.guard(q.value)
		}
		return false
	case kindOther:
		if p.irrefutable {
			return true
		}
		return false
	case kindConst:
		return q.kind == kindConst && structurallyEqual(p.value, q.value)
	default:
		return false
	}
}

func structurallyEqual(a, b any) bool {
	return deepEqual(a, b)
}

// OutputPatternType is used only for static analysis; it has no
// runtime effect on matching.
type OutputPatternType struct {
	isConst bool
	value   any
}

// ConstOutput declares an output guaranteed to be exactly v.
func ConstOutput(v any) OutputPatternType {
	return OutputPatternType{isConst: true, value: v}
}

// OtherOutput declares an output whose value the analyzer cannot pin
// down further.
func OtherOutput() OutputPatternType {
	return OutputPatternType{}
}

func (o OutputPatternType) reproduces(p InputPatternType) bool {
	if o.isConst {
		bs, ok := p.Admits(o.value)
		_ = bs
		return ok
	}
	// An unconstrained output is assumed able to reproduce any
	// trivial input; this is the conservative direction for
	// livelock detection (false positives are a warning/error,
	// false negatives would silently miss an unavoidable loop).
	return p.Trivial()
}

// CrossGuard is a boolean predicate over the values bound at two or
// more input positions of one reaction.
type CrossGuard struct {
	Indices   []int
	Condition func([]any) bool
}

// GuardPresenceFlag classifies how much guard evaluation a reaction
// requires.
type GuardPresenceFlag struct {
	kind         guardKind
	staticGuard  func() bool
	crossGuards  []CrossGuard
}

type guardKind int

const (
	guardAllTrivial guardKind = iota
	guardAbsent
	guardPresent
)

// AllTrivial: no guard, all input patterns trivial.
func AllTrivial() GuardPresenceFlag {
	return GuardPresenceFlag{kind: guardAllTrivial}
}

// AbsentGuard: simplified guard, or guard absent but some input
// pattern is nontrivial.
func AbsentGuard() GuardPresenceFlag {
	return GuardPresenceFlag{kind: guardAbsent}
}

// PresentGuard declares an optional static guard and zero or more
// cross-guards.
func PresentGuard(staticGuard func() bool, crossGuards ...CrossGuard) GuardPresenceFlag {
	return GuardPresenceFlag{
		kind:        guardPresent,
		staticGuard: staticGuard,
		crossGuards: crossGuards,
	}
}

func (g GuardPresenceFlag) hasCrossGuards() bool {
	return g.kind == guardPresent && 0 < len(g.crossGuards)
}

func (g GuardPresenceFlag) checkStatic() bool {
	if g.kind != guardPresent || g.staticGuard == nil {
		return true
	}
	return g.staticGuard()
}

func (g GuardPresenceFlag) checkCross(values []any) bool {
	if g.kind != guardPresent {
		return true
	}
	for _, cg := range g.crossGuards {
		args := make([]any, len(cg.Indices))
		for i, idx := range cg.Indices {
			args[i] = values[idx]
		}
		if !cg.Condition(args) {
			return false
		}
	}
	return true
}
