package core

import (
	"context"
	"strings"
)

// InputMoleculeInfo pairs one reaction input position with the
// emitter it reads from and the pattern it must satisfy.
type InputMoleculeInfo struct {
	Emitter *Emitter
	Pattern InputPatternType
}

// OutputMoleculeInfo declares one molecule a reaction body may emit,
// for the benefit of the static analyzer (livelock/deadlock
// detection). It has no effect on runtime behavior: the body is free
// to emit whatever it wants regardless of what it declared here.
type OutputMoleculeInfo struct {
	Emitter *Emitter
	Pattern OutputPatternType
}

// ReactionContext is passed to a reaction body. It exposes the
// bindings produced by the match and a Reply method for settling any
// blocking inputs the reaction consumed.
type ReactionContext struct {
	ctx      context.Context
	site     *Site
	bindings []any
	slots    []*replySlot
}

// Context returns the context the enclosing Site was run with.
func (rc *ReactionContext) Context() context.Context { return rc.ctx }

// Bindings returns the values bound at each input position, in the
// order the reaction declared its inputs.
func (rc *ReactionContext) Bindings() []any { return rc.bindings }

// Reply settles the blocking molecule consumed at input position idx
// with value v. It is an error to call Reply on a non-blocking input
// position, or to call it twice for the same position.
func (rc *ReactionContext) Reply(idx int, v any) error {
	if idx < 0 || idx >= len(rc.slots) || rc.slots[idx] == nil {
		return &ErrInvalidReplyIndex{Index: idx}
	}
	return rc.slots[idx].settleValue(v)
}

// EmitStatic is the only sanctioned way to seed or update a static
// molecule's value: it replaces e's single bag entry and its volatile
// snapshot together, atomically. Calling it on a non-static emitter,
// or on one bound to a different site, is an error.
func (rc *ReactionContext) EmitStatic(e *Emitter, v any) error {
	if !e.IsStatic() {
		return &ErrStaticDeclaration{Molecule: e.Name(), Reason: "EmitStatic called on a non-static molecule"}
	}
	if rc.site == nil || e.Site() != rc.site {
		return &ErrUnboundEmitter{Emitter: e.Name()}
	}
	return rc.site.seedOrUpdateStatic(e, v)
}

// ReactionBody is the executable part of a Reaction. It runs on a
// pool worker with the input molecules already removed from the bag.
type ReactionBody func(rc *ReactionContext) error

// Reaction is one guarded-join rule: when the bag holds a combination
// of molecules matching Inputs and Guard accepts the bindings, the
// site atomically removes those molecules and schedules Body.
type Reaction struct {
	Inputs  []InputMoleculeInfo
	Outputs []OutputMoleculeInfo
	Guard   GuardPresenceFlag
	Body    ReactionBody

	// IsStatic marks a guardless reaction with exactly one output,
	// whose sole purpose is to seed a static molecule. The analyzer
	// checks IsStatic reactions in analyzeStaticMolecules.
	IsStatic bool

	// inputsSorted holds indices into Inputs ordered by selectivity
	// (least-trivial pattern first), computed once by the analyzer
	// and consumed by the matcher's greedy fold (spec §4.2).
	inputsSorted []int
}

// Name renders the reaction's input emitter names for diagnostics, in
// the form used throughout spec §6/§8: "{a, b, c}".
func (r *Reaction) Name() string {
	names := make([]string, len(r.Inputs))
	for i, in := range r.Inputs {
		names[i] = in.Emitter.Name()
	}
	return "{" + strings.Join(names, ", ") + "}"
}
