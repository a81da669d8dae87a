package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// EmitterKind distinguishes non-blocking from blocking emitters.
type EmitterKind int

const (
	// NonBlocking emitters return immediately; emitting just adds
	// a MolValue to the bag.
	NonBlocking EmitterKind = iota

	// Blocking emitters suspend the caller on a ReplySlot until a
	// reaction replies or a timeout elapses.
	Blocking
)

func (k EmitterKind) String() string {
	if k == Blocking {
		return "blocking"
	}
	return "non-blocking"
}

var emitterSeq atomic.Uint64

// Emitter is the untyped handle identifying one molecule kind.
//
// Emitter is created unbound via NewEmitter, bound exactly once when
// its Site is constructed, and carries the analysis-derived IsStatic
// flag once that Site has been analyzed. Which reactions consume or
// emit the molecule is not recorded on the Emitter. Re-binding an
// already-bound Emitter is a configuration error (ErrRebinding).
type Emitter struct {
	id   uint64
	name string
	kind EmitterKind

	mu   sync.Mutex
	site *Site

	isStatic bool
	volatile *volatileCell
}

// NewEmitter creates an unbound Emitter with the given display name
// and kind. Host code normally uses the typed Molecule[T] or
// Blocking[T, R] wrappers instead of calling this directly.
func NewEmitter(name string, kind EmitterKind) *Emitter {
	return &Emitter{
		id:   emitterSeq.Add(1),
		name: name,
		kind: kind,
	}
}

// Name returns the emitter's display name.
func (e *Emitter) Name() string { return e.name }

// Kind reports whether this emitter is blocking or non-blocking.
func (e *Emitter) Kind() EmitterKind { return e.kind }

// Site returns the Site this emitter is bound to, or nil if unbound.
func (e *Emitter) Site() *Site {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.site
}

// IsStatic reports whether the analyzer classified this emitter as a
// static molecule (seeded once by a guardless static reaction, with
// an invariant count across the declared chemistry).
func (e *Emitter) IsStatic() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isStatic
}

// bind attaches this emitter to site. Returns ErrRebinding if already
// bound to a different site.
func (e *Emitter) bind(s *Site, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.site != nil {
		return &ErrRebinding{Emitter: e.name}
	}
	e.site = s
	return nil
}

func (e *Emitter) markStatic() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.isStatic = true
	if e.volatile == nil {
		e.volatile = newVolatileCell()
	}
}

func (e *Emitter) volatileCellOf() *volatileCell {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volatile
}

// Molecule is a typed, non-blocking emitter for payloads of type T.
type Molecule[T any] struct {
	*Emitter
}

// NewMolecule creates an unbound non-blocking emitter named name.
func NewMolecule[T any](name string) Molecule[T] {
	return Molecule[T]{NewEmitter(name, NonBlocking)}
}

// Emit places v in the bag of the Site this molecule is bound to and
// triggers a scheduling pass. See Site.emit for error conditions.
func (m Molecule[T]) Emit(v T) error {
	s := m.Site()
	if s == nil {
		return &ErrUnboundEmitter{Emitter: m.Name()}
	}
	return s.emit(m.Emitter, any(v), nil)
}

// Blocking is a typed, blocking emitter: requests carry type T,
// replies carry type R.
type Blocking[T, R any] struct {
	*Emitter
}

// NewBlocking creates an unbound blocking emitter named name.
func NewBlocking[T, R any](name string) Blocking[T, R] {
	return Blocking[T, R]{NewEmitter(name, Blocking)}
}

// EmitBlocking emits v and blocks the caller until a reaction replies
// or ctx is done, whichever comes first. A nil deadline on ctx means
// wait indefinitely.
func (b Blocking[T, R]) EmitBlocking(ctx context.Context, v T) (R, error) {
	var zero R
	s := b.Site()
	if s == nil {
		return zero, &ErrUnboundEmitter{Emitter: b.Name()}
	}
	r, err := s.emitBlocking(ctx, b.Emitter, any(v))
	if err != nil {
		return zero, err
	}
	if r == nil {
		return zero, nil
	}
	return r.(R), nil
}
