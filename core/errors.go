package core

import "fmt"

// ConfigError wraps every error the static analyzer raises during
// Construct. Its message is always prefixed with the owning site's
// name, per spec §6.
type ConfigError struct {
	Site string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("In Site{%s}: %s", e.Site, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ErrRebinding is raised when an Emitter already bound to one Site is
// declared again in a second Site.
type ErrRebinding struct {
	Emitter string
}

func (e *ErrRebinding) Error() string {
	return fmt.Sprintf("molecule %s is already bound to a reaction site", e.Emitter)
}

// ErrShadowing is raised when one reaction's inputs are weaker than
// (or identical to) an earlier reaction's, making the later reaction
// permanently shadowed.
type ErrShadowing struct {
	Reaction string
	Shadows  string
}

func (e *ErrShadowing) Error() string {
	return fmt.Sprintf("reaction %s is shadowed by earlier reaction %s", e.Reaction, e.Shadows)
}

// ErrUnavoidableLivelock is raised when a reaction's declared outputs
// are guaranteed to immediately reproduce its own inputs, with no
// combination of guards able to prevent it from firing again forever.
type ErrUnavoidableLivelock struct {
	Reaction string
}

func (e *ErrUnavoidableLivelock) Error() string {
	return fmt.Sprintf("Unavoidable livelock: reaction %s", e.Reaction)
}

// ErrStaticDeclaration is raised when a static reaction does not
// declare exactly one output, when a static molecule is already seeded
// by another static reaction, or when EmitStatic is called on a
// molecule that is not static.
type ErrStaticDeclaration struct {
	Molecule string
	Reason   string
}

func (e *ErrStaticDeclaration) Error() string {
	return fmt.Sprintf("Incorrect static molecule declaration: %s: %s", e.Molecule, e.Reason)
}

// ErrStaticGuarded is raised when a reaction seeding a static
// molecule carries a guard; seeding reactions must be unconditional.
type ErrStaticGuarded struct {
	Reaction string
}

func (e *ErrStaticGuarded) Error() string {
	return fmt.Sprintf("static reaction %s must not have a guard", e.Reaction)
}

// ErrBlockingStatic is raised when a blocking emitter is marked
// static; static molecules are read via VolatileValue, never awaited.
type ErrBlockingStatic struct {
	Molecule string
}

func (e *ErrBlockingStatic) Error() string {
	return fmt.Sprintf("static molecule %s must not be blocking", e.Molecule)
}

// ErrUnboundEmitter is raised when Emit or EmitBlocking is called on
// an Emitter that was never bound by Construct.
type ErrUnboundEmitter struct {
	Emitter string
}

func (e *ErrUnboundEmitter) Error() string {
	return fmt.Sprintf("Molecule %s is not bound to any reaction site", e.Emitter)
}

// ErrStaticProtocolViolation is raised when code outside a running
// reaction body attempts to emit a static molecule directly; static
// molecules may only be re-seeded by their own seeding reaction.
type ErrStaticProtocolViolation struct {
	Molecule string
}

func (e *ErrStaticProtocolViolation) Error() string {
	return fmt.Sprintf("Refusing to emit static molecule %s because this thread does not run a chemical reaction", e.Molecule)
}

// ErrNoReply is raised by the site when a reaction body returns
// successfully having consumed a blocking molecule but never called
// Reply for it.
type ErrNoReply struct {
	Reaction string
	Target   string
}

func (e *ErrNoReply) Error() string {
	return fmt.Sprintf("Reaction %s finished without replying to %s", e.Reaction, e.Target)
}

// ErrMultipleReply is raised when a reaction body calls Reply more
// than once for the same consumed blocking molecule.
type ErrMultipleReply struct{}

func (e *ErrMultipleReply) Error() string {
	return "reply slot has already been settled"
}

// ErrInvalidReplyIndex is raised when Reply is called with an index
// that does not refer to a blocking input of the running reaction.
type ErrInvalidReplyIndex struct {
	Index int
}

func (e *ErrInvalidReplyIndex) Error() string {
	return fmt.Sprintf("reply index %d does not refer to a blocking input", e.Index)
}

// ErrSiteClosed is raised by Emit, EmitBlocking and EmitStatic once
// Shutdown has been called on the owning site.
type ErrSiteClosed struct {
	Site string
}

func (e *ErrSiteClosed) Error() string {
	return fmt.Sprintf("site %s is shut down", e.Site)
}

// ErrBodyPanic wraps a recovered panic from a reaction body. The
// blocking molecules it consumed, if any, are settled as failed with
// this error rather than left to time out.
type ErrBodyPanic struct {
	Reaction  string
	Recovered any
}

func (e *ErrBodyPanic) Error() string {
	return fmt.Sprintf("reaction %s panicked: %v", e.Reaction, e.Recovered)
}
