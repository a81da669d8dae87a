package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Site owns one bag and one set of reactions, and runs the scheduling
// loop from spec §4.2: whenever its bag holds a combination matching
// some reaction's inputs and guards, that combination is atomically
// removed and the reaction's body is submitted to the pool.
type Site struct {
	name      string
	reactions []*Reaction
	pool      Pool
	logger    zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	bag      *MolBag
	closed   bool
	warnings []string
}

// SiteOption configures a Site at Construct time.
type SiteOption func(*Site)

// WithPool supplies the worker pool reaction bodies run on. If
// omitted, Construct falls back to an unbounded goroutine-per-body
// pool.
func WithPool(p Pool) SiteOption { return func(s *Site) { s.pool = p } }

// WithLogger attaches a structured logger for analyzer warnings and
// reaction-body failures. If omitted, Construct logs nowhere.
func WithLogger(l zerolog.Logger) SiteOption { return func(s *Site) { s.logger = l } }

// WithContext supplies the root context reaction bodies observe via
// ReactionContext.Context; cancelling it does not itself stop the
// site, but a Shutdown call derives its own cancellation from it.
func WithContext(ctx context.Context) SiteOption {
	return func(s *Site) { s.ctx, s.cancel = context.WithCancel(ctx) }
}

// Construct runs the static analyzer over reactions, binds every
// emitter they mention to a fresh Site, seeds any static molecules,
// and returns the live site. A non-nil error is always a
// *ConfigError; the returned Site is always nil in that case.
func Construct(name string, reactions []*Reaction, opts ...SiteOption) (*Site, error) {
	res, err := analyze(reactions)
	if err != nil {
		return nil, &ConfigError{Site: name, Err: err}
	}

	s := &Site{
		name:      name,
		reactions: reactions,
		bag:       newMolBag(),
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.pool == nil {
		s.pool = goroutinePool{}
	}
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}

	for idx, e := range res.emitters {
		if err := e.bind(s, idx); err != nil {
			return nil, &ConfigError{Site: name, Err: err}
		}
	}
	for e := range res.static {
		e.markStatic()
	}

	s.warnings = res.warnings
	for _, w := range s.warnings {
		s.logger.Warn().Str("site", name).Msg(w)
	}

	for e, r := range res.static {
		if err := s.seedStatic(e, r); err != nil {
			return nil, &ConfigError{Site: name, Err: err}
		}
	}

	return s, nil
}

// Name returns the site's display name, used in every error and log
// line this site produces.
func (s *Site) Name() string { return s.name }

// Warnings returns the non-fatal diagnostics the analyzer produced at
// Construct time.
func (s *Site) Warnings() []string { return s.warnings }

func (s *Site) seedStatic(e *Emitter, r *Reaction) error {
	rc := &ReactionContext{ctx: s.ctx, site: s}
	return s.runBody(r, rc)
}

// emit adds v to e's multiset and runs one scheduling pass. slot is
// non-nil for instances carrying a reply obligation.
func (s *Site) emit(e *Emitter, v any, slot *replySlot) error {
	if e.IsStatic() {
		return &ErrStaticProtocolViolation{Molecule: e.Name()}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &ErrSiteClosed{Site: s.name}
	}
	var mv MolValue
	if slot != nil {
		mv = blockingValue(v, slot)
	} else {
		mv = nonBlockingValue(v)
	}
	s.bag.add(e, mv)
	s.scheduleLocked()
	return nil
}

// emitBlocking adds v tagged with a fresh reply slot, then waits for
// that slot to settle or ctx to be done. A canceled ctx does not
// retract v from the bag; some reaction may still consume and reply
// to it later, and that reply is simply discarded (spec §4.3).
func (s *Site) emitBlocking(ctx context.Context, e *Emitter, v any) (any, error) {
	slot := newReplySlot()
	if err := s.emit(e, v, slot); err != nil {
		return nil, err
	}
	return slot.wait(ctx)
}

// seedOrUpdateStatic replaces e's single bag entry and its volatile
// snapshot with v, then runs a scheduling pass. Reachable only
// through ReactionContext.EmitStatic, i.e. only from within a running
// reaction body bound to this site.
func (s *Site) seedOrUpdateStatic(e *Emitter, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &ErrSiteClosed{Site: s.name}
	}
	cell := e.volatileCellOf()
	cell.store(v)
	for s.bag.count(e) > 0 {
		s.bag.removeAt(e, 0)
	}
	s.bag.add(e, nonBlockingValue(v))
	s.scheduleLocked()
	return nil
}

// VolatileValue returns the last value observed for a static
// molecule. The read is lock-free (core/volatile.go): a caller may
// observe the value the molecule held immediately before an in-flight
// update reaction consumed it. That staleness window is a documented
// contract, not a bug.
func (s *Site) VolatileValue(e *Emitter) (any, bool) {
	cell := e.volatileCellOf()
	if cell == nil {
		return nil, false
	}
	return cell.load()
}

// LogSoup returns a snapshot of how many instances of each emitter
// are currently in the bag, for diagnostics and the chemistry report.
func (s *Site) LogSoup() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bag.snapshot()
}

// Shutdown stops scheduling new reactions, cancels the site's root
// context, and waits for the pool to drain in-flight bodies.
func (s *Site) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.pool.Shutdown()
}

// scheduleLocked runs one fixpoint of the scheduling loop: repeatedly
// scan reactions in declaration order, fire the first one that
// matches, and rescan, until no reaction matches the current bag. The
// caller must hold s.mu.
func (s *Site) scheduleLocked() {
	for {
		fired := false
		for _, r := range s.reactions {
			if r.IsStatic {
				continue // seeding reactions only ever run once, from Construct
			}
			picks, bindings, matched, ok := matchReaction(r, s.bag)
			if !ok {
				continue
			}
			s.bag.removeMany(picks)
			s.dispatch(r, bindings, matched)
			fired = true
			break
		}
		if !fired {
			return
		}
	}
}

// dispatch hands one matched reaction to the pool. The caller must
// hold s.mu; dispatch only reads already-extracted bindings/matched,
// it never touches the bag.
func (s *Site) dispatch(r *Reaction, bindings []any, matched []MolValue) {
	slots := make([]*replySlot, len(matched))
	for i, mv := range matched {
		slots[i] = mv.reply
	}
	rc := &ReactionContext{ctx: s.ctx, site: s, bindings: bindings, slots: slots}
	s.pool.Submit(func() {
		if err := s.runBody(r, rc); err != nil {
			s.logger.Error().Str("site", s.name).Str("reaction", r.Name()).Err(err).Msg("reaction failed")
		}
	})
}

// runBody executes one reaction body with panic recovery, then checks
// that every blocking input it consumed was replied to.
func (s *Site) runBody(r *Reaction, rc *ReactionContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			bodyErr := &ErrBodyPanic{Reaction: r.Name(), Recovered: p}
			for _, slot := range rc.slots {
				if slot != nil {
					slot.settleFailure(bodyErr)
				}
			}
			err = bodyErr
		}
	}()

	if bodyErr := r.Body(rc); bodyErr != nil {
		for _, slot := range rc.slots {
			if slot != nil {
				slot.settleFailure(bodyErr)
			}
		}
		return bodyErr
	}

	for i, slot := range rc.slots {
		if slot != nil && !slot.settled() {
			target := r.Inputs[i].Emitter.Name()
			noReply := &ErrNoReply{Reaction: r.Name(), Target: target}
			slot.settleFailure(noReply)
			return noReply
		}
	}
	return nil
}

// goroutinePool is Construct's zero-value fallback: every submission
// runs on its own goroutine, with no bound on concurrency.
type goroutinePool struct{}

func (goroutinePool) Submit(fn func()) { go fn() }
func (goroutinePool) Shutdown()        {}
