/*
engine.go - Application engine (on-demand path)

PURPOSE:
  Orchestrates a single reward request end-to-end: derive the event key,
  drop duplicates via the idempotency cache, compute the payable amount
  under the rolling cap, persist the outcome, and invoke the balance
  ledger when credits were awarded.

ON-DEMAND CAPPING:
  The prior awarded total is estimated as |cache entries| * BaseAmount.
  Counting entries instead of summing amounts assumes every award for a
  type pays the same flat BaseAmount, which holds for the whole catalog.
  Capped entries still occupy the cache, so the estimate over-counts in
  the user's disfavor only after the cap is already exhausted.

FAILURE ORDER:
  The cache insert happens before the event append. A failed append
  leaves a cache entry with no event; the cache is rebuildable and never
  financial truth, so the cost is one silently skipped retry. A failed
  ledger credit after the append surfaces to the caller while the event
  stays awarded - that gap is reconciled operationally, never hidden.
*/
package reward

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ENGINE - Shared dependencies and registry state
// =============================================================================

// Engine wires the reward machinery to its collaborators. One Engine is
// shared by every registered reward type.
type Engine struct {
	store  EventStore
	cache  Cache
	ledger Ledger

	log       *zap.Logger
	chunkSize int
	now       func() time.Time

	mu       sync.Mutex
	claimed  map[string]bool
	settlers []Settler
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. Default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithChunkSize sets how many events one settlement commit covers.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithClock overrides the engine clock. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// DefaultChunkSize bounds one settlement commit.
const DefaultChunkSize = 1000

// NewEngine creates an engine over the given collaborators.
func NewEngine(store EventStore, cache Cache, ledger Ledger, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		cache:     cache,
		ledger:    ledger,
		log:       zap.NewNop(),
		chunkSize: DefaultChunkSize,
		now:       time.Now,
		claimed:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// claim reserves type tags. Fails fast on duplicates so a misconfigured
// catalog cannot start.
func (e *Engine) claim(tags ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		if e.claimed[tag] || seen[tag] {
			return fmt.Errorf("%w: %s", ErrDuplicateType, tag)
		}
		seen[tag] = true
	}
	for _, tag := range tags {
		e.claimed[tag] = true
	}
	return nil
}

func (e *Engine) addSettler(s Settler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settlers = append(e.settlers, s)
}

// Settlers returns every registered processable group in registration
// order. Schedulers iterate this.
func (e *Engine) Settlers() []Settler {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Settler, len(e.settlers))
	copy(out, e.settlers)
	return out
}

// Settle runs one settlement sweep for the processable group registered
// under typeTag.
func (e *Engine) Settle(ctx context.Context, typeTag string, now time.Time) error {
	for _, s := range e.Settlers() {
		if s.TypeTag() == typeTag {
			return s.Settle(ctx, now)
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownType, typeTag)
}

// =============================================================================
// ON-DEMAND APPLY
// =============================================================================

// Apply evaluates and settles one occurrence synchronously.
//
// Outcomes that are NOT errors: the key function reporting not-qualified,
// a duplicate key, and a capped (zero) award. Collaborator failures
// propagate to the caller.
func (h *OnDemandHandle[T]) Apply(ctx context.Context, input T, ip string) error {
	e := h.engine

	key, err := h.def.Key(ctx, input)
	if err != nil {
		if isNotQualified(err) {
			return nil
		}
		return fmt.Errorf("reward %s: derive key: %w", h.def.Type, err)
	}

	now := e.now()
	inserted, prior, err := e.cache.Add(ctx, key.ToUserID, h.def.Type, key.Hash(), now)
	if err != nil {
		return fmt.Errorf("reward %s: idempotency check: %w", h.def.Type, err)
	}
	if !inserted {
		// Duplicate occurrence; idempotent no-op.
		return nil
	}

	toAward := h.def.BaseAmount
	if h.def.Cap > 0 {
		awarded := int64(prior) * h.def.BaseAmount
		toAward = Remaining(h.def.Cap, awarded, h.def.BaseAmount)
	}

	status := StatusAwarded
	if toAward == 0 {
		status = StatusCapped
	}

	ev := &RewardEvent{
		EventKey:    key,
		AwardAmount: toAward,
		Status:      status,
		IP:          ip,
		Time:        now,
	}
	if err := e.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("reward %s: append event: %w", h.def.Type, err)
	}

	if status != StatusAwarded {
		return nil
	}

	details := TransferDetails{RewardType: key.Type, ForID: key.ForID, ByUserID: key.ByUserID}
	if _, err := e.ledger.Credit(ctx, key.ToUserID, toAward, h.def.Description, details); err != nil {
		// The event is durably awarded; the transfer is unconfirmed.
		// Surface the gap instead of guessing - reconciliation is an
		// operational path, not an engine one.
		e.log.Error("on-demand credit failed after event was recorded",
			zap.String("type", key.Type),
			zap.String("to_user", key.ToUserID),
			zap.Int64("amount", toAward),
			zap.Error(err))
		return fmt.Errorf("reward %s: credit %d to %s (event recorded, transfer unconfirmed): %w",
			h.def.Type, toAward, key.ToUserID, err)
	}
	return nil
}

// =============================================================================
// PROCESSABLE APPLY
// =============================================================================

// Apply records one occurrence as a pending event. No capping and no
// transfer happen here; the scheduled sweep settles it.
func (h *ProcessableHandle[T]) Apply(ctx context.Context, input T, ip string) error {
	key, err := h.def.Key(ctx, input)
	if err != nil {
		if isNotQualified(err) {
			return nil
		}
		return fmt.Errorf("reward %s: derive key: %w", h.def.Type, err)
	}
	if !h.owns(key.Type) {
		return fmt.Errorf("reward %s: key function produced undeclared type %q", h.def.Type, key.Type)
	}

	ev := &RewardEvent{
		EventKey:    key,
		AwardAmount: h.def.BaseAmount,
		Status:      StatusPending,
		IP:          ip,
		Time:        h.engine.now(),
	}
	if err := h.engine.store.Append(ctx, ev); err != nil {
		return fmt.Errorf("reward %s: append pending event: %w", h.def.Type, err)
	}
	return nil
}

func isNotQualified(err error) bool {
	return errors.Is(err, ErrNotQualified)
}
