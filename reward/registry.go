/*
registry.go - Reward type registry

PURPOSE:
  Reward definitions are declared once at process start and registered
  against an Engine. Registration is static: there is no unregistration,
  and a duplicate type tag is a startup error. Each mode gets its own
  definition struct and typed handle, so a reaction payload can never be
  fed to a referral reward.

TWO MODES:
  OnDemand:    evaluated and settled synchronously at trigger time,
               guarded by the idempotency cache and a single rolling cap
               per (user, type).
  Processable: recorded as a pending event at trigger time and settled
               later by a scheduled sweep under a list of cap rules.

EXAMPLE:
  reaction, err := reward.RegisterOnDemand(engine, reward.OnDemand[ReactionInput]{
      Type:       "reactionReceived",
      BaseAmount: 1,
      Cap:        25,
      Key:        reactionKey,
  })
  ...
  reaction.Apply(ctx, input, ip)
*/
package reward

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// KeyFunc derives the semantic identity of an occurrence from a typed
// payload. It may consult external state (e.g. look up a content owner).
// Returning ErrNotQualified means "does not count", not a failure.
type KeyFunc[T any] func(ctx context.Context, input T) (EventKey, error)

// PreprocessFunc runs at the start of a settlement sweep and may mark
// events StatusUnqualified based on external state. It must not touch
// any other field.
type PreprocessFunc func(ctx context.Context, events []*RewardEvent) error

// =============================================================================
// ON-DEMAND DEFINITIONS
// =============================================================================

// OnDemand declares a reward settled synchronously at trigger time.
type OnDemand[T any] struct {
	// Type is the unique tag for this reward.
	Type string

	// Description is surfaced to end users and tags ledger transfers.
	// Not behavior-bearing.
	Description string

	// BaseAmount is the credits per qualifying occurrence. Every on-demand
	// award for a type pays this same flat amount; the progressive cap
	// estimate depends on it.
	BaseAmount int64

	// Cap is the rolling ceiling on total credits per (user, type).
	// Zero means uncapped.
	Cap int64

	Key KeyFunc[T]
}

// OnDemandHandle applies occurrences of one on-demand reward type.
type OnDemandHandle[T any] struct {
	def    OnDemand[T]
	engine *Engine
}

// RegisterOnDemand registers the definition and returns its handle.
func RegisterOnDemand[T any](e *Engine, def OnDemand[T]) (*OnDemandHandle[T], error) {
	if def.Type == "" {
		return nil, fmt.Errorf("on-demand definition missing type tag")
	}
	if def.BaseAmount <= 0 {
		return nil, fmt.Errorf("reward %s: base amount must be positive", def.Type)
	}
	if def.Key == nil {
		return nil, fmt.Errorf("reward %s: key function required", def.Type)
	}
	if err := e.claim(def.Type); err != nil {
		return nil, err
	}
	return &OnDemandHandle[T]{def: def, engine: e}, nil
}

// Type returns the reward's type tag.
func (h *OnDemandHandle[T]) Type() string { return h.def.Type }

// =============================================================================
// PROCESSABLE DEFINITIONS
// =============================================================================

// Processable declares a reward recorded as pending at trigger time and
// settled by a scheduled sweep.
type Processable[T any] struct {
	Type        string
	Description string
	BaseAmount  int64

	// IncludeTypes lists refined sub-tags (e.g. "goodContent:image") that
	// the key function may produce. Caps and aggregate queries span the
	// base type and every include type.
	IncludeTypes []string

	// Caps are the ceilings enforced at settlement. They compose by
	// minimum: an event is clamped to the smallest remaining headroom.
	Caps []CapRule

	Key KeyFunc[T]

	// Preprocess optionally disqualifies pending events before capping.
	Preprocess PreprocessFunc
}

// ProcessableHandle applies and settles occurrences of one processable
// reward group.
type ProcessableHandle[T any] struct {
	def    Processable[T]
	types  []string
	engine *Engine

	// sweeping guards against concurrent sweeps of the same group.
	sweeping atomic.Bool
}

// RegisterProcessable registers the definition and returns its handle.
// The handle is also recorded with the engine for scheduled settlement.
func RegisterProcessable[T any](e *Engine, def Processable[T]) (*ProcessableHandle[T], error) {
	if def.Type == "" {
		return nil, fmt.Errorf("processable definition missing type tag")
	}
	if def.BaseAmount <= 0 {
		return nil, fmt.Errorf("reward %s: base amount must be positive", def.Type)
	}
	if def.Key == nil {
		return nil, fmt.Errorf("reward %s: key function required", def.Type)
	}
	for _, rule := range def.Caps {
		if rule.Amount <= 0 {
			return nil, fmt.Errorf("reward %s: cap rule amount must be positive", def.Type)
		}
		if len(rule.KeyParts) == 0 {
			return nil, fmt.Errorf("reward %s: cap rule needs at least one key part", def.Type)
		}
	}

	types := append([]string{def.Type}, def.IncludeTypes...)
	if err := e.claim(types...); err != nil {
		return nil, err
	}

	h := &ProcessableHandle[T]{def: def, types: types, engine: e}
	e.addSettler(h)
	return h, nil
}

// TypeTag returns the base type tag of the group.
func (h *ProcessableHandle[T]) TypeTag() string { return h.def.Type }

// Types returns the base type plus its include types. Settlement queries
// span all of them.
func (h *ProcessableHandle[T]) Types() []string {
	out := make([]string, len(h.types))
	copy(out, h.types)
	return out
}

func (h *ProcessableHandle[T]) owns(tag string) bool {
	for _, t := range h.types {
		if t == tag {
			return true
		}
	}
	return false
}

// =============================================================================
// SETTLER - Non-generic view used by schedulers
// =============================================================================

// Settler is the scheduling view of a processable handle.
type Settler interface {
	TypeTag() string
	Types() []string

	// Settle runs one sweep over the group's pending events. It returns
	// ErrSweepInProgress when a sweep for the same group is already
	// running; callers must additionally serialize sweeps across
	// processes.
	Settle(ctx context.Context, now time.Time) error
}
