/*
Package reward provides the credit reward engine.

PURPOSE:
  This package contains the domain-agnostic machinery for awarding a
  virtual currency ("credits") in response to qualifying user actions:
  the reward type registry, the idempotency and capping engine, the
  append-only event store contract, and the chunked settlement protocol
  that reconciles decided awards with actual balance transfers.

KEY CONCEPTS IN THIS FILE (types.go):
  - EventKey: The semantic identity of a qualifying occurrence
  - RewardEvent: The persisted, versioned record of an occurrence
  - EventStatus: The event state machine (pending/awarded/capped/unqualified)
  - CapRule: A ceiling on total awarded amount, grouped and time-windowed

DESIGN PRINCIPLES:
  1. Financial idempotency: No occurrence is ever paid twice
  2. Append-only: Event mutations are new versions, never updates
  3. Designed degradation: Caps silently shrink awards, they never error
  4. Explicit compensation: Failed transfers reset events to pending

SEE ALSO:
  - caps.go: The pure cap computation
  - engine.go: The on-demand application path
  - settle.go: The deferred batch settlement path
  - store.go: The event store contract
*/
package reward

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// =============================================================================
// EVENT STATUS - State machine for reward events
// =============================================================================

// EventStatus describes where a reward event sits in its lifecycle.
//
// Valid transitions:
//
//	pending → awarded       (settlement, headroom available)
//	pending → capped        (settlement, no headroom left)
//	pending → unqualified   (preprocess hook disqualified the occurrence)
//	awarded → pending       (transfer-send failure only; retry path)
//
// On-demand rewards are born awarded or capped and never visit pending.
type EventStatus string

const (
	StatusPending     EventStatus = "pending"
	StatusAwarded     EventStatus = "awarded"
	StatusCapped      EventStatus = "capped"
	StatusUnqualified EventStatus = "unqualified"
)

// =============================================================================
// EVENT KEY - Semantic identity of a qualifying occurrence
// =============================================================================

// EventKey identifies one qualifying occurrence. The tuple, hashed, is the
// idempotency key: the same (Type, ToUserID, ByUserID, ForID) must never be
// paid twice.
//
// Type may be a refinement of the registered base type: a processable
// definition with IncludeTypes produces keys like "goodContent:image" whose
// caps and aggregate queries span the whole type family.
type EventKey struct {
	Type     string
	ToUserID string
	ByUserID string
	ForID    string
}

// Hash returns the idempotency hash of the key. The encoding separates
// fields with NUL so distinct tuples can never collide by concatenation.
func (k EventKey) Hash() string {
	h := sha256.Sum256([]byte(k.Type + "\x00" + k.ToUserID + "\x00" + k.ByUserID + "\x00" + k.ForID))
	return hex.EncodeToString(h[:16])
}

// =============================================================================
// REWARD EVENT - The persisted record
// =============================================================================

// RewardEvent is the persisted record of a qualifying occurrence.
//
// Events are append-only: "updating" an event means writing a new row for
// the same EventKey with Version = prior + 1. Readers always take the
// latest version per key. Time is set by the store on the first version
// and carried through later versions so arrival order stays stable.
type RewardEvent struct {
	EventKey

	// AwardAmount only ever shrinks across versions (caps clamp it down),
	// except on the transfer-failure retry path which restores the base
	// amount together with StatusPending. Never negative.
	AwardAmount int64

	Status  EventStatus
	IP      string
	Time    time.Time
	Version int
}

// =============================================================================
// CAP RULES - Ceilings on total awarded amount
// =============================================================================

// KeyPart names one component of an EventKey that a CapRule groups by.
type KeyPart string

const (
	PartToUser KeyPart = "toUser"
	PartByUser KeyPart = "byUser"
	PartForID  KeyPart = "forID"
)

// Interval restricts a cap to a rolling calendar window.
// The zero value means the cap spans all time.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
)

// CapRule defines one ceiling: the sum of AwardAmount over already-awarded
// events sharing the same values for KeyParts (within Interval, if set)
// must not exceed Amount. Multiple rules on one definition compose by
// taking the minimum remaining headroom.
type CapRule struct {
	KeyParts []KeyPart
	Amount   int64
	Interval Interval
}

func (r CapRule) has(p KeyPart) bool {
	for _, kp := range r.KeyParts {
		if kp == p {
			return true
		}
	}
	return false
}

// tupleOf returns the grouping-key tuple of an event under this rule.
// Events with equal tuples consume the same cap budget.
func (r CapRule) tupleOf(k EventKey) string {
	var tuple string
	if r.has(PartToUser) {
		tuple += k.ToUserID
	}
	tuple += "\x00"
	if r.has(PartByUser) {
		tuple += k.ByUserID
	}
	tuple += "\x00"
	if r.has(PartForID) {
		tuple += k.ForID
	}
	return tuple
}

// applyTo constrains an aggregate query to the rule's grouping key,
// taking the grouped values from the given event key.
func (r CapRule) applyTo(q *AggregateQuery, k EventKey) {
	if r.has(PartToUser) {
		q.ToUserID = k.ToUserID
	}
	if r.has(PartByUser) {
		q.ByUserID = k.ByUserID
	}
	if r.has(PartForID) {
		q.ForID = k.ForID
	}
}
