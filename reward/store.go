/*
store.go - Event store contract

PURPOSE:
  Defines the interface between the engine and reward event persistence.
  The store is an append-only, versioned time-series log: there is no
  update-in-place. "Updating" an event means appending a new row for the
  same logical key with an incremented version, and readers always take
  the latest version per key.

APPEND-ONLY CONTRACT:
  - Append(): the ONLY write operation; the store assigns the version
  - NO Update() or Delete() methods exist
  - Concurrent writers are safe by construction: new versions never
    overwrite prior ones

IMPLEMENTATIONS:
  - store/sqlite: production store
  - reward/store: in-memory store for testing and development

SEE ALSO:
  - settle.go: issues one SumAwarded aggregate per cap rule per tuple
*/
package reward

import "context"

// Filter selects latest-version events. Zero-valued fields are
// unconstrained.
type Filter struct {
	// Types restricts to a reward type family (a base type plus its
	// include types). Required.
	Types []string

	Status   EventStatus
	ToUserID string
}

// AggregateQuery describes one cap aggregation: the sum of AwardAmount
// over awarded latest-version events matching the type family, the set
// grouping-key values, and the window if present.
type AggregateQuery struct {
	Types    []string
	ToUserID string
	ByUserID string
	ForID    string
	Window   *Window
}

// EventStore owns RewardEvent persistence.
type EventStore interface {
	// Append inserts a new version of the event. The store assigns
	// ev.Version (prior latest + 1) and, when ev.Time is zero, stamps the
	// insertion time; later versions keep the first version's time so
	// arrival order survives re-writes.
	Append(ctx context.Context, ev *RewardEvent) error

	// Latest returns the latest version of every logical event matching
	// the filter, in arrival order.
	Latest(ctx context.Context, f Filter) ([]RewardEvent, error)

	// SumAwarded returns the total AwardAmount of awarded events matching
	// the query. Used exclusively for cap aggregation.
	SumAwarded(ctx context.Context, q AggregateQuery) (int64, error)
}
