/*
cache.go - Idempotency cache contract

PURPOSE:
  The on-demand path records which event-key hashes have already been
  evaluated per (user, reward type), both to drop duplicates and to
  estimate the prior awarded count for progressive cap enforcement.

ATOMICITY:
  Add is a single conditional check-and-set. The naive sequence
  "read count, decide amount, write hash" would let two concurrent
  applications of the same key both observe the old count and both pay -
  the classic lost-update race. Implementations must make Add atomic
  (mutex, bolt update transaction, SQL unique insert).

DERIVED DATA:
  The cache is a best-effort index over the event store. It can always be
  rebuilt from awarded/capped events and must never be the sole source of
  truth for financial amounts.
*/
package reward

import (
	"context"
	"time"
)

// Cache records which event-key hashes have been applied per
// (toUserID, reward type).
type Cache interface {
	// Add records hash for the pair if absent. It returns whether the hash
	// was inserted and the number of entries present before the insert.
	// The check and the insert are one atomic step.
	Add(ctx context.Context, toUserID, rewardType, hash string, at time.Time) (inserted bool, prior int, err error)

	// Count returns the number of recorded hashes for the pair.
	Count(ctx context.Context, toUserID, rewardType string) (int, error)
}
