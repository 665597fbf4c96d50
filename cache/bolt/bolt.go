// Package bolt provides a BoltDB-backed idempotency cache.
//
// BoltDB is an embedded key/value store; all data lives in a single file,
// so the cache survives restarts without an external process. Each
// (user, reward type) pair gets its own bucket whose keys are event-key
// hashes and whose values are the time the hash was recorded.
//
// Atomicity
// ---------
// Add performs its existence check and its insert inside one bolt Update
// transaction. Bolt serializes writers, so two concurrent applications of
// the same key cannot both observe the hash as absent - this is the
// check-and-set the on-demand capping path depends on.
//
// The cache is a derived index over the event store: losing the file
// means re-deriving it, never losing money.
package bolt

import (
	"context"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/warp/credit-engine/reward"
)

// Cache implements reward.Cache on a bolt database.
type Cache struct {
	db *bolt.DB
}

var _ reward.Cache = (*Cache)(nil)

// New opens (or creates) the bolt database at the given path.
func New(path string) (*Cache, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open idempotency cache: %w", err)
	}
	return &Cache{db: db}, nil
}

// Close releases the database file lock.
func (c *Cache) Close() error {
	return c.db.Close()
}

// bucketName scopes hashes per (user, reward type). NUL-separated so
// distinct pairs can never collide by concatenation.
func bucketName(toUserID, rewardType string) []byte {
	return []byte(toUserID + "\x00" + rewardType)
}

// Add records hash for the pair if absent. Check and insert happen in one
// write transaction.
func (c *Cache) Add(_ context.Context, toUserID, rewardType, hash string, at time.Time) (bool, int, error) {
	var inserted bool
	var prior int

	err := c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(toUserID, rewardType))
		if err != nil {
			return err
		}
		prior = countKeys(b)
		if b.Get([]byte(hash)) != nil {
			inserted = false
			return nil
		}
		inserted = true
		return b.Put([]byte(hash), []byte(at.UTC().Format(time.RFC3339Nano)))
	})
	if err != nil {
		return false, 0, fmt.Errorf("idempotency cache add: %w", err)
	}
	return inserted, prior, nil
}

// Count returns the number of recorded hashes for the pair.
func (c *Cache) Count(_ context.Context, toUserID, rewardType string) (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName(toUserID, rewardType))
		if b == nil {
			return nil
		}
		n = countKeys(b)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("idempotency cache count: %w", err)
	}
	return n, nil
}

func countKeys(b *bolt.Bucket) int {
	n := 0
	cur := b.Cursor()
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		n++
	}
	return n
}
