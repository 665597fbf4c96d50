/*
Package eligibility resolves the relational questions the reward catalog
asks: who owns a piece of content, when it was created, and whether an
invited user activated.

PURPOSE:
  The reward engine keeps its own event store but does not own the
  community data. This package reads that data where it lives. Every
  lookup is read-only; the engine never writes through here.

IMPLEMENTATIONS:
  Postgres: pooled pgx queries against the community database
  Static:   fixed in-memory answers for dev mode and tests

SEE ALSO:
  - catalog: The Eligibility interface these types implement
*/
package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/credit-engine/catalog"
)

// ErrNotFound is returned when the content or user a lookup names does
// not exist.
var ErrNotFound = errors.New("eligibility: not found")

var (
	_ catalog.Eligibility = (*Postgres)(nil)
	_ catalog.Eligibility = (*Static)(nil)
)

// Postgres answers eligibility lookups from the community database.
// It never writes; the pool only needs SELECT grants.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pooled client and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// ContentOwner returns the user id that currently owns the content.
func (p *Postgres) ContentOwner(ctx context.Context, contentID string) (string, error) {
	var owner string
	err := p.pool.QueryRow(ctx,
		`SELECT owner_id FROM contents WHERE id = $1`,
		contentID,
	).Scan(&owner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: content %s", ErrNotFound, contentID)
		}
		return "", fmt.Errorf("select content owner: %w", err)
	}
	return owner, nil
}

// ContentCreatedAt returns when the content was created.
func (p *Postgres) ContentCreatedAt(ctx context.Context, contentID string) (time.Time, error) {
	var createdAt time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT created_at FROM contents WHERE id = $1`,
		contentID,
	).Scan(&createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, fmt.Errorf("%w: content %s", ErrNotFound, contentID)
		}
		return time.Time{}, fmt.Errorf("select content created-at: %w", err)
	}
	return createdAt, nil
}

// ReferralActivated reports whether the invited user completed
// activation. Unknown users count as not activated.
func (p *Postgres) ReferralActivated(ctx context.Context, inviteeID string) (bool, error) {
	var activated bool
	err := p.pool.QueryRow(ctx,
		`SELECT activated_at IS NOT NULL FROM users WHERE id = $1`,
		inviteeID,
	).Scan(&activated)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("select activation: %w", err)
	}
	return activated, nil
}
