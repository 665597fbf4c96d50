/*
errors.go - Centralized error types for the reward engine

PURPOSE:
  All sentinel and structured errors in one place. Key functions return
  ErrNotQualified to say "this occurrence does not count" - Apply treats
  it as a silent no-op, never as a failure. Collaborator failures (store,
  ledger, eligibility lookups) are always propagated: a silently dropped
  reward is invisible and a silently dropped transfer is a financial loss.

USAGE:
  if errors.Is(err, reward.ErrNotQualified) { ... }

  var chunkErr *reward.ChunkError
  if errors.As(err, &chunkErr) {
      // chunkErr.Chunk, chunkErr.Phase for operational triage
  }
*/
package reward

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotQualified is returned by key functions when an occurrence does
	// not count toward the reward (e.g. a self-reaction). Apply swallows it;
	// it is not an error condition.
	ErrNotQualified = errors.New("occurrence not qualified for reward")

	// ErrDuplicateType is returned at registration when a reward type tag
	// (or one of its include types) is already claimed.
	ErrDuplicateType = errors.New("duplicate reward type")

	// ErrUnknownType is returned when settling a type tag that was never
	// registered as processable.
	ErrUnknownType = errors.New("unknown reward type")

	// ErrSweepInProgress is returned when a settlement sweep is requested
	// for a group that is already being swept. Concurrent sweeps of the same
	// group would both read the same prior totals and jointly over-award.
	ErrSweepInProgress = errors.New("settlement sweep already in progress")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// CommitPhase names the step of a settlement chunk commit that failed.
type CommitPhase string

const (
	// PhaseUpdate covers writing the decided event versions to the store.
	PhaseUpdate CommitPhase = "update"
	// PhaseSend covers invoking the balance ledger for awarded events.
	PhaseSend CommitPhase = "send"
)

// ChunkError reports which settlement chunk failed and in which phase.
// After a send-phase failure the chunk's events have been reset to pending;
// earlier, fully committed chunks are left as they are.
type ChunkError struct {
	Type  string
	Chunk int
	Phase CommitPhase
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("settlement of %s: chunk %d failed during %s: %v", e.Type, e.Chunk, e.Phase, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
