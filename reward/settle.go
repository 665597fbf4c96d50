/*
settle.go - Settlement engine (batch path)

PURPOSE:
  Periodically reconciles all pending events of a processable group with
  the balance ledger. One sweep: run the preprocess hook, load prior
  awarded totals (one aggregate query per cap rule per distinct grouping
  tuple), decide every event in arrival order, then commit in bounded
  chunks of store writes followed by ledger transfers.

ORDERING:
  Cap budget is consumed in arrival order. Earlier-queued actions win
  scarce headroom over later ones; running totals carry across chunks,
  so chunks are committed sequentially, never in parallel.

CRASH SAFETY:
  A failed ledger send resets the whole chunk (minus unqualified events)
  back to pending with the base amount restored, persists that reset,
  and aborts the sweep with a ChunkError naming chunk and phase. A store
  failure mid-chunk resets the already-written prefix the same way, so
  no event is left awarded without its transfer sent. Earlier chunks
  stay committed: events are idempotent, so a re-run converges on the
  same awarded/capped assignment without double-paying.

WINDOW ATTRIBUTION:
  Cap budget is drawn from the window containing the sweep's now, while
  an award counts against the window containing its arrival time. A
  sweep retried across a day/week boundary therefore books its awards
  into the old window even though it drew budget from the new one, and
  the old window's recorded sum can end up above its cap. Deliberate:
  events answer "what did this action earn", and an action is never
  penalized for the sweep running late.

CONCURRENCY:
  One sweep per group at a time. The handle guards in-process re-entry
  with ErrSweepInProgress; cross-process serialization (a run-once lock
  around the scheduler) is the caller's job, since two sweeps reading
  the same prior totals could jointly over-award past a cap.
*/
package reward

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// settleSpec is the non-generic settlement view of a processable
// definition.
type settleSpec struct {
	Type        string
	Description string
	BaseAmount  int64
	Types       []string
	Caps        []CapRule
	Preprocess  PreprocessFunc
}

// Settle runs one settlement sweep over the group's pending events.
func (h *ProcessableHandle[T]) Settle(ctx context.Context, now time.Time) error {
	if !h.sweeping.CompareAndSwap(false, true) {
		return ErrSweepInProgress
	}
	defer h.sweeping.Store(false)

	return h.engine.settle(ctx, settleSpec{
		Type:        h.def.Type,
		Description: h.def.Description,
		BaseAmount:  h.def.BaseAmount,
		Types:       h.Types(),
		Caps:        h.def.Caps,
		Preprocess:  h.def.Preprocess,
	}, now)
}

// ruleKey identifies one cap budget: a rule and one grouping tuple.
type ruleKey struct {
	rule  int
	tuple string
}

func (e *Engine) settle(ctx context.Context, sp settleSpec, now time.Time) error {
	log := e.log.With(zap.String("type", sp.Type))

	pending, err := e.store.Latest(ctx, Filter{Types: sp.Types, Status: StatusPending})
	if err != nil {
		return fmt.Errorf("settlement of %s: load pending events: %w", sp.Type, err)
	}
	if len(pending) == 0 {
		return nil
	}

	events := make([]*RewardEvent, len(pending))
	for i := range pending {
		events[i] = &pending[i]
	}

	if sp.Preprocess != nil {
		if err := sp.Preprocess(ctx, events); err != nil {
			return fmt.Errorf("settlement of %s: preprocess: %w", sp.Type, err)
		}
		for _, ev := range events {
			if ev.Status == StatusUnqualified {
				ev.AwardAmount = 0
			}
		}
	}

	totals, err := e.priorTotals(ctx, sp, events, now)
	if err != nil {
		return err
	}

	// Decide every event in arrival order. Caps compose by minimum, and
	// each award consumes headroom from every matching rule so later
	// events in the same sweep see the reduced budget.
	var awarded, capped, unqualified int
	for _, ev := range events {
		if ev.Status == StatusUnqualified {
			unqualified++
			continue
		}
		amount := ev.AwardAmount
		for ri, rule := range sp.Caps {
			amount = Remaining(rule.Amount, totals[ruleKey{ri, rule.tupleOf(ev.EventKey)}], amount)
		}
		ev.AwardAmount = amount
		if amount > 0 {
			ev.Status = StatusAwarded
			awarded++
			for ri, rule := range sp.Caps {
				totals[ruleKey{ri, rule.tupleOf(ev.EventKey)}] += amount
			}
		} else {
			ev.Status = StatusCapped
			capped++
		}
	}

	chunks := 0
	for start := 0; start < len(events); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(events) {
			end = len(events)
		}
		if err := e.commitChunk(ctx, sp, events[start:end], chunks); err != nil {
			return err
		}
		chunks++
	}

	log.Info("settlement sweep complete",
		zap.Int("pending", len(events)),
		zap.Int("awarded", awarded),
		zap.Int("capped", capped),
		zap.Int("unqualified", unqualified),
		zap.Int("chunks", chunks))
	return nil
}

// priorTotals issues one aggregate query per cap rule per distinct
// grouping tuple among the still-qualified events.
func (e *Engine) priorTotals(ctx context.Context, sp settleSpec, events []*RewardEvent, now time.Time) (map[ruleKey]int64, error) {
	totals := make(map[ruleKey]int64)
	for ri, rule := range sp.Caps {
		var window *Window
		if w, ok := WindowFor(rule.Interval, now); ok {
			window = &w
		}
		seen := make(map[string]bool)
		for _, ev := range events {
			if ev.Status == StatusUnqualified {
				continue
			}
			tuple := rule.tupleOf(ev.EventKey)
			if seen[tuple] {
				continue
			}
			seen[tuple] = true

			q := AggregateQuery{Types: sp.Types, Window: window}
			rule.applyTo(&q, ev.EventKey)
			sum, err := e.store.SumAwarded(ctx, q)
			if err != nil {
				return nil, fmt.Errorf("settlement of %s: aggregate cap rule %d: %w", sp.Type, ri, err)
			}
			totals[ruleKey{ri, tuple}] = sum
		}
	}
	return totals, nil
}

// commitChunk writes the decided versions, then sends the transfers.
// A failure in either phase resets the durably written part of the chunk
// to pending before the error surfaces: an event left awarded with no
// transfer sent would vanish from the next sweep's pending query and
// never be paid.
func (e *Engine) commitChunk(ctx context.Context, sp settleSpec, chunk []*RewardEvent, idx int) error {
	for i, ev := range chunk {
		if err := e.store.Append(ctx, ev); err != nil {
			e.resetChunk(ctx, sp, chunk[:i])
			return &ChunkError{Type: sp.Type, Chunk: idx, Phase: PhaseUpdate, Err: err}
		}
	}

	for _, ev := range chunk {
		if ev.Status != StatusAwarded {
			continue
		}
		details := TransferDetails{RewardType: ev.Type, ForID: ev.ForID, ByUserID: ev.ByUserID}
		if _, err := e.ledger.Credit(ctx, ev.ToUserID, ev.AwardAmount, sp.Description, details); err != nil {
			e.resetChunk(ctx, sp, chunk)
			return &ChunkError{Type: sp.Type, Chunk: idx, Phase: PhaseSend, Err: err}
		}
	}
	return nil
}

// resetChunk restores every non-unqualified event of the chunk to the
// unsettled pool. Reset failures are logged, not returned: the sweep is
// already aborting with the send error, and a stuck awarded event is
// exactly what the next sweep's aggregate queries account for.
func (e *Engine) resetChunk(ctx context.Context, sp settleSpec, chunk []*RewardEvent) {
	for _, ev := range chunk {
		if ev.Status == StatusUnqualified {
			continue
		}
		ev.Status = StatusPending
		ev.AwardAmount = sp.BaseAmount
		if err := e.store.Append(ctx, ev); err != nil {
			e.log.Error("failed to reset settlement event to pending",
				zap.String("type", ev.Type),
				zap.String("key_hash", ev.Hash()),
				zap.Error(err))
		}
	}
}
