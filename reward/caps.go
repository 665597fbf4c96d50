/*
caps.go - The cap engine

PURPOSE:
  Pure computation of how much of a requested award amount is still
  payable under a cap. Both execution paths use it: the on-demand path
  against an estimated prior total from the idempotency cache, the
  settlement path against aggregate sums from the event store.

PROPERTIES:
  - Remaining(rule, prior, requested) = min(requested, max(rule-prior, 0))
  - Never negative
  - Applying more rules can only decrease the result (monotone)
*/
package reward

// Remaining returns how much of requested is still payable under a cap of
// ruleAmount when priorTotal has already been awarded against it.
func Remaining(ruleAmount, priorTotal, requested int64) int64 {
	headroom := ruleAmount - priorTotal
	if headroom < 0 {
		headroom = 0
	}
	if requested < headroom {
		return requested
	}
	return headroom
}
