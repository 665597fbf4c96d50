/*
ledger.go - Balance ledger contract

PURPOSE:
  The balance ledger is the external system that actually moves currency
  between accounts. This engine only decides amounts and records events;
  transfers go through this interface.

FAILURE SEMANTICS:
  Credit and Refund are fallible and are NOT retried by the engine. In
  settlement, a failed credit aborts the chunk and resets it to pending
  for the next sweep. On the on-demand path a failed credit surfaces to
  the caller while the event stays durably awarded - reconciling the two
  is an operational concern, not an engine one.

SEE ALSO:
  - ledger/client.go: HTTP client for the production ledger service
  - ledger/recorder.go: in-memory recorder for tests and development
*/
package reward

import "context"

// TransactionID identifies a transfer in the balance ledger.
type TransactionID string

// TransferDetails tags a transfer with the reward context that caused it,
// for auditability on the ledger side.
type TransferDetails struct {
	RewardType string
	ForID      string
	ByUserID   string
}

// Ledger moves credits between accounts.
type Ledger interface {
	// Credit transfers amount credits to the account.
	Credit(ctx context.Context, toAccount string, amount int64, description string, details TransferDetails) (TransactionID, error)

	// Refund reverses a prior transfer and returns the reversing
	// transaction's id.
	Refund(ctx context.Context, id TransactionID, reason string) (TransactionID, error)
}
