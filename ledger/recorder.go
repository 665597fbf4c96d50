package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp/credit-engine/reward"
)

// Transfer is one recorded ledger movement.
type Transfer struct {
	ID          reward.TransactionID
	ToAccount   string
	Amount      int64
	Description string
	Details     reward.TransferDetails
	At          time.Time

	Refunded     bool
	RefundReason string
}

// Recorder is an in-memory ledger for development and tests. It records
// every transfer instead of moving real balances.
type Recorder struct {
	mu        sync.Mutex
	transfers []Transfer
	byID      map[reward.TransactionID]int
}

var _ reward.Ledger = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{byID: make(map[reward.TransactionID]int)}
}

func (r *Recorder) Credit(_ context.Context, toAccount string, amount int64, description string, details reward.TransferDetails) (reward.TransactionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := reward.TransactionID(uuid.NewString())
	r.byID[id] = len(r.transfers)
	r.transfers = append(r.transfers, Transfer{
		ID:          id,
		ToAccount:   toAccount,
		Amount:      amount,
		Description: description,
		Details:     details,
		At:          time.Now(),
	})
	return id, nil
}

func (r *Recorder) Refund(_ context.Context, id reward.TransactionID, reason string) (reward.TransactionID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byID[id]
	if !ok {
		return "", fmt.Errorf("refund: unknown transaction %s", id)
	}
	if r.transfers[idx].Refunded {
		return "", fmt.Errorf("refund: transaction %s already refunded", id)
	}
	r.transfers[idx].Refunded = true
	r.transfers[idx].RefundReason = reason
	return reward.TransactionID(uuid.NewString()), nil
}

// Transfers returns a copy of every recorded movement, oldest first.
func (r *Recorder) Transfers() []Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transfer, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// Balance returns the net credited amount for an account.
func (r *Recorder) Balance(account string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, t := range r.transfers {
		if t.ToAccount == account && !t.Refunded {
			sum += t.Amount
		}
	}
	return sum
}
