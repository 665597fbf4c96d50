package reward_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/warp/credit-engine/reward"
	"github.com/warp/credit-engine/reward/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// fakeLedger records credits and can be told to start failing.
type fakeLedger struct {
	mu      sync.Mutex
	credits []fakeCredit
	refunds []string

	// failAfter: fail every Credit once this many have succeeded.
	// Negative means never fail.
	failAfter int
}

type fakeCredit struct {
	ToAccount   string
	Amount      int64
	Description string
	Details     reward.TransferDetails
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{failAfter: -1}
}

func (l *fakeLedger) Credit(_ context.Context, toAccount string, amount int64, description string, details reward.TransferDetails) (reward.TransactionID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failAfter >= 0 && len(l.credits) >= l.failAfter {
		return "", errors.New("ledger unavailable")
	}
	l.credits = append(l.credits, fakeCredit{toAccount, amount, description, details})
	return reward.TransactionID(fmt.Sprintf("tx-%d", len(l.credits))), nil
}

func (l *fakeLedger) Refund(_ context.Context, id reward.TransactionID, reason string) (reward.TransactionID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refunds = append(l.refunds, string(id))
	return reward.TransactionID("refund-" + string(id)), nil
}

func (l *fakeLedger) creditCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.credits)
}

func (l *fakeLedger) totalCredited(toAccount string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, c := range l.credits {
		if c.ToAccount == toAccount {
			sum += c.Amount
		}
	}
	return sum
}

type testRig struct {
	engine *reward.Engine
	store  *store.Memory
	cache  *store.MemoryCache
	ledger *fakeLedger
	now    time.Time
}

func newTestRig(t *testing.T, opts ...reward.Option) *testRig {
	t.Helper()
	rig := &testRig{
		cache:  store.NewMemoryCache(),
		ledger: newFakeLedger(),
		now:    time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC),
	}
	rig.store = store.NewMemoryWithClock(func() time.Time { return rig.now })
	opts = append([]reward.Option{reward.WithClock(func() time.Time { return rig.now })}, opts...)
	rig.engine = reward.NewEngine(rig.store, rig.cache, rig.ledger, opts...)
	return rig
}

// kudosInput is a minimal on-demand payload for tests.
type kudosInput struct {
	From, To, For string
}

func kudosKey(_ context.Context, in kudosInput) (reward.EventKey, error) {
	if in.From == in.To {
		return reward.EventKey{}, reward.ErrNotQualified
	}
	return reward.EventKey{Type: "kudos", ToUserID: in.To, ByUserID: in.From, ForID: in.For}, nil
}

func registerKudos(t *testing.T, rig *testRig, cap int64) *reward.OnDemandHandle[kudosInput] {
	t.Helper()
	h, err := reward.RegisterOnDemand(rig.engine, reward.OnDemand[kudosInput]{
		Type:        "kudos",
		Description: "Kudos received",
		BaseAmount:  5,
		Cap:         cap,
		Key:         kudosKey,
	})
	if err != nil {
		t.Fatalf("register kudos: %v", err)
	}
	return h
}

func latestEvents(t *testing.T, rig *testRig, types ...string) []reward.RewardEvent {
	t.Helper()
	evs, err := rig.store.Latest(context.Background(), reward.Filter{Types: types})
	if err != nil {
		t.Fatalf("latest events: %v", err)
	}
	return evs
}

// =============================================================================
// REGISTRATION TESTS
// =============================================================================

func TestRegister_DuplicateTypeFails(t *testing.T) {
	rig := newTestRig(t)
	registerKudos(t, rig, 0)

	_, err := reward.RegisterOnDemand(rig.engine, reward.OnDemand[kudosInput]{
		Type: "kudos", BaseAmount: 1, Key: kudosKey,
	})
	if !errors.Is(err, reward.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
}

func TestRegister_IncludeTypeCollisionFails(t *testing.T) {
	// GIVEN: A processable group claiming "kudos" as an include type
	// WHEN: "kudos" is already registered
	// THEN: Registration fails fast

	rig := newTestRig(t)
	registerKudos(t, rig, 0)

	_, err := reward.RegisterProcessable(rig.engine, reward.Processable[kudosInput]{
		Type:         "praise",
		IncludeTypes: []string{"kudos"},
		BaseAmount:   1,
		Key:          kudosKey,
	})
	if !errors.Is(err, reward.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
}

func TestRegister_SelfCollidingIncludeTypeFails(t *testing.T) {
	// GIVEN: A single definition listing its own base type among its
	// include types
	// THEN: Registration fails fast - the collision is inside one call,
	// not against an earlier registration

	rig := newTestRig(t)

	_, err := reward.RegisterProcessable(rig.engine, reward.Processable[kudosInput]{
		Type:         "praise",
		IncludeTypes: []string{"praise:extra", "praise"},
		BaseAmount:   1,
		Key:          kudosKey,
	})
	if !errors.Is(err, reward.ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}

	// The failed registration must not leave any tag claimed.
	if _, err := reward.RegisterProcessable(rig.engine, reward.Processable[kudosInput]{
		Type:       "praise",
		BaseAmount: 1,
		Key:        kudosKey,
	}); err != nil {
		t.Fatalf("re-register after failed claim: %v", err)
	}
}

// =============================================================================
// ON-DEMAND APPLY TESTS
// =============================================================================

func TestApply_AwardsAndCredits(t *testing.T) {
	rig := newTestRig(t)
	h := registerKudos(t, rig, 0)

	if err := h.Apply(context.Background(), kudosInput{From: "alice", To: "bob", For: "post-1"}, "10.0.0.1"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	evs := latestEvents(t, rig, "kudos")
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	ev := evs[0]
	if ev.Status != reward.StatusAwarded || ev.AwardAmount != 5 {
		t.Errorf("event = %s/%d, want awarded/5", ev.Status, ev.AwardAmount)
	}
	if ev.IP != "10.0.0.1" {
		t.Errorf("ip = %q", ev.IP)
	}
	if got := rig.ledger.totalCredited("bob"); got != 5 {
		t.Errorf("credited %d, want 5", got)
	}
}

func TestApply_DuplicateKeyIsNoOp(t *testing.T) {
	// GIVEN: Two applications whose key function yields the same EventKey
	// THEN: Exactly one event and at most one ledger credit

	rig := newTestRig(t)
	h := registerKudos(t, rig, 0)
	in := kudosInput{From: "alice", To: "bob", For: "post-1"}

	if err := h.Apply(context.Background(), in, ""); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := h.Apply(context.Background(), in, ""); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if n := len(latestEvents(t, rig, "kudos")); n != 1 {
		t.Errorf("expected 1 event, got %d", n)
	}
	if n := rig.ledger.creditCount(); n != 1 {
		t.Errorf("expected 1 credit, got %d", n)
	}
}

func TestApply_NotQualifiedShortCircuits(t *testing.T) {
	// Self-kudos: zero stored events, zero ledger calls, no error.
	rig := newTestRig(t)
	h := registerKudos(t, rig, 0)

	if err := h.Apply(context.Background(), kudosInput{From: "alice", To: "alice", For: "post-1"}, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n := len(latestEvents(t, rig, "kudos")); n != 0 {
		t.Errorf("expected 0 events, got %d", n)
	}
	if n := rig.ledger.creditCount(); n != 0 {
		t.Errorf("expected 0 credits, got %d", n)
	}
}

func TestApply_ProgressiveCap(t *testing.T) {
	// GIVEN: base 5, cap 10 per (user, type)
	// WHEN: Three distinct occurrences arrive for the same user
	// THEN: 5, 5, then capped with 0

	rig := newTestRig(t)
	h := registerKudos(t, rig, 10)

	for i := 1; i <= 3; i++ {
		in := kudosInput{From: "alice", To: "bob", For: fmt.Sprintf("post-%d", i)}
		if err := h.Apply(context.Background(), in, ""); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	evs := latestEvents(t, rig, "kudos")
	if len(evs) != 3 {
		t.Fatalf("expected 3 events, got %d", len(evs))
	}
	wantStatus := []reward.EventStatus{reward.StatusAwarded, reward.StatusAwarded, reward.StatusCapped}
	wantAmount := []int64{5, 5, 0}
	for i, ev := range evs {
		if ev.Status != wantStatus[i] || ev.AwardAmount != wantAmount[i] {
			t.Errorf("event %d = %s/%d, want %s/%d", i, ev.Status, ev.AwardAmount, wantStatus[i], wantAmount[i])
		}
	}
	if got := rig.ledger.totalCredited("bob"); got != 10 {
		t.Errorf("credited %d, want 10", got)
	}
}

func TestApply_ConcurrentSameUser_NeverBreachesCap(t *testing.T) {
	// GIVEN: cap = 2 * base, many concurrent occurrences for one user
	// WHEN: All apply at once (the atomic cache check-and-set is the guard)
	// THEN: Total credited never exceeds the cap

	rig := newTestRig(t)
	h := registerKudos(t, rig, 10)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := kudosInput{From: "alice", To: "bob", For: fmt.Sprintf("post-%d", i)}
			if err := h.Apply(context.Background(), in, ""); err != nil {
				t.Errorf("apply %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if got := rig.ledger.totalCredited("bob"); got > 10 {
		t.Errorf("credited %d, cap is 10", got)
	}
}

func TestApply_LedgerFailureSurfacesAfterEventRecorded(t *testing.T) {
	// GIVEN: A ledger that always fails
	// THEN: Apply returns the error, and the event stays durably awarded
	// (the transfer gap is an operational reconciliation concern)

	rig := newTestRig(t)
	rig.ledger.failAfter = 0
	h := registerKudos(t, rig, 0)

	err := h.Apply(context.Background(), kudosInput{From: "alice", To: "bob", For: "post-1"}, "")
	if err == nil {
		t.Fatal("expected an error from the failed credit")
	}

	evs := latestEvents(t, rig, "kudos")
	if len(evs) != 1 || evs[0].Status != reward.StatusAwarded {
		t.Fatalf("expected the event to remain awarded, got %+v", evs)
	}
}

// =============================================================================
// PROCESSABLE APPLY TESTS
// =============================================================================

func TestApply_ProcessableRecordsPendingOnly(t *testing.T) {
	rig := newTestRig(t)
	h, err := reward.RegisterProcessable(rig.engine, reward.Processable[kudosInput]{
		Type:       "praise",
		BaseAmount: 3,
		Key: func(_ context.Context, in kudosInput) (reward.EventKey, error) {
			return reward.EventKey{Type: "praise", ToUserID: in.To, ByUserID: in.From, ForID: in.For}, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.Apply(context.Background(), kudosInput{From: "alice", To: "bob", For: "c-1"}, ""); err != nil {
		t.Fatalf("apply: %v", err)
	}

	evs := latestEvents(t, rig, "praise")
	if len(evs) != 1 {
		t.Fatalf("expected 1 event, got %d", len(evs))
	}
	if evs[0].Status != reward.StatusPending || evs[0].AwardAmount != 3 {
		t.Errorf("event = %s/%d, want pending/3", evs[0].Status, evs[0].AwardAmount)
	}
	if rig.ledger.creditCount() != 0 {
		t.Error("processable apply must not touch the ledger")
	}
}

func TestApply_ProcessableRejectsUndeclaredRefinedType(t *testing.T) {
	rig := newTestRig(t)
	h, err := reward.RegisterProcessable(rig.engine, reward.Processable[kudosInput]{
		Type:         "praise",
		IncludeTypes: []string{"praise:extra"},
		BaseAmount:   3,
		Key: func(_ context.Context, in kudosInput) (reward.EventKey, error) {
			return reward.EventKey{Type: "praise:rogue", ToUserID: in.To, ForID: in.For}, nil
		},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := h.Apply(context.Background(), kudosInput{From: "a", To: "b", For: "c"}, ""); err == nil {
		t.Fatal("expected an error for an undeclared refined type")
	}
}
