package reward_test

import (
	"testing"
	"time"

	"github.com/warp/credit-engine/reward"
)

// =============================================================================
// CAP ENGINE TESTS
// =============================================================================

func TestRemaining_Basic(t *testing.T) {
	cases := []struct {
		name                       string
		rule, prior, requested, want int64
	}{
		{"full headroom", 10, 0, 5, 5},
		{"partial headroom", 10, 8, 5, 2},
		{"exactly exhausted", 10, 10, 5, 0},
		{"over-exhausted never negative", 10, 15, 5, 0},
		{"requested below headroom", 10, 2, 3, 3},
		{"zero request", 10, 2, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := reward.Remaining(tc.rule, tc.prior, tc.requested)
			if got != tc.want {
				t.Errorf("Remaining(%d, %d, %d) = %d, want %d", tc.rule, tc.prior, tc.requested, got, tc.want)
			}
		})
	}
}

func TestRemaining_MonotoneUnderComposition(t *testing.T) {
	// GIVEN: Any requested amount passed through a chain of rules
	// THEN: Each application can only decrease the result

	amount := int64(7)
	for _, step := range []struct{ rule, prior int64 }{{100, 0}, {10, 4}, {5, 1}, {50, 49}} {
		next := reward.Remaining(step.rule, step.prior, amount)
		if next > amount {
			t.Fatalf("composition increased amount: %d -> %d under rule %d/prior %d", amount, next, step.rule, step.prior)
		}
		amount = next
	}
}

// =============================================================================
// WINDOW TESTS
// =============================================================================

func TestWindowFor_Day(t *testing.T) {
	now := time.Date(2025, time.March, 10, 15, 30, 0, 0, time.UTC)

	w, ok := reward.WindowFor(reward.IntervalDay, now)
	if !ok {
		t.Fatal("expected a window for the day interval")
	}
	if !w.Contains(now) {
		t.Error("window should contain now")
	}
	if w.Contains(now.AddDate(0, 0, -1)) {
		t.Error("window should not contain yesterday")
	}
	if !w.Start.Equal(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day window start = %v", w.Start)
	}
}

func TestWindowFor_WeekStartsMonday(t *testing.T) {
	// 2025-03-12 is a Wednesday; its week starts Monday 2025-03-10.
	now := time.Date(2025, time.March, 12, 8, 0, 0, 0, time.UTC)

	w, ok := reward.WindowFor(reward.IntervalWeek, now)
	if !ok {
		t.Fatal("expected a window for the week interval")
	}
	if !w.Start.Equal(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("week window start = %v, want Monday 2025-03-10", w.Start)
	}
	if !w.Contains(time.Date(2025, time.March, 16, 23, 0, 0, 0, time.UTC)) {
		t.Error("window should contain Sunday of the same week")
	}
	if w.Contains(time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC)) {
		t.Error("window should not contain next Monday")
	}
}

func TestWindowFor_WeekWhenNowIsSunday(t *testing.T) {
	// Sunday belongs to the week that started the previous Monday.
	now := time.Date(2025, time.March, 16, 12, 0, 0, 0, time.UTC)

	w, _ := reward.WindowFor(reward.IntervalWeek, now)
	if !w.Start.Equal(time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("week window start = %v, want Monday 2025-03-10", w.Start)
	}
}

func TestWindowFor_Month(t *testing.T) {
	now := time.Date(2025, time.January, 31, 23, 59, 0, 0, time.UTC)

	w, ok := reward.WindowFor(reward.IntervalMonth, now)
	if !ok {
		t.Fatal("expected a window for the month interval")
	}
	if !w.Start.Equal(time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("month window start = %v", w.Start)
	}
	if w.Contains(time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("month window should exclude the first instant of February")
	}
}

func TestWindowFor_AllTime(t *testing.T) {
	// The zero interval means no window at all.
	if _, ok := reward.WindowFor("", time.Now()); ok {
		t.Error("zero interval should not produce a window")
	}
}
