package ledger

import (
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLedger_ReserveCommit(t *testing.T) {
	l := New(Budget{MaxCalls: 5, CostPerCall: decimal.RequireFromString("0.01")})

	if !l.Reserve(2) {
		t.Fatal("first reserve refused")
	}
	if !l.Reserve(2) {
		t.Fatal("second reserve refused")
	}
	if l.Reserve(2) {
		t.Fatal("reserve beyond budget granted")
	}
	if !l.Exhausted() {
		t.Error("ledger should be exhausted after a refusal")
	}

	l.Commit(2, 2, decimal.Zero)
	l.Commit(2, 1, decimal.Zero)
	if l.Used() != 3 {
		t.Errorf("expected 3 used, got %d", l.Used())
	}
	if !l.Cost().Equal(decimal.RequireFromString("0.03")) {
		t.Errorf("expected cost 0.03, got %s", l.Cost())
	}

	// Exhaustion is sticky even though two calls are free again.
	if l.Reserve(1) {
		t.Error("reserve granted after exhaustion")
	}
}

func TestLedger_ZeroBudget(t *testing.T) {
	l := New(Budget{MaxCalls: 0})
	if l.Reserve(1) {
		t.Error("zero budget granted a reservation")
	}
	if !l.Reserve(0) {
		t.Error("empty reservation should always succeed")
	}
}

func TestLedger_ObservedCostIsSeparate(t *testing.T) {
	l := New(Budget{MaxCalls: 10, CostPerCall: decimal.RequireFromString("0.0006")})
	tab, ok := l.Open(2)
	if !ok {
		t.Fatal("open refused")
	}
	for i := 0; i < 2; i++ {
		if err := tab.Take(); err != nil {
			t.Fatalf("take %d: %v", i, err)
		}
		tab.Observe(decimal.RequireFromString("0.002"))
	}
	tab.Close()

	if !l.Cost().Equal(decimal.RequireFromString("0.0012")) {
		t.Errorf("computed cost changed: %s", l.Cost())
	}
	if !l.ObservedCost().Equal(decimal.RequireFromString("0.004")) {
		t.Errorf("unexpected observed cost %s", l.ObservedCost())
	}
}

func TestTab_RetriesDrawSingleCalls(t *testing.T) {
	l := New(Budget{MaxCalls: 3})
	tab, ok := l.Open(2)
	if !ok {
		t.Fatal("open refused")
	}
	for i := 0; i < 3; i++ {
		if err := tab.Take(); err != nil {
			t.Fatalf("take %d: %v", i, err)
		}
	}
	if err := tab.Take(); !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	tab.Close()
	tab.Close()

	if l.Used() != 3 {
		t.Errorf("expected 3 used, got %d", l.Used())
	}
	if l.Remaining() != 0 {
		t.Errorf("expected nothing remaining, got %d", l.Remaining())
	}
}

func TestTab_UnusedCallsReturn(t *testing.T) {
	l := New(Budget{MaxCalls: 4})
	tab, _ := l.Open(3)
	_ = tab.Take()
	tab.Close()
	if l.Used() != 1 || l.Remaining() != 3 {
		t.Errorf("used=%d remaining=%d", l.Used(), l.Remaining())
	}
	if err := tab.Take(); err == nil {
		t.Error("take on a closed tab should fail")
	}
}

func TestLedger_ConcurrentNeverExceeds(t *testing.T) {
	const budget = 37
	l := New(Budget{MaxCalls: budget})

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tab, ok := l.Open(2)
			if !ok {
				return
			}
			defer tab.Close()
			for j := 0; j < 4; j++ {
				if tab.Take() != nil {
					return
				}
			}
		}()
	}
	wg.Wait()

	if l.Used() > budget {
		t.Fatalf("used %d exceeds budget %d", l.Used(), budget)
	}
	if l.Remaining() < 0 {
		t.Fatalf("negative remaining %d", l.Remaining())
	}
}
