// Package ledger tracks billable provider calls against a hard budget.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrBudgetExhausted is returned when a call cannot be reserved.
var ErrBudgetExhausted = errors.New("call budget exhausted")

// Budget is the spending limit for one run.
type Budget struct {
	MaxCalls    int
	CostPerCall decimal.Decimal
}

// Ledger is the single shared meter of a run. Reservations are granted only
// while used+reserved stays within MaxCalls, so the cap holds even with
// concurrent keywords in flight. Once a reservation is refused the ledger is
// exhausted for the rest of the run.
type Ledger struct {
	mu        sync.Mutex
	budget    Budget
	used      int
	reserved  int
	exhausted bool
	observed  decimal.Decimal
}

// New returns a ledger for b. A negative MaxCalls is treated as zero.
func New(b Budget) *Ledger {
	if b.MaxCalls < 0 {
		b.MaxCalls = 0
	}
	return &Ledger{budget: b}
}

// Reserve claims n calls. It returns false, and marks the ledger exhausted,
// when the claim would exceed the budget.
func (l *Ledger) Reserve(n int) bool {
	if n <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.exhausted || l.used+l.reserved+n > l.budget.MaxCalls {
		l.exhausted = true
		return false
	}
	l.reserved += n
	return true
}

// Commit settles a reservation of n calls of which issued went out. Unused
// calls return to the pool. observed is the provider-reported charge, if
// any, and is tracked apart from the computed cost.
func (l *Ledger) Commit(reserved, issued int, observed decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if issued > reserved {
		issued = reserved
	}
	l.reserved -= reserved
	if l.reserved < 0 {
		l.reserved = 0
	}
	l.used += issued
	l.observed = l.observed.Add(observed)
}

// Used is the number of calls issued so far.
func (l *Ledger) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.used
}

// Remaining is the number of calls neither used nor reserved.
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budget.MaxCalls - l.used - l.reserved
}

// Exhausted reports whether a reservation has been refused.
func (l *Ledger) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exhausted
}

// Cost is used × CostPerCall.
func (l *Ledger) Cost() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budget.CostPerCall.Mul(decimal.NewFromInt(int64(l.used)))
}

// ObservedCost is the sum of provider-reported charges.
func (l *Ledger) ObservedCost() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.observed
}

// Budget returns the configured budget.
func (l *Ledger) Budget() Budget { return l.budget }

// Tab meters the calls of a single keyword. It draws on the keyword's upfront
// reservation first and reserves one extra call at a time for retries. A Tab
// is safe for concurrent use by the keyword's calls.
type Tab struct {
	mu       sync.Mutex
	ledger   *Ledger
	reserved int
	issued   int
	observed decimal.Decimal
	closed   bool
}

// Open reserves n calls for one keyword. It returns false when the budget
// cannot cover them, in which case nothing is reserved.
func (l *Ledger) Open(n int) (*Tab, bool) {
	if !l.Reserve(n) {
		return nil, false
	}
	return &Tab{ledger: l, reserved: n}, true
}

// Take accounts for one attempt. It returns ErrBudgetExhausted when the
// attempt must not be issued.
func (t *Tab) Take() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("ledger: tab closed: %w", ErrBudgetExhausted)
	}
	if t.issued < t.reserved {
		t.issued++
		return nil
	}
	if !t.ledger.Reserve(1) {
		return ErrBudgetExhausted
	}
	t.reserved++
	t.issued++
	return nil
}

// Observe adds a provider-reported charge for an issued call.
func (t *Tab) Observe(cost decimal.Decimal) {
	t.mu.Lock()
	t.observed = t.observed.Add(cost)
	t.mu.Unlock()
}

// Issued is the number of attempts taken so far.
func (t *Tab) Issued() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.issued
}

// Close commits the tab to the ledger. Calling it again is a no-op.
func (t *Tab) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.ledger.Commit(t.reserved, t.issued, t.observed)
}
