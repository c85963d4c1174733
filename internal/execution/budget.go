package execution

import "sync/atomic"

// BudgetStatus represents the current state of budget consumption.
type BudgetStatus int

const (
	// BudgetOK indicates usage is below the warning threshold (<80%).
	BudgetOK BudgetStatus = iota
	// BudgetWarning indicates usage is between warning and exhaustion (80-99%).
	BudgetWarning
	// BudgetExhausted indicates budget is fully consumed (>=100%).
	BudgetExhausted
)

// String returns a human-readable representation of the budget status.
func (s BudgetStatus) String() string {
	switch s {
	case BudgetOK:
		return "OK"
	case BudgetWarning:
		return "Warning"
	case BudgetExhausted:
		return "Exhausted"
	default:
		return "Unknown"
	}
}

// DefaultWarningThreshold is the usage fraction at which the status becomes a warning.
const DefaultWarningThreshold = 0.80

// Budget is a shared cost counter. Concurrent Consume calls from one stage
// never lose an update. A non-positive limit means unlimited.
type Budget struct {
	limit int64
	used  atomic.Int64
}

// NewBudget creates a Budget with the given limit.
func NewBudget(limit int64) *Budget {
	if limit < 0 {
		limit = 0
	}
	return &Budget{limit: limit}
}

// Consume records cost c and returns the remaining budget.
func (b *Budget) Consume(c int64) int64 {
	if c > 0 {
		b.used.Add(c)
	}
	return b.Remaining()
}

// Limit returns the configured limit; 0 means unlimited.
func (b *Budget) Limit() int64 {
	return b.limit
}

// Unlimited reports whether no limit is set.
func (b *Budget) Unlimited() bool {
	return b.limit == 0
}

// Used returns the total consumed cost.
func (b *Budget) Used() int64 {
	return b.used.Load()
}

// Remaining returns limit minus used, which may go negative when the last
// subtasks overshoot. Unlimited budgets report -1.
func (b *Budget) Remaining() int64 {
	if b.Unlimited() {
		return -1
	}
	return b.limit - b.used.Load()
}

// Exhausted reports whether a limited budget has no remaining cost.
func (b *Budget) Exhausted() bool {
	return !b.Unlimited() && b.Remaining() <= 0
}

// Status classifies usage against DefaultWarningThreshold.
func (b *Budget) Status() BudgetStatus {
	if b.Unlimited() {
		return BudgetOK
	}
	used := b.used.Load()
	switch {
	case used >= b.limit:
		return BudgetExhausted
	case float64(used) >= float64(b.limit)*DefaultWarningThreshold:
		return BudgetWarning
	default:
		return BudgetOK
	}
}
