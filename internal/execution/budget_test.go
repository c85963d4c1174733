package execution

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ShayCichocki/decomp/pkg/models"
)

func TestBudgetStatus(t *testing.T) {
	tests := []struct {
		name  string
		limit int64
		used  int64
		want  BudgetStatus
	}{
		{"unlimited", 0, 1_000_000, BudgetOK},
		{"fresh", 100, 0, BudgetOK},
		{"below warning", 100, 79, BudgetOK},
		{"at warning", 100, 80, BudgetWarning},
		{"at limit", 100, 100, BudgetExhausted},
		{"overshoot", 100, 130, BudgetExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBudget(tt.limit)
			b.Consume(tt.used)
			assert.Equal(t, tt.want, b.Status())
		})
	}
}

func TestBudgetConsume(t *testing.T) {
	b := NewBudget(500)
	assert.Equal(t, int64(458), b.Consume(42))
	assert.Equal(t, int64(458), b.Consume(0))
	assert.Equal(t, int64(458), b.Consume(-5))
	assert.False(t, b.Exhausted())
	assert.Equal(t, int64(-10), b.Consume(468))
	assert.True(t, b.Exhausted())
}

func TestBudgetUnlimited(t *testing.T) {
	b := NewBudget(-3)
	assert.True(t, b.Unlimited())
	assert.Equal(t, int64(-1), b.Consume(10))
	assert.False(t, b.Exhausted())
	assert.Equal(t, int64(10), b.Used())
}

func TestBudgetConcurrentConsume(t *testing.T) {
	b := NewBudget(1_000_000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Consume(3)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(15_000), b.Used())
}

func TestBudgetStatusString(t *testing.T) {
	assert.Equal(t, "OK", BudgetOK.String())
	assert.Equal(t, "Warning", BudgetWarning.String())
	assert.Equal(t, "Exhausted", BudgetExhausted.String())
	assert.Equal(t, "Unknown", BudgetStatus(9).String())
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to models.SubtaskStatus
		want     bool
	}{
		{"", models.SubtaskStatusReady, true},
		{models.SubtaskStatusPending, models.SubtaskStatusReady, true},
		{models.SubtaskStatusReady, models.SubtaskStatusInProgress, true},
		{models.SubtaskStatusInProgress, models.SubtaskStatusComplete, true},
		{models.SubtaskStatusInProgress, models.SubtaskStatusFailed, true},
		{models.SubtaskStatusBlocked, models.SubtaskStatusReady, true},
		{models.SubtaskStatusPending, models.SubtaskStatusSkipped, true},
		{models.SubtaskStatusComplete, models.SubtaskStatusPending, false},
		{models.SubtaskStatusFailed, models.SubtaskStatusInProgress, false},
		{models.SubtaskStatusPending, models.SubtaskStatusComplete, false},
		{models.SubtaskStatusInProgress, models.SubtaskStatusReady, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, canTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}
