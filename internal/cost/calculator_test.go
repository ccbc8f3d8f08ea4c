package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		YouTube: QuotaRate{DailyUnits: 10000},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name  string
		model string
		usage Usage
		want  float64
	}{
		{
			name:  "haiku simple",
			model: "haiku",
			usage: Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
			want:  0.80 + 0.40,
		},
		{
			name:  "sonnet",
			model: "sonnet",
			usage: Usage{InputTokens: 500_000, OutputTokens: 200_000},
			want:  1.50 + 3.00,
		},
		{
			name:  "unknown model is unpriced",
			model: "gpt-nine",
			usage: Usage{InputTokens: 1_000_000},
			want:  0,
		},
		{
			name:  "zero usage",
			model: "haiku",
			want:  0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Claude(tt.model, tt.usage), 1e-9)
		})
	}
}

func TestQuotaFraction(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.25, calc.QuotaFraction(Usage{QuotaUnits: 2500}), 1e-9)
	assert.Zero(t, calc.QuotaFraction(Usage{}))

	// Unlimited (unset) quota never reports a fraction.
	free := NewCalculator(Rates{})
	assert.Zero(t, free.QuotaFraction(Usage{QuotaUnits: 999999}))
}

func TestTrackerAccumulates(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	tr.AddTokens(100, 20)
	tr.AddTokens(50, 10)
	tr.AddQuota(UnitsList)
	tr.AddQuota(UnitsSearch)

	u := tr.Usage()
	assert.Equal(t, int64(150), u.InputTokens)
	assert.Equal(t, int64(30), u.OutputTokens)
	assert.Equal(t, int64(2), u.AICalls)
	assert.Equal(t, int64(101), u.QuotaUnits)

	got := tr.Reset()
	assert.Equal(t, u, got)
	assert.Equal(t, Usage{}, tr.Usage())
}

func TestTrackerConcurrent(t *testing.T) {
	t.Parallel()
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AddTokens(10, 1)
			tr.AddQuota(1)
		}()
	}
	wg.Wait()

	u := tr.Usage()
	assert.Equal(t, int64(500), u.InputTokens)
	assert.Equal(t, int64(50), u.QuotaUnits)
	assert.Equal(t, int64(50), u.AICalls)
}
