// Package cost tracks API spend for the pipeline: Anthropic token usage in
// dollars and YouTube Data API usage in quota units.
package cost

import "sync"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	YouTube   QuotaRate            `yaml:"youtube" mapstructure:"youtube"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// QuotaRate holds YouTube Data API quota accounting. The API is unit-based,
// not dollar-based; the daily allowance resets at midnight Pacific.
type QuotaRate struct {
	DailyUnits int64 `yaml:"daily_units" mapstructure:"daily_units"`
}

// Unit costs per YouTube Data API endpoint.
const (
	UnitsList   int64 = 1   // videos.list, channels.list
	UnitsSearch int64 = 100 // search.list
)

// Usage is a point-in-time view of accumulated API consumption.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	AICalls      int64 `json:"ai_calls"`
	QuotaUnits   int64 `json:"quota_units"`
}

// Tracker accumulates API usage across the pipeline's workers. All methods
// are safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	usage Usage
}

// NewTracker creates an empty usage tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// AddTokens records one Anthropic call's token usage.
func (t *Tracker) AddTokens(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.InputTokens += input
	t.usage.OutputTokens += output
	t.usage.AICalls++
}

// AddQuota records YouTube Data API quota units spent.
func (t *Tracker) AddQuota(units int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.QuotaUnits += units
}

// Usage returns the accumulated totals.
func (t *Tracker) Usage() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Reset zeroes the counters and returns the totals up to that point.
func (t *Tracker) Reset() Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.usage
	t.usage = Usage{}
	return u
}

// Calculator converts usage into dollars and quota fractions.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the dollar cost of the tracked token usage for a model.
// Unknown models cost zero; spend alerting treats that as "unpriced", not
// free, by also reporting raw token counts.
func (c *Calculator) Claude(model string, u Usage) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}
	inCost := (float64(u.InputTokens) / 1e6) * rate.Input
	outCost := (float64(u.OutputTokens) / 1e6) * rate.Output
	return inCost + outCost
}

// QuotaFraction returns the share of the daily YouTube quota consumed.
func (c *Calculator) QuotaFraction(u Usage) float64 {
	if c.rates.YouTube.DailyUnits <= 0 {
		return 0
	}
	return float64(u.QuotaUnits) / float64(c.rates.YouTube.DailyUnits)
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		YouTube: QuotaRate{DailyUnits: 10000},
	}
}
