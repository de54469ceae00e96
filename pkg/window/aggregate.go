/*
Copyright 2024 The RegionalBankDataPlatform Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package window

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/event"
)

// Aggregate is the running aggregate of one window. Every field is updated
// with a commutative, associative fold, so replays or reordering within the
// allowed lateness bound never change the final result. Averages are derived
// at read time from running sums and counts.
type Aggregate struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	// FeesSum is the running sum of remittance fees.
	FeesSum float64 `json:"fees_sum"`
	// FXRateSum / FXRateCount carry the running average of the exchange
	// rate for remittance windows.
	FXRateSum   float64 `json:"fx_rate_sum"`
	FXRateCount int64   `json:"fx_rate_count"`
}

// Fold updates the aggregate with one event.
func (a *Aggregate) Fold(e *event.Event) {
	if a.Count == 0 || e.Amount < a.Min {
		a.Min = e.Amount
	}
	if a.Count == 0 || e.Amount > a.Max {
		a.Max = e.Amount
	}
	a.Count++
	a.Sum += e.Amount
	if e.Fees != nil {
		a.FeesSum += *e.Fees
	}
	if e.ExchangeRate != nil {
		a.FXRateSum += *e.ExchangeRate
		a.FXRateCount++
	}
}

// Avg returns sum/count, or 0 for an empty aggregate.
func (a *Aggregate) Avg() float64 {
	if a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// AvgExchangeRate returns the average exchange rate over the events that
// carried one.
func (a *Aggregate) AvgExchangeRate() (float64, bool) {
	if a.FXRateCount == 0 {
		return 0, false
	}
	return a.FXRateSum / float64(a.FXRateCount), true
}

// Record is a finalized window aggregate as written to the sink, keyed by
// (slot, window start, window end).
type Record struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Slot        string    `json:"slot"`

	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	TotalFees       float64  `json:"total_fees"`
	AvgExchangeRate *float64 `json:"avg_exchange_rate,omitempty"`
	// FeePercentage is total fees over total amount, in percent.
	FeePercentage *float64 `json:"fee_percentage,omitempty"`

	RatePerMinute     float64 `json:"rate_per_minute"`
	HighFrequencyFlag bool    `json:"high_frequency_flag"`
}

// BuildRecord derives the emitted record from a finalized aggregate.
// suspiciousFrequency is the events-per-minute count above which the window
// is flagged as high frequency.
func BuildRecord(id ID, agg *Aggregate, suspiciousFrequency float64) *Record {
	r := &Record{
		WindowStart: id.Start,
		WindowEnd:   id.End,
		Slot:        id.Slot,
		Count:       agg.Count,
		Sum:         agg.Sum,
		Avg:         agg.Avg(),
		Min:         agg.Min,
		Max:         agg.Max,
		TotalFees:   agg.FeesSum,
	}
	if fx, ok := agg.AvgExchangeRate(); ok {
		r.AvgExchangeRate = &fx
	}
	if agg.FeesSum != 0 && agg.Sum != 0 {
		pct := agg.FeesSum / agg.Sum * 100
		r.FeePercentage = &pct
	}
	if minutes := id.End.Sub(id.Start).Minutes(); minutes > 0 {
		r.RatePerMinute = float64(agg.Count) / minutes
		r.HighFrequencyFlag = r.RatePerMinute > suspiciousFrequency
	}
	return r
}

// Marshal serializes the record for the sink.
func (r *Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
