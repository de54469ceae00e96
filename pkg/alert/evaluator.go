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

// Package alert derives a low latency alert stream from raw events. The
// evaluator is a pure per event function with no memory of prior events,
// which keeps the hot alerting path O(1) per event. Frequency based rules
// are a derived metric computed from finalized window aggregates, not here.
package alert

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/event"
)

// Type is the alert classification.
type Type string

const (
	TypeHighValue           Type = "HIGH_VALUE"
	TypeLargeRemittance     Type = "LARGE_REMITTANCE"
	TypeFailedEvent         Type = "FAILED_EVENT"
	TypeNegativeAmount      Type = "NEGATIVE_AMOUNT"
	TypeMissingExchangeRate Type = "MISSING_EXCHANGE_RATE"
)

// Severity orders alerts for downstream paging.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Alert is a derived, ephemeral record handed to the notifier. It is not
// persisted by the engine; downstream deduplicates by
// (source_event_id, alert_type).
type Alert struct {
	SourceEventID string    `json:"source_event_id"`
	AlertType     Type      `json:"alert_type"`
	Severity      Severity  `json:"severity"`
	EventTime     time.Time `json:"event_time"`
	DetectionTime time.Time `json:"detection_time"`
	// Context fields for dashboards.
	EventType event.Type `json:"event_type"`
	Amount    float64    `json:"amount"`
	KeyFields []string   `json:"key_fields"`
}

// Marshal serializes the alert for the notifier.
func (a *Alert) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Evaluator applies the alert rule chain to single events. Thresholds are
// fixed at construction.
type Evaluator struct {
	highValueThreshold       float64
	largeRemittanceThreshold float64
	// now is swappable for tests.
	now func() time.Time
}

// NewEvaluator returns an Evaluator with the given thresholds.
func NewEvaluator(highValueThreshold, largeRemittanceThreshold float64) *Evaluator {
	return &Evaluator{
		highValueThreshold:       highValueThreshold,
		largeRemittanceThreshold: largeRemittanceThreshold,
		now:                      time.Now,
	}
}

// Evaluate runs the rule chain against one event and returns at most one
// alert. First match wins, rules are ordered by severity.
func (ev *Evaluator) Evaluate(e *event.Event) *Alert {
	switch {
	case e.Type == event.TypeTransaction && e.Amount > ev.highValueThreshold:
		return ev.alert(e, TypeHighValue, SeverityCritical)
	case e.Type == event.TypeRemittance && e.Amount > ev.largeRemittanceThreshold:
		return ev.alert(e, TypeLargeRemittance, SeverityCritical)
	case e.Status == event.StatusFailed:
		return ev.alert(e, TypeFailedEvent, SeverityWarning)
	case e.Amount < 0:
		return ev.alert(e, TypeNegativeAmount, SeverityWarning)
	case e.Type == event.TypeRemittance && e.ExchangeRate == nil:
		return ev.alert(e, TypeMissingExchangeRate, SeverityInfo)
	default:
		return nil
	}
}

func (ev *Evaluator) alert(e *event.Event, t Type, s Severity) *Alert {
	return &Alert{
		SourceEventID: e.ID,
		AlertType:     t,
		Severity:      s,
		EventTime:     e.EventTime,
		DetectionTime: ev.now(),
		EventType:     e.Type,
		Amount:        e.Amount,
		KeyFields:     e.KeyFields(),
	}
}
