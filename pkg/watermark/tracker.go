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

// Package watermark tracks the per partition event time watermark, a lower
// bound on event time below which no further events are expected. There is
// no cross partition coordination, each partition's watermark progresses
// independently. A global watermark, if a downstream consumer needs one, is
// the minimum across partitions and is computed by the coordinator.
package watermark

import (
	"math"
	"time"

	"go.uber.org/atomic"
)

// noEventSeen is the initial value of maxEventTime before any event has been
// observed.
const noEventSeen = int64(math.MinInt64)

// Tracker keeps a monotonically non-decreasing estimate of
// "no more events older than W will arrive" for one partition.
type Tracker struct {
	allowedLateness time.Duration
	// maxEventTime is the max event time seen, in unix millis.
	maxEventTime *atomic.Int64
}

// NewTracker returns a Tracker for one partition.
func NewTracker(allowedLateness time.Duration) *Tracker {
	return &Tracker{
		allowedLateness: allowedLateness,
		maxEventTime:    atomic.NewInt64(noEventSeen),
	}
}

// Observe folds an accepted event's event time into the tracker.
// The watermark never regresses even if a later event carries an earlier
// event time.
func (t *Tracker) Observe(eventTime time.Time) {
	millis := eventTime.UnixMilli()
	for {
		cur := t.maxEventTime.Load()
		if millis <= cur {
			return
		}
		if t.maxEventTime.CompareAndSwap(cur, millis) {
			return
		}
	}
}

// CurrentWatermark returns W = max(event time seen) - allowed lateness.
// Before any event has been observed it returns the zero time.
func (t *Tracker) CurrentWatermark() time.Time {
	cur := t.maxEventTime.Load()
	if cur == noEventSeen {
		return time.Time{}
	}
	return time.UnixMilli(cur).Add(-t.allowedLateness)
}

// IsLate reports whether an event time is behind the current watermark.
// Late events are dropped from the stateful aggregation path but still flow
// through the stateless alerting path.
func (t *Tracker) IsLate(eventTime time.Time) bool {
	cur := t.maxEventTime.Load()
	if cur == noEventSeen {
		return false
	}
	return eventTime.Before(t.CurrentWatermark())
}

// Restore primes the tracker from a checkpointed watermark so that lateness
// decisions survive a restart. A zero watermark is ignored.
func (t *Tracker) Restore(watermark time.Time) {
	if watermark.IsZero() {
		return
	}
	t.Observe(watermark.Add(t.allowedLateness))
}
