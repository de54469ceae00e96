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

// Package window implements sliding window assignment and the per window
// running aggregates. A sliding window is a fixed length interval recomputed
// at a slide interval shorter than its length, so a single event belongs to
// up to length/slide overlapping windows.
package window

import (
	"fmt"
	"strings"
	"time"
)

// IntervalWindow is a half-open event time interval [Start, End).
type IntervalWindow struct {
	Start time.Time
	End   time.Time
}

func (iw IntervalWindow) String() string {
	return fmt.Sprintf("[%v-%v)", iw.Start.UnixMilli(), iw.End.UnixMilli())
}

// ID uniquely identifies a window: the interval plus the ordered business
// dimensions the events were keyed by.
type ID struct {
	Start time.Time
	End   time.Time
	// Slot is the joined, normalized key fields.
	Slot string
}

// NewID builds an ID from an interval and key fields.
func NewID(iw IntervalWindow, keyFields []string) ID {
	return ID{
		Start: iw.Start,
		End:   iw.End,
		Slot:  strings.Join(keyFields, ":"),
	}
}

// String renders the ID in a stable form usable as an idempotency key for
// the sink.
func (id ID) String() string {
	return fmt.Sprintf("%v-%v-%s", id.Start.UnixMilli(), id.End.UnixMilli(), id.Slot)
}
