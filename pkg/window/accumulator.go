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
	"sort"
	"time"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/event"
)

// State is one active window together with its running aggregate.
type State struct {
	ID        ID
	Aggregate *Aggregate
}

// Accumulator owns the active windows of a single partition. It is mutated
// only by that partition's sequential processing loop, so no locking is
// needed and the commutative fold is sufficient for correctness.
type Accumulator struct {
	entries map[string]*State
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		entries: make(map[string]*State),
	}
}

// Fold creates the window on first contact and folds the event into its
// aggregate.
func (a *Accumulator) Fold(id ID, e *event.Event) {
	key := id.String()
	st, ok := a.entries[key]
	if !ok {
		st = &State{ID: id, Aggregate: &Aggregate{}}
		a.entries[key] = st
	}
	st.Aggregate.Fold(e)
}

// Get returns the aggregate for a window, if the window is active.
func (a *Accumulator) Get(id ID) (*Aggregate, bool) {
	st, ok := a.entries[id.String()]
	if !ok {
		return nil, false
	}
	return st.Aggregate, true
}

// Len returns the number of active windows.
func (a *Accumulator) Len() int {
	return len(a.entries)
}

// RemoveExpired evicts and returns every window whose end time is at or
// before the cutoff. The result is ordered by window end, then slot, so
// emission order is deterministic.
func (a *Accumulator) RemoveExpired(cutoff time.Time) []*State {
	var expired []*State
	for key, st := range a.entries {
		if !st.ID.End.After(cutoff) {
			expired = append(expired, st)
			delete(a.entries, key)
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		if !expired[i].ID.End.Equal(expired[j].ID.End) {
			return expired[i].ID.End.Before(expired[j].ID.End)
		}
		return expired[i].ID.Slot < expired[j].ID.Slot
	})
	return expired
}
