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
	"fmt"
	"time"
)

// Sliding assigns events to sliding windows of a fixed Length, phased out by
// Slide. Window boundaries are aligned to multiples of Slide since epoch, so
// independent nodes computing the same event produce the same window set.
type Sliding struct {
	// Length is the duration of the window.
	Length time.Duration
	// Slide is the offset between successive windows.
	Slide time.Duration
}

// NewSliding returns a Sliding windower. Slide must be positive, no longer
// than Length, and divide Length evenly.
func NewSliding(length time.Duration, slide time.Duration) (*Sliding, error) {
	if length <= 0 || slide <= 0 {
		return nil, fmt.Errorf("window length and slide must be positive, got length=%v slide=%v", length, slide)
	}
	if slide > length {
		return nil, fmt.Errorf("slide %v must not exceed window length %v", slide, length)
	}
	if length.Milliseconds()%slide.Milliseconds() != 0 {
		return nil, fmt.Errorf("slide %v must divide window length %v evenly", slide, length)
	}
	return &Sliding{Length: length, Slide: slide}, nil
}

// AssignWindows returns the set of windows that contain the given event time.
//
// Use the highest integer multiple of the slide which is not after the
// event time as the start of the most recent window, then walk backwards by
// the slide. Containment is left inclusive and right exclusive, so an event
// sitting exactly on a slide boundary belongs to the window that starts
// there, not to the one that ends there.
func (s *Sliding) AssignWindows(eventTime time.Time) []IntervalWindow {
	windows := make([]IntervalWindow, 0, s.Length/s.Slide)

	startTime := time.UnixMilli((eventTime.UnixMilli() / s.Slide.Milliseconds()) * s.Slide.Milliseconds())
	endTime := startTime.Add(s.Length)

	for !startTime.After(eventTime) && endTime.After(eventTime) {
		windows = append(windows, IntervalWindow{Start: startTime, End: endTime})
		startTime = startTime.Add(-s.Slide)
		endTime = endTime.Add(-s.Slide)
	}

	return windows
}
