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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSliding(t *testing.T) {
	tests := []struct {
		name    string
		length  time.Duration
		slide   time.Duration
		wantErr bool
	}{
		{name: "default", length: 5 * time.Minute, slide: time.Minute},
		{name: "tumbling degenerate", length: time.Minute, slide: time.Minute},
		{name: "zero slide", length: time.Minute, slide: 0, wantErr: true},
		{name: "negative length", length: -time.Minute, slide: time.Minute, wantErr: true},
		{name: "slide exceeds length", length: time.Minute, slide: 2 * time.Minute, wantErr: true},
		{name: "slide does not divide length", length: 5 * time.Minute, slide: 2 * time.Minute, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSliding(tt.length, tt.slide)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSliding_AssignWindows_BoundaryAdjacent(t *testing.T) {
	s, err := NewSliding(5*time.Minute, time.Minute)
	require.NoError(t, err)

	// 12:03:30 belongs to the five windows starting 11:59 through 12:03
	eventTime := time.Date(2024, 3, 15, 12, 3, 30, 0, time.UTC)
	got := s.AssignWindows(eventTime)
	require.Len(t, got, 5)

	wantStarts := []time.Time{
		time.Date(2024, 3, 15, 12, 3, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 12, 2, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 12, 1, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 15, 11, 59, 0, 0, time.UTC),
	}
	for i, w := range got {
		assert.True(t, w.Start.Equal(wantStarts[i]), "window %d start = %v, want %v", i, w.Start, wantStarts[i])
		assert.True(t, w.End.Equal(wantStarts[i].Add(5*time.Minute)))
	}
}

func TestSliding_AssignWindows_BoundaryAligned(t *testing.T) {
	s, err := NewSliding(5*time.Minute, time.Minute)
	require.NoError(t, err)

	// an event exactly on a slide boundary goes to the window starting
	// there and not to the window ending there
	eventTime := time.Date(2024, 3, 15, 12, 3, 0, 0, time.UTC)
	got := s.AssignWindows(eventTime)
	require.Len(t, got, 5)

	assert.True(t, got[0].Start.Equal(eventTime))
	// the earliest assigned window is [11:59, 12:04); [11:58, 12:03) must
	// not contain the event
	last := got[len(got)-1]
	assert.True(t, last.Start.Equal(time.Date(2024, 3, 15, 11, 59, 0, 0, time.UTC)))
	assert.True(t, last.End.After(eventTime))
}

func TestSliding_AssignWindows_Deterministic(t *testing.T) {
	s, err := NewSliding(5*time.Minute, time.Minute)
	require.NoError(t, err)

	eventTime := time.Date(2024, 3, 15, 12, 3, 30, 0, time.UTC)
	first := s.AssignWindows(eventTime)
	second := s.AssignWindows(eventTime)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.True(t, first[i].Start.Equal(second[i].Start))
		assert.True(t, first[i].End.Equal(second[i].End))
	}
}
