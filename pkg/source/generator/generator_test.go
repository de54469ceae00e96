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

package generator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/event"
)

func TestRead_ProducesValidEvents(t *testing.T) {
	r := NewReader(0, 1000, 5*time.Second)
	defer func() { _ = r.Close() }()

	batch, err := r.Read(context.Background(), 200)
	require.NoError(t, err)
	require.Len(t, batch, 200)

	validator := event.NewValidator()
	types := map[event.Type]int{}
	var lastSeq int64 = -1
	for _, rec := range batch {
		e, err := validator.Validate(rec.Payload)
		require.NoError(t, err, string(rec.Payload))
		types[e.Type]++
		assert.Greater(t, rec.Offset.Sequence(), lastSeq)
		lastSeq = rec.Offset.Sequence()
		assert.Equal(t, int32(0), rec.Offset.PartitionIdx())
	}
	assert.Greater(t, types[event.TypeTransaction], 0)
	assert.Greater(t, types[event.TypeRemittance], 0)
}

func TestRead_HonorsTimeout(t *testing.T) {
	r := NewReader(1, 1, 20*time.Millisecond)
	defer func() { _ = r.Close() }()

	start := time.Now()
	batch, err := r.Read(context.Background(), 1000)
	require.NoError(t, err)
	assert.Less(t, len(batch), 1000)
	assert.Less(t, time.Since(start), 2*time.Second)
}
