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

// Package inmem is a buffered in-memory source partition, used in tests and
// local runs.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
)

// Reader is an in-memory source.Reader. Records appended with Append are
// served in order with sequential offsets starting at the resume offset.
type Reader struct {
	name         string
	partitionIdx int32
	readTimeout  time.Duration

	mu      sync.Mutex
	records [][]byte
	// seq is the offset of the next record to be served.
	seq  int64
	head int

	// unavailable simulates a transient source outage.
	unavailable bool
}

// NewReader returns a Reader for one partition, resuming at resumeOffset.
func NewReader(name string, partitionIdx int32, resumeOffset int64, readTimeout time.Duration) *Reader {
	return &Reader{
		name:         name,
		partitionIdx: partitionIdx,
		readTimeout:  readTimeout,
		seq:          resumeOffset,
	}
}

// Append adds raw payloads to the tail of the partition.
func (r *Reader) Append(payloads ...[]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, payloads...)
}

// SetUnavailable toggles a simulated source outage.
func (r *Reader) SetUnavailable(unavailable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unavailable = unavailable
}

// GetName returns the reader name.
func (r *Reader) GetName() string {
	return r.name
}

// GetPartitionIdx returns the partition this reader serves.
func (r *Reader) GetPartitionIdx() int32 {
	return r.partitionIdx
}

// Read returns up to count pending records. When the partition is idle it
// waits up to the read timeout before returning an empty batch.
func (r *Reader) Read(ctx context.Context, count int64) ([]*source.Record, error) {
	deadline := time.After(r.readTimeout)
	for {
		batch, err := r.tryRead(count)
		if err != nil {
			return nil, err
		}
		if len(batch) > 0 {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return nil, nil
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *Reader) tryRead(count int64) ([]*source.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.unavailable {
		return nil, source.ErrUnavailable
	}
	var batch []*source.Record
	for int64(len(batch)) < count && r.head < len(r.records) {
		batch = append(batch, &source.Record{
			Payload: r.records[r.head],
			Offset:  source.NewOffset(r.seq, r.partitionIdx),
		})
		r.head++
		r.seq++
	}
	return batch, nil
}

// Seek moves the cursor back to the given offset, used to re-read from a
// checkpoint after a failed batch.
func (r *Reader) Seek(_ context.Context, offset int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if delta := r.seq - offset; delta > 0 && int64(r.head) >= delta {
		r.head -= int(delta)
		r.seq = offset
	}
	return nil
}

// Close is a no-op.
func (r *Reader) Close() error {
	return nil
}
