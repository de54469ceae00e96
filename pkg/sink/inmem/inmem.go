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

// Package inmem is an in-memory sink used in tests. It records write counts
// per key so tests can assert both idempotent convergence and emission
// counts.
package inmem

import (
	"context"
	"sync"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
)

type record struct {
	value  []byte
	writes int
}

// Sink is an in-memory sink.Sinker.
type Sink struct {
	mu      sync.Mutex
	records map[sink.RecordType]map[string]*record

	// failures, when positive, makes the next Upserts fail. Used to drive
	// the engine's retry and batch abort paths in tests.
	failures int
}

// NewSink returns an empty Sink.
func NewSink() *Sink {
	return &Sink{
		records: make(map[sink.RecordType]map[string]*record),
	}
}

// GetName returns the sink name.
func (s *Sink) GetName() string {
	return "inmem"
}

// FailNext makes the next n Upsert calls return an error.
func (s *Sink) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = n
}

// Upsert overwrites the value stored for (recordType, key).
func (s *Sink) Upsert(_ context.Context, recordType sink.RecordType, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return context.DeadlineExceeded
	}
	byKey, ok := s.records[recordType]
	if !ok {
		byKey = make(map[string]*record)
		s.records[recordType] = byKey
	}
	r, ok := byKey[key]
	if !ok {
		r = &record{}
		byKey[key] = r
	}
	r.value = append([]byte(nil), value...)
	r.writes++
	return nil
}

// Get returns the stored value for (recordType, key).
func (s *Sink) Get(recordType sink.RecordType, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordType][key]
	if !ok {
		return nil, false
	}
	return r.value, true
}

// Writes returns how many times (recordType, key) has been written.
func (s *Sink) Writes(recordType sink.RecordType, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recordType][key]
	if !ok {
		return 0
	}
	return r.writes
}

// Len returns the number of stored records of a type.
func (s *Sink) Len(recordType sink.RecordType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[recordType])
}

// Keys returns the stored keys of a type.
func (s *Sink) Keys(recordType sink.RecordType) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records[recordType]))
	for k := range s.records[recordType] {
		keys = append(keys, k)
	}
	return keys
}

// Close is a no-op.
func (s *Sink) Close() error {
	return nil
}
