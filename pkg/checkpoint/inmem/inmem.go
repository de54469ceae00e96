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

// Package inmem is an in-memory checkpoint store used in tests.
package inmem

import (
	"context"
	"errors"
	"sync"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint"
)

// Store keeps checkpoints in a map.
type Store struct {
	mu       sync.Mutex
	cps      map[int32]checkpoint.Checkpoint
	saves    int
	failNext bool
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{cps: make(map[int32]checkpoint.Checkpoint)}
}

// FailNext makes the next Save or Load return an error.
func (s *Store) FailNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = true
}

// Load returns the stored checkpoint, or nil when none exists.
func (s *Store) Load(_ context.Context, partitionIdx int32) (*checkpoint.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return nil, errors.New("checkpoint store unavailable")
	}
	cp, ok := s.cps[partitionIdx]
	if !ok {
		return nil, nil
	}
	out := cp
	return &out, nil
}

// Save stores the checkpoint.
func (s *Store) Save(_ context.Context, partitionIdx int32, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("checkpoint store unavailable")
	}
	s.cps[partitionIdx] = *cp
	s.saves++
	return nil
}

// Saves returns how many checkpoints were written.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
