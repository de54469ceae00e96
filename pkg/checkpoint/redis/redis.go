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

// Package redis is a Redis backed checkpoint store.
package redis

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint"
)

const keyPrefix = "rbdp:checkpoint"

// Store keeps one key per partition under "rbdp:checkpoint:<pipeline>".
type Store struct {
	client   redis.UniversalClient
	pipeline string
}

// NewStore returns a Store for the named pipeline.
func NewStore(addrs []string, pipeline string) *Store {
	return &Store{
		client:   redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs}),
		pipeline: pipeline,
	}
}

func (s *Store) key() string {
	return fmt.Sprintf("%s:%s", keyPrefix, s.pipeline)
}

// Load reads the checkpoint of the partition from the pipeline hash.
func (s *Store) Load(ctx context.Context, partitionIdx int32) (*checkpoint.Checkpoint, error) {
	val, err := s.client.HGet(ctx, s.key(), fmt.Sprintf("%d", partitionIdx)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load checkpoint for partition %d: %w", partitionIdx, err)
	}
	var cp checkpoint.Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint for partition %d: %w", partitionIdx, err)
	}
	return &cp, nil
}

// Save writes the checkpoint of the partition into the pipeline hash.
func (s *Store) Save(ctx context.Context, partitionIdx int32, cp *checkpoint.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint for partition %d: %w", partitionIdx, err)
	}
	if err := s.client.HSet(ctx, s.key(), fmt.Sprintf("%d", partitionIdx), data).Err(); err != nil {
		return fmt.Errorf("failed to save checkpoint for partition %d: %w", partitionIdx, err)
	}
	return nil
}

// Close shuts the client down.
func (s *Store) Close() error {
	return s.client.Close()
}
