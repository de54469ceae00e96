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

// Package redis is a Redis backed sink. SET with a deterministic key gives
// the overwrite semantics the at-least-once contract requires.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
)

const keyPrefix = "rbdp"

// Sink writes records to Redis.
type Sink struct {
	client redis.UniversalClient
	// ttl bounds retention; zero means keep forever.
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// Option customizes a Sink.
type Option func(*Sink) error

// WithTTL bounds how long records are retained.
func WithTTL(ttl time.Duration) Option {
	return func(s *Sink) error {
		s.ttl = ttl
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Sink) error {
		s.logger = log
		return nil
	}
}

// NewSink returns a Sink backed by the given Redis endpoints.
func NewSink(addrs []string, opts ...Option) (*Sink, error) {
	s := &Sink{
		client: redis.NewUniversalClient(&redis.UniversalOptions{Addrs: addrs}),
	}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	if s.logger == nil {
		s.logger = logging.NewLogger()
	}
	s.logger = s.logger.With("sinkType", "redis")
	return s, nil
}

// GetName returns the sink name.
func (s *Sink) GetName() string {
	return "redis"
}

// Upsert stores the record under "rbdp:<recordType>:<key>".
func (s *Sink) Upsert(ctx context.Context, recordType sink.RecordType, key string, value []byte) error {
	redisKey := fmt.Sprintf("%s:%s:%s", keyPrefix, recordType, key)
	if err := s.client.Set(ctx, redisKey, value, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", redisKey, err)
	}
	return nil
}

// Close shuts the client down.
func (s *Sink) Close() error {
	return s.client.Close()
}
