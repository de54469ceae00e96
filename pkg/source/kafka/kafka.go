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

// Package kafka reads one Kafka topic partition as a source partition.
// Offsets are the Kafka partition offsets, checkpointing is owned by the
// engine, not by a consumer group.
package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
)

// Reader consumes a single topic partition.
type Reader struct {
	name         string
	topic        string
	partitionIdx int32
	readTimeout  time.Duration

	client   sarama.Client
	consumer sarama.Consumer

	// mu guards pc and nextOffset. nextOffset is where a recreated
	// partition consumer resumes, one past the last delivered record.
	mu         sync.Mutex
	pc         sarama.PartitionConsumer
	nextOffset int64

	logger *zap.SugaredLogger
}

// Option customizes a Reader.
type Option func(*Reader) error

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(r *Reader) error {
		r.logger = log
		return nil
	}
}

// WithReadTimeout sets how long Read blocks waiting for records when the
// partition is idle.
func WithReadTimeout(t time.Duration) Option {
	return func(r *Reader) error {
		r.readTimeout = t
		return nil
	}
}

// NewReader returns a Reader bound to one topic partition, starting at
// resumeOffset. A negative resumeOffset starts at the oldest retained
// record.
func NewReader(brokers []string, topic string, partitionIdx int32, resumeOffset int64, opts ...Option) (*Reader, error) {
	r := &Reader{
		name:         fmt.Sprintf("kafka-%s-%d", topic, partitionIdx),
		topic:        topic,
		partitionIdx: partitionIdx,
		readTimeout:  time.Second,
	}
	for _, o := range opts {
		if err := o(r); err != nil {
			return nil, err
		}
	}
	if r.logger == nil {
		r.logger = logging.NewLogger()
	}
	r.logger = r.logger.With("source", "kafka").With("topic", topic).With("partition", partitionIdx)

	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	client, err := sarama.NewClient(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	r.client = client
	r.consumer = consumer

	start := resumeOffset
	if start < 0 {
		start = sarama.OffsetOldest
	}
	pc, err := consumer.ConsumePartition(topic, partitionIdx, start)
	if err != nil {
		_ = consumer.Close()
		_ = client.Close()
		return nil, fmt.Errorf("failed to consume partition %d of %s: %w", partitionIdx, topic, err)
	}
	r.pc = pc
	r.nextOffset = start
	return r, nil
}

// GetName returns the reader name.
func (r *Reader) GetName() string {
	return r.name
}

// GetPartitionIdx returns the partition this reader serves.
func (r *Reader) GetPartitionIdx() int32 {
	return r.partitionIdx
}

// Read returns up to count records, waiting up to the read timeout for the
// first one. Broker errors surface as source.ErrUnavailable so the engine
// backs off and retries the read step. When the partition consumer's channels
// close, a new one is opened at the next undelivered offset so the reader
// heals after a broker restart.
func (r *Reader) Read(ctx context.Context, count int64) ([]*source.Record, error) {
	r.mu.Lock()
	pc := r.pc
	r.mu.Unlock()

	var batch []*source.Record
	timeout := time.After(r.readTimeout)
	for int64(len(batch)) < count {
		select {
		case <-ctx.Done():
			return batch, nil
		case <-timeout:
			return batch, nil
		case err, ok := <-pc.Errors():
			if !ok {
				return batch, r.reopen()
			}
			if err != nil {
				r.logger.Errorw("Kafka partition consumer error", zap.Error(err))
				return batch, fmt.Errorf("%w: %v", source.ErrUnavailable, err)
			}
		case msg, ok := <-pc.Messages():
			if !ok {
				return batch, r.reopen()
			}
			r.mu.Lock()
			r.nextOffset = msg.Offset + 1
			r.mu.Unlock()
			batch = append(batch, &source.Record{
				Payload: msg.Value,
				Offset:  source.NewOffset(msg.Offset, r.partitionIdx),
			})
		}
	}
	return batch, nil
}

// reopen replaces a dead partition consumer, resuming at the next
// undelivered offset.
func (r *Reader) reopen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pc, err := r.consumer.ConsumePartition(r.topic, r.partitionIdx, r.nextOffset)
	if err != nil {
		return fmt.Errorf("%w: reopen at %d: %v", source.ErrUnavailable, r.nextOffset, err)
	}
	r.logger.Infow("Reopened partition consumer", "offset", r.nextOffset)
	r.pc = pc
	return nil
}

// Seek recreates the partition consumer at the given offset.
func (r *Reader) Seek(_ context.Context, seq int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pc.Close(); err != nil {
		r.logger.Errorw("Failed to close partition consumer for seek", zap.Error(err))
	}
	pc, err := r.consumer.ConsumePartition(r.topic, r.partitionIdx, seq)
	if err != nil {
		return fmt.Errorf("%w: seek to %d: %v", source.ErrUnavailable, seq, err)
	}
	r.pc = pc
	r.nextOffset = seq
	return nil
}

// Close shuts the consumer down.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pc.Close(); err != nil {
		r.logger.Errorw("Failed to close partition consumer", zap.Error(err))
	}
	if err := r.consumer.Close(); err != nil {
		return err
	}
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
