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

// Package source defines the event source consumed by the engine: a durable
// ordered stream of serialized events, partitioned by key. Offsets are
// opaque monotonic cursors used only for checkpointing.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrUnavailable marks a transient source failure. The read step backs off
// and retries indefinitely with a capped interval, there is no safe
// alternative to waiting for the source to come back.
var ErrUnavailable = errors.New("source unavailable")

// Offset is an opaque monotonic cursor into a partition of the stream.
type Offset interface {
	// String returns the offset identifier.
	String() string
	// Sequence returns the position usable to resume reading.
	Sequence() int64
	// PartitionIdx returns the partition the offset belongs to.
	PartitionIdx() int32
}

// Record is a raw serialized payload together with its offset.
type Record struct {
	Payload []byte
	Offset  Offset
}

// Reader reads one partition of the event stream in source order.
type Reader interface {
	io.Closer
	// GetName returns the reader name.
	GetName() string
	// GetPartitionIdx returns the partition this reader is bound to.
	GetPartitionIdx() int32
	// Read returns up to count records, blocking up to the reader's poll
	// interval when the stream is idle. An empty result with a nil error
	// means the stream is idle.
	Read(ctx context.Context, count int64) ([]*Record, error)
	// Seek repositions the cursor to the given sequence so that a failed
	// batch can be re-read from the last committed checkpoint.
	Seek(ctx context.Context, seq int64) error
}

// simpleOffset is an integer sequence plus partition index.
type simpleOffset struct {
	seq          int64
	partitionIdx int32
}

// NewOffset returns an Offset for a sequence number within a partition.
func NewOffset(seq int64, partitionIdx int32) Offset {
	return &simpleOffset{seq: seq, partitionIdx: partitionIdx}
}

func (s *simpleOffset) String() string {
	return fmt.Sprintf("%d-%d", s.seq, s.partitionIdx)
}

func (s *simpleOffset) Sequence() int64 {
	return s.seq
}

func (s *simpleOffset) PartitionIdx() int32 {
	return s.partitionIdx
}
