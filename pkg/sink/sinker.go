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

// Package sink defines the idempotent, append-only persistent store the
// engine emits finalized records to. Repeated writes of the same logical
// record converge to one stored value, which is what makes at-least-once
// delivery safe.
package sink

import (
	"context"
	"io"
)

// RecordType distinguishes the record families written by the engine.
type RecordType string

const (
	// RecordTypeWindowAggregate keys finalized window aggregates by
	// (key fields, window start, window end).
	RecordTypeWindowAggregate RecordType = "window_aggregate"
	// RecordTypeRawEvent keys validated raw events by event date and id.
	RecordTypeRawEvent RecordType = "raw_event"
)

// Sinker is shared across all partition workers and must be safe for
// concurrent writes. Upsert MUST be idempotent on (recordType, key).
type Sinker interface {
	io.Closer
	// GetName returns the sink name.
	GetName() string
	// Upsert writes a record with overwrite semantics.
	Upsert(ctx context.Context, recordType RecordType, key string, value []byte) error
}
