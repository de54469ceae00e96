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

// Package checkpoint persists per-partition progress. A checkpoint is
// written only after the batch it covers is fully durable, so replaying
// from the stored offset re-produces at most already-upserted records.
package checkpoint

import (
	"context"
	"io"
	"time"
)

// Checkpoint is the durable progress marker of one partition.
type Checkpoint struct {
	// Offset is the source sequence up to which events have been
	// fully processed. Reading resumes at Offset+1.
	Offset int64 `json:"offset"`
	// Watermark is the partition watermark at checkpoint time.
	Watermark time.Time `json:"watermark"`
}

// Store loads and saves partition checkpoints.
type Store interface {
	io.Closer
	// Load returns the checkpoint of the partition, or (nil, nil) when
	// the partition has never checkpointed.
	Load(ctx context.Context, partitionIdx int32) (*Checkpoint, error)
	// Save persists the checkpoint of the partition.
	Save(ctx context.Context, partitionIdx int32, cp *Checkpoint) error
}
