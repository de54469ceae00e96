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

// Package logsink prints records to the log, used for local runs.
package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
)

// Sink logs every upsert.
type Sink struct {
	logger *zap.SugaredLogger
}

// NewSink returns a Sink logging through the context logger.
func NewSink(ctx context.Context) *Sink {
	return &Sink{logger: logging.FromContext(ctx).With("sinkType", "log")}
}

// GetName returns the sink name.
func (s *Sink) GetName() string {
	return "log"
}

// Upsert logs the record.
func (s *Sink) Upsert(_ context.Context, recordType sink.RecordType, key string, value []byte) error {
	s.logger.Infow("Upsert", "recordType", string(recordType), "key", key, "value", string(value))
	return nil
}

// Close is a no-op.
func (s *Sink) Close() error {
	return nil
}
