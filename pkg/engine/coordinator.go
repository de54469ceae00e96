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

// Package engine runs the streaming aggregation and alerting pipeline: one
// sequential worker per source partition, a shared idempotent sink and a
// shared notifier. Partitions share no mutable state, a partition failure
// never cancels its siblings.
package engine

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/notify"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/window"
)

// Coordinator fans the partition readers out to workers and waits for them.
type Coordinator struct {
	pipeline string
	workers  []*worker
}

// NewCoordinator returns a Coordinator running one worker per reader.
// The sinker, notifier and checkpoint store are shared across workers and
// must be safe for concurrent use.
func NewCoordinator(ctx context.Context, pipeline string, readers []source.Reader,
	sinker sink.Sinker, notifier notify.Notifier, cpStore checkpoint.Store,
	windower *window.Sliding, evaluator *alert.Evaluator, opts ...Option) *Coordinator {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	logger := logging.FromContext(ctx).With("pipeline", pipeline)
	c := &Coordinator{pipeline: pipeline}
	for _, r := range readers {
		c.workers = append(c.workers, newWorker(pipeline, r, sinker, notifier, cpStore, windower, evaluator, o, logger))
	}
	return c
}

// Run blocks until every worker has stopped. Workers stop on context
// cancellation, finishing their in-flight batch first, or individually on a
// checkpoint store failure. A failed partition does not stop the others.
func (c *Coordinator) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for _, w := range c.workers {
		w := w
		g.Go(func() error {
			return w.run(ctx)
		})
	}
	return g.Wait()
}

// GlobalWatermark returns the minimum watermark across all partitions, the
// engine wide lower bound on fully processed event time. It is the zero time
// until every partition has observed at least one event.
func (c *Coordinator) GlobalWatermark() time.Time {
	var min time.Time
	for i, w := range c.workers {
		wm := w.currentWatermark()
		if wm.IsZero() {
			return time.Time{}
		}
		if i == 0 || wm.Before(min) {
			min = wm
		}
	}
	return min
}
