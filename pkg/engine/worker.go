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

package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/event"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/notify"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/watermark"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/window"
)

// ErrCheckpointStore marks a checkpoint store failure. It halts the affected
// partition, processing without a recoverable checkpoint would break replay.
var ErrCheckpointStore = errors.New("checkpoint store failure")

// worker owns one partition end to end: read, validate, alert, accumulate,
// finalize, checkpoint. All state mutation happens on its single goroutine.
type worker struct {
	pipeline     string
	partitionIdx int32

	reader    source.Reader
	validator *event.Validator
	windower  *window.Sliding
	evaluator *alert.Evaluator
	sinker    sink.Sinker
	notifier  notify.Notifier
	cpStore   checkpoint.Store

	accumulator *window.Accumulator
	// mu guards tracker, which is replaced wholesale on a batch failure
	// reset and read concurrently by GlobalWatermark.
	mu      sync.RWMutex
	tracker *watermark.Tracker

	opts   *options
	logger *zap.SugaredLogger

	// labels for the partition scoped metrics.
	labels map[string]string
}

func newWorker(pipeline string, reader source.Reader, sinker sink.Sinker, notifier notify.Notifier,
	cpStore checkpoint.Store, windower *window.Sliding, evaluator *alert.Evaluator,
	opts *options, logger *zap.SugaredLogger) *worker {
	partitionIdx := reader.GetPartitionIdx()
	return &worker{
		pipeline:     pipeline,
		partitionIdx: partitionIdx,
		reader:       reader,
		validator:    event.NewValidator(),
		windower:     windower,
		evaluator:    evaluator,
		sinker:       sinker,
		notifier:     notifier,
		cpStore:      cpStore,
		accumulator:  window.NewAccumulator(),
		tracker:      watermark.NewTracker(opts.allowedLateness),
		opts:         opts,
		logger: logger.With("partition", partitionIdx).
			With("sourceName", reader.GetName()),
		labels: map[string]string{
			"pipeline":  pipeline,
			"partition": strconv.Itoa(int(partitionIdx)),
		},
	}
}

// run drives the partition loop until the context is cancelled or the
// checkpoint store fails. The in-flight batch is always finished before
// shutdown, leaving a consistent checkpoint behind.
func (w *worker) run(ctx context.Context) error {
	if err := w.restore(ctx, false); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		w.logger.Errorw("Failed to restore partition state", zap.Error(err))
		return err
	}
	w.logger.Info("Partition worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Partition worker stopped")
			return nil
		default:
		}
		batch, err := w.readBatch(ctx)
		if err != nil {
			// only context errors surface from readBatch
			continue
		}
		if len(batch) == 0 {
			continue
		}
		if err := w.processBatch(ctx, batch); err != nil {
			if errors.Is(err, ErrCheckpointStore) {
				w.logger.Errorw("Halting partition", zap.Error(err))
				return err
			}
			if ctx.Err() != nil {
				continue
			}
			batchFailuresCount.With(w.labels).Inc()
			w.logger.Errorw("Batch failed, replaying from last checkpoint", zap.Error(err))
			if rerr := w.restore(ctx, true); rerr != nil {
				if ctx.Err() != nil {
					continue
				}
				w.logger.Errorw("Failed to reset partition state", zap.Error(rerr))
				return rerr
			}
		}
	}
}

// restore rebuilds the in-memory state from the last checkpoint. With seek
// set the reader is also repositioned, used after a failed batch; at startup
// the reader is assumed to already sit at its resume position unless a
// checkpoint says otherwise.
func (w *worker) restore(ctx context.Context, seek bool) error {
	w.accumulator = window.NewAccumulator()
	tracker := watermark.NewTracker(w.opts.allowedLateness)

	cp, err := w.cpStore.Load(ctx, w.partitionIdx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointStore, err)
	}
	if cp == nil {
		if seek {
			if err := w.seekWithRetry(ctx, 0); err != nil {
				return fmt.Errorf("failed to seek partition %d to head: %w", w.partitionIdx, err)
			}
		}
		w.swapTracker(tracker)
		return nil
	}
	tracker.Restore(cp.Watermark)
	if err := w.seekWithRetry(ctx, cp.Offset+1); err != nil {
		return fmt.Errorf("failed to seek partition %d to offset %d: %w", w.partitionIdx, cp.Offset+1, err)
	}
	w.swapTracker(tracker)
	w.logger.Infow("Restored partition state", "offset", cp.Offset, "watermark", cp.Watermark)
	return nil
}

func (w *worker) swapTracker(t *watermark.Tracker) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tracker = t
}

// currentWatermark is safe to call from other goroutines.
func (w *worker) currentWatermark() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tracker.CurrentWatermark()
}

// readBatch reads the next batch, retrying indefinitely with a capped wait
// while the source is unavailable. There is no safe alternative to waiting.
// A partial batch handed back alongside an error has already been consumed
// from the source and is returned for processing; the error itself resurfaces
// on the next, empty read.
func (w *worker) readBatch(ctx context.Context) ([]*source.Record, error) {
	delay := w.initialRetryWait()
	for {
		batch, err := w.reader.Read(ctx, w.opts.readBatchSize)
		if len(batch) > 0 {
			if err != nil {
				w.logger.Warnw("Read error after partial batch, processing delivered records", "records", len(batch), zap.Error(err))
			}
			return batch, nil
		}
		if err == nil {
			return nil, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, source.ErrUnavailable) {
			w.logger.Warnw("Source unavailable, backing off", "wait", delay, zap.Error(err))
		} else {
			w.logger.Errorw("Failed to read from source, backing off", "wait", delay, zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > w.opts.unavailableRetryWait {
			delay = w.opts.unavailableRetryWait
		}
	}
}

// seekWithRetry repositions the reader, retrying indefinitely with the same
// capped wait as readBatch. Source unavailability during recovery is as
// transient as during a read and must not halt the partition.
func (w *worker) seekWithRetry(ctx context.Context, seq int64) error {
	delay := w.initialRetryWait()
	for {
		err := w.reader.Seek(ctx, seq)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.logger.Warnw("Failed to seek source, backing off", "offset", seq, "wait", delay, zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > w.opts.unavailableRetryWait {
			delay = w.opts.unavailableRetryWait
		}
	}
}

func (w *worker) initialRetryWait() time.Duration {
	if w.opts.unavailableRetryWait < time.Second {
		return w.opts.unavailableRetryWait
	}
	return time.Second
}

// processBatch runs one batch through the full pipeline and checkpoints it.
// Any returned error other than ErrCheckpointStore means the batch must be
// replayed from the last checkpoint.
func (w *worker) processBatch(ctx context.Context, batch []*source.Record) error {
	for _, rec := range batch {
		readEventsCount.With(w.labels).Inc()
		e, err := w.validator.Validate(rec.Payload)
		if err != nil {
			w.countRejected(err)
			continue
		}
		if err := w.handleEvent(ctx, e); err != nil {
			return err
		}
	}
	if err := w.finalize(ctx); err != nil {
		return err
	}

	cp := &checkpoint.Checkpoint{
		Offset:    batch[len(batch)-1].Offset.Sequence(),
		Watermark: w.tracker.CurrentWatermark(),
	}
	if err := w.cpStore.Save(ctx, w.partitionIdx, cp); err != nil {
		return fmt.Errorf("%w: %v", ErrCheckpointStore, err)
	}
	checkpointsCount.With(w.labels).Inc()
	activeWindowsGauge.With(w.labels).Set(float64(w.accumulator.Len()))
	if !cp.Watermark.IsZero() {
		watermarkGauge.With(w.labels).Set(float64(cp.Watermark.UnixMilli()))
	}
	return nil
}

func (w *worker) countRejected(err error) {
	reason := "UNKNOWN"
	var verr *event.ValidationError
	if errors.As(err, &verr) {
		reason = string(verr.Reason)
	}
	labels := map[string]string{}
	for k, v := range w.labels {
		labels[k] = v
	}
	labels["reason"] = reason
	rejectedEventsCount.With(labels).Inc()
	w.logger.Debugw("Rejected record", "reason", reason, zap.Error(err))
}

// handleEvent runs one validated event through the alerting, persistence and
// aggregation paths. Late events still alert and are persisted, they are only
// excluded from window aggregation.
func (w *worker) handleEvent(ctx context.Context, e *event.Event) error {
	if a := w.evaluator.Evaluate(e); a != nil {
		if err := w.publishAlert(ctx, a); err != nil {
			return err
		}
	}

	data, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
	}
	rawKey := e.DateKey() + "/" + e.ID
	if err := w.upsert(ctx, sink.RecordTypeRawEvent, rawKey, data); err != nil {
		return err
	}

	if w.tracker.IsLate(e.EventTime) {
		droppedLateEventsCount.With(w.labels).Inc()
		w.logger.Debugw("Dropped late event from aggregation", "eventID", e.ID, "eventTime", e.EventTime)
		return nil
	}
	w.tracker.Observe(e.EventTime)
	for _, iw := range w.windower.AssignWindows(e.EventTime) {
		w.accumulator.Fold(window.NewID(iw, e.KeyFields()), e)
	}
	return nil
}

// finalize emits every window that can no longer receive events: its end
// plus the allowed lateness is at or behind the watermark. A window is
// removed before emission and never re-created, so each window is emitted
// exactly once per run.
func (w *worker) finalize(ctx context.Context) error {
	wm := w.tracker.CurrentWatermark()
	if wm.IsZero() {
		return nil
	}
	cutoff := wm.Add(-w.opts.allowedLateness)
	for _, st := range w.accumulator.RemoveExpired(cutoff) {
		rec := window.BuildRecord(st.ID, st.Aggregate, w.opts.suspiciousFrequency)
		data, err := rec.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal window %s: %w", st.ID, err)
		}
		if err := w.upsert(ctx, sink.RecordTypeWindowAggregate, st.ID.String(), data); err != nil {
			return err
		}
		finalizedWindowsCount.With(w.labels).Inc()
		w.logger.Infow("Finalized window", "window", st.ID.String(), "count", st.Aggregate.Count)
	}
	return nil
}

func (w *worker) publishAlert(ctx context.Context, a *alert.Alert) error {
	err := w.withRetry(ctx, func() error {
		return w.notifier.Publish(ctx, a)
	}, notifierErrors)
	if err != nil {
		return fmt.Errorf("failed to publish alert %s/%s: %w", a.SourceEventID, a.AlertType, err)
	}
	labels := map[string]string{}
	for k, v := range w.labels {
		labels[k] = v
	}
	labels["alert_type"] = string(a.AlertType)
	alertsCount.With(labels).Inc()
	return nil
}

func (w *worker) upsert(ctx context.Context, recordType sink.RecordType, key string, value []byte) error {
	err := w.withRetry(ctx, func() error {
		return w.sinker.Upsert(ctx, recordType, key, value)
	}, sinkWriteErrors)
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", recordType, key, err)
	}
	return nil
}

// withRetry runs op under the bounded retry backoff. Exhaustion returns the
// last error from op.
func (w *worker) withRetry(ctx context.Context, op func() error, errCounter *prometheus.CounterVec) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, w.opts.retryBackoff, func(_ context.Context) (bool, error) {
		if opErr := op(); opErr != nil {
			lastErr = opErr
			errCounter.With(w.labels).Inc()
			w.logger.Warnw("Retryable operation failed", zap.Error(opErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}
