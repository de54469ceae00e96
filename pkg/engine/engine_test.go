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
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
	cpinmem "github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint/inmem"
	ntinmem "github.com/fidelfunez/RegionalBankDataPlatform/pkg/notify/inmem"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
	skinmem "github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink/inmem"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
	srcinmem "github.com/fidelfunez/RegionalBankDataPlatform/pkg/source/inmem"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/window"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var baseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func txnPayload(t *testing.T, id string, amount float64, eventTime time.Time) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"event_id":         id,
		"event_type":       "TRANSACTION",
		"country_code":     "KE",
		"transaction_type": "DISBURSEMENT",
		"amount":           amount,
		"currency":         "USD",
		"event_time":       eventTime.Format(time.RFC3339),
		"status":           "SUCCESS",
	})
	require.NoError(t, err)
	return payload
}

type fixture struct {
	reader   *srcinmem.Reader
	sinker   *skinmem.Sink
	notifier *ntinmem.Notifier
	cpStore  *cpinmem.Store
	coord    *Coordinator
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		reader:   srcinmem.NewReader("in", 0, 0, 10*time.Millisecond),
		sinker:   skinmem.NewSink(),
		notifier: ntinmem.NewNotifier(),
		cpStore:  cpinmem.NewStore(),
	}
	windower, err := window.NewSliding(2*time.Minute, time.Minute)
	require.NoError(t, err)
	evaluator := alert.NewEvaluator(100000, 50000)
	opts = append([]Option{
		WithAllowedLateness(time.Minute),
		WithRetryBackoff(wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 2.0}),
	}, opts...)
	f.coord = NewCoordinator(context.Background(), "test-pipeline",
		[]source.Reader{f.reader}, f.sinker, f.notifier, f.cpStore, windower, evaluator, opts...)
	return f
}

// start runs the coordinator in the background and returns a stop function
// that cancels it and waits for a clean exit.
func start(t *testing.T, coord *Coordinator) (func() error, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- coord.Run(ctx)
	}()
	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return errors.New("coordinator did not stop")
		}
	}
	return stop, cancel
}

func TestWindowEmission_ExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.reader.Append(
		txnPayload(t, "e1", 10, baseTime.Add(10*time.Second)),
		txnPayload(t, "e2", 20, baseTime.Add(20*time.Second)),
		txnPayload(t, "e3", 30, baseTime.Add(40*time.Second)),
		// advances the watermark far enough to finalize the first windows
		txnPayload(t, "e4", 5, baseTime.Add(10*time.Minute)),
	)
	stop, _ := start(t, f.coord)

	assert.Eventually(t, func() bool {
		return f.sinker.Len(sink.RecordTypeWindowAggregate) == 2
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	slot := "TRANSACTION:KE:DISBURSEMENT"
	id := window.ID{Start: baseTime, End: baseTime.Add(2 * time.Minute), Slot: slot}
	value, ok := f.sinker.Get(sink.RecordTypeWindowAggregate, id.String())
	require.True(t, ok)
	var rec window.Record
	require.NoError(t, json.Unmarshal(value, &rec))
	assert.Equal(t, int64(3), rec.Count)
	assert.Equal(t, float64(60), rec.Sum)
	assert.Equal(t, float64(20), rec.Avg)
	assert.Equal(t, float64(10), rec.Min)
	assert.Equal(t, float64(30), rec.Max)

	// each finalized window is written exactly once
	for _, key := range f.sinker.Keys(sink.RecordTypeWindowAggregate) {
		assert.Equal(t, 1, f.sinker.Writes(sink.RecordTypeWindowAggregate, key), key)
	}
	// every validated event is persisted raw
	assert.Equal(t, 4, f.sinker.Len(sink.RecordTypeRawEvent))
	assert.GreaterOrEqual(t, f.cpStore.Saves(), 1)
}

func TestBatchReplay_ConvergesAfterSinkOutage(t *testing.T) {
	f := newFixture(t)
	// more failures than the retry budget, so the first batch aborts and is
	// replayed from the (empty) checkpoint
	f.sinker.FailNext(4)
	f.reader.Append(
		txnPayload(t, "e1", 10, baseTime.Add(10*time.Second)),
		txnPayload(t, "e2", 20, baseTime.Add(20*time.Second)),
		txnPayload(t, "e4", 5, baseTime.Add(10*time.Minute)),
	)
	stop, _ := start(t, f.coord)

	assert.Eventually(t, func() bool {
		return f.sinker.Len(sink.RecordTypeWindowAggregate) == 2
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	id := window.ID{Start: baseTime, End: baseTime.Add(2 * time.Minute), Slot: "TRANSACTION:KE:DISBURSEMENT"}
	value, ok := f.sinker.Get(sink.RecordTypeWindowAggregate, id.String())
	require.True(t, ok)
	var rec window.Record
	require.NoError(t, json.Unmarshal(value, &rec))
	// the replay re-folds the same events, the emitted aggregate is unchanged
	assert.Equal(t, int64(2), rec.Count)
	assert.Equal(t, float64(30), rec.Sum)
}

func TestLateEvent_DroppedFromAggregationStillAlerts(t *testing.T) {
	f := newFixture(t)
	f.reader.Append(
		txnPayload(t, "e1", 10, baseTime.Add(10*time.Second)),
		txnPayload(t, "e2", 5, baseTime.Add(5*time.Minute)),
		// behind the watermark (12:04) and negative
		txnPayload(t, "late", -50, baseTime.Add(time.Minute)),
	)
	stop, _ := start(t, f.coord)

	assert.Eventually(t, func() bool {
		return len(f.notifier.Alerts()) == 1 && f.sinker.Len(sink.RecordTypeRawEvent) == 3
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	a := f.notifier.Alerts()[0]
	assert.Equal(t, alert.TypeNegativeAmount, a.AlertType)
	assert.Equal(t, "late", a.SourceEventID)

	id := window.ID{Start: baseTime, End: baseTime.Add(2 * time.Minute), Slot: "TRANSACTION:KE:DISBURSEMENT"}
	value, ok := f.sinker.Get(sink.RecordTypeWindowAggregate, id.String())
	require.True(t, ok)
	var rec window.Record
	require.NoError(t, json.Unmarshal(value, &rec))
	// the late event is excluded from the window it would have joined
	assert.Equal(t, int64(1), rec.Count)
	assert.Equal(t, float64(10), rec.Sum)
}

func TestNotifierRetry_TransientFailureRecovers(t *testing.T) {
	f := newFixture(t)
	f.notifier.FailNext(1)
	f.reader.Append(
		txnPayload(t, "big", 150000, baseTime.Add(10*time.Second)),
	)
	stop, _ := start(t, f.coord)

	assert.Eventually(t, func() bool {
		return len(f.notifier.Alerts()) == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	a := f.notifier.Alerts()[0]
	assert.Equal(t, alert.TypeHighValue, a.AlertType)
	assert.Equal(t, alert.SeverityCritical, a.Severity)
}

func TestMalformedRecordsAreDroppedNotFatal(t *testing.T) {
	f := newFixture(t)
	f.reader.Append(
		[]byte("{not json"),
		[]byte(`{"event_type":"TRANSACTION","amount":1,"event_time":"2024-05-01T12:00:00Z"}`), // no id
		txnPayload(t, "ok", 10, baseTime.Add(10*time.Second)),
	)
	stop, _ := start(t, f.coord)

	assert.Eventually(t, func() bool {
		return f.sinker.Len(sink.RecordTypeRawEvent) == 1
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
	assert.Empty(t, f.notifier.Alerts())
}

func TestCheckpointStoreFailureHaltsPartition(t *testing.T) {
	f := newFixture(t)
	f.cpStore.FailNext()
	stop, _ := start(t, f.coord)

	// the worker fails to restore before reading anything and halts on its own
	err := stop()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCheckpointStore), err)
}

func TestGlobalWatermark_MinimumAcrossPartitions(t *testing.T) {
	readers := []*srcinmem.Reader{
		srcinmem.NewReader("in-0", 0, 0, 10*time.Millisecond),
		srcinmem.NewReader("in-1", 1, 0, 10*time.Millisecond),
	}
	sinker := skinmem.NewSink()
	notifier := ntinmem.NewNotifier()
	cpStore := cpinmem.NewStore()
	windower, err := window.NewSliding(2*time.Minute, time.Minute)
	require.NoError(t, err)
	coord := NewCoordinator(context.Background(), "test-pipeline",
		[]source.Reader{readers[0], readers[1]}, sinker, notifier, cpStore, windower,
		alert.NewEvaluator(100000, 50000),
		WithAllowedLateness(time.Minute),
		WithRetryBackoff(wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 2.0}))

	// zero until every partition has observed an event
	assert.True(t, coord.GlobalWatermark().IsZero())

	stop, _ := start(t, coord)
	readers[0].Append(txnPayload(t, "p0", 10, baseTime.Add(10*time.Minute)))
	readers[1].Append(txnPayload(t, "p1", 10, baseTime.Add(2*time.Minute)))

	want := baseTime.Add(2 * time.Minute).Add(-time.Minute)
	assert.Eventually(t, func() bool {
		return coord.GlobalWatermark().Equal(want)
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

func TestSourceOutage_ReadRetriesUntilRecovery(t *testing.T) {
	f := newFixture(t, WithUnavailableRetryWait(20*time.Millisecond))
	f.reader.SetUnavailable(true)
	f.reader.Append(txnPayload(t, "e1", 10, baseTime.Add(10*time.Second)))
	stop, _ := start(t, f.coord)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.sinker.Len(sink.RecordTypeRawEvent))
	f.reader.SetUnavailable(false)

	assert.Eventually(t, func() bool {
		return f.sinker.Len(sink.RecordTypeRawEvent) == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())
}

// scriptedReader serves pre-programmed read results, then idles. It mimics a
// source that hands back already-consumed records together with an error.
type scriptedRead struct {
	batch []*source.Record
	err   error
}

type scriptedReader struct {
	mu    sync.Mutex
	reads []scriptedRead
}

func (r *scriptedReader) GetName() string          { return "scripted" }
func (r *scriptedReader) GetPartitionIdx() int32   { return 0 }
func (r *scriptedReader) Close() error             { return nil }
func (r *scriptedReader) Seek(context.Context, int64) error { return nil }

func (r *scriptedReader) Read(ctx context.Context, _ int64) ([]*source.Record, error) {
	r.mu.Lock()
	if len(r.reads) > 0 {
		next := r.reads[0]
		r.reads = r.reads[1:]
		r.mu.Unlock()
		return next.batch, next.err
	}
	r.mu.Unlock()
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
	return nil, nil
}

func TestPartialBatchWithReadError_NoRecordLost(t *testing.T) {
	// records delivered alongside a read error are already consumed from the
	// source and will not be redelivered, they must be processed, not dropped
	reader := &scriptedReader{reads: []scriptedRead{
		{
			batch: []*source.Record{{
				Payload: txnPayload(t, "first", 10, baseTime.Add(10*time.Second)),
				Offset:  source.NewOffset(0, 0),
			}},
			err: fmt.Errorf("%w: broker gone", source.ErrUnavailable),
		},
		{
			batch: []*source.Record{{
				Payload: txnPayload(t, "second", 20, baseTime.Add(20*time.Second)),
				Offset:  source.NewOffset(1, 0),
			}},
		},
	}}
	sinker := skinmem.NewSink()
	notifier := ntinmem.NewNotifier()
	cpStore := cpinmem.NewStore()
	windower, err := window.NewSliding(2*time.Minute, time.Minute)
	require.NoError(t, err)
	coord := NewCoordinator(context.Background(), "test-pipeline",
		[]source.Reader{reader}, sinker, notifier, cpStore, windower,
		alert.NewEvaluator(100000, 50000),
		WithAllowedLateness(time.Minute),
		WithUnavailableRetryWait(5*time.Millisecond),
		WithRetryBackoff(wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 2.0}))
	stop, _ := start(t, coord)

	assert.Eventually(t, func() bool {
		return sinker.Len(sink.RecordTypeRawEvent) == 2
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	_, ok := sinker.Get(sink.RecordTypeRawEvent, "2024/05/01/first")
	assert.True(t, ok, "record delivered alongside the read error must be persisted")
	_, ok = sinker.Get(sink.RecordTypeRawEvent, "2024/05/01/second")
	assert.True(t, ok)

	// the checkpoint only advanced past fully processed records
	cp, err := cpStore.Load(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(1), cp.Offset)
}

// flakySeekReader fails the first few repositions, the way a kafka reader
// does when the broker is briefly unreachable during recovery.
type flakySeekReader struct {
	*srcinmem.Reader
	mu       sync.Mutex
	failures int
}

func (r *flakySeekReader) Seek(ctx context.Context, seq int64) error {
	r.mu.Lock()
	if r.failures > 0 {
		r.failures--
		r.mu.Unlock()
		return fmt.Errorf("%w: transient", source.ErrUnavailable)
	}
	r.mu.Unlock()
	return r.Reader.Seek(ctx, seq)
}

func TestSeekFailureDuringReplay_RetriedNotFatal(t *testing.T) {
	reader := &flakySeekReader{
		Reader:   srcinmem.NewReader("in", 0, 0, 10*time.Millisecond),
		failures: 2,
	}
	sinker := skinmem.NewSink()
	notifier := ntinmem.NewNotifier()
	cpStore := cpinmem.NewStore()
	windower, err := window.NewSliding(2*time.Minute, time.Minute)
	require.NoError(t, err)
	coord := NewCoordinator(context.Background(), "test-pipeline",
		[]source.Reader{reader}, sinker, notifier, cpStore, windower,
		alert.NewEvaluator(100000, 50000),
		WithAllowedLateness(time.Minute),
		WithUnavailableRetryWait(5*time.Millisecond),
		WithRetryBackoff(wait.Backoff{Steps: 3, Duration: time.Millisecond, Factor: 2.0}))

	// exhaust the sink retry budget so the first batch is replayed, which
	// repositions the reader through the flaky Seek
	sinker.FailNext(4)
	reader.Append(
		txnPayload(t, "e1", 10, baseTime.Add(10*time.Second)),
		txnPayload(t, "e2", 20, baseTime.Add(20*time.Second)),
		txnPayload(t, "e3", 5, baseTime.Add(10*time.Minute)),
	)
	stop, _ := start(t, coord)

	assert.Eventually(t, func() bool {
		return sinker.Len(sink.RecordTypeWindowAggregate) == 2
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	reader.mu.Lock()
	assert.Zero(t, reader.failures)
	reader.mu.Unlock()
	assert.Equal(t, 3, sinker.Len(sink.RecordTypeRawEvent))
}

func TestAlertStream_MixedBatchAlertCount(t *testing.T) {
	f := newFixture(t)
	f.reader.Append(
		txnPayload(t, "small", 50, baseTime.Add(10*time.Second)),
		txnPayload(t, "big", 150000, baseTime.Add(20*time.Second)),
		txnPayload(t, "neg", -20, baseTime.Add(30*time.Second)),
	)
	stop, _ := start(t, f.coord)

	assert.Eventually(t, func() bool {
		return f.sinker.Len(sink.RecordTypeRawEvent) == 3
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	// exactly two of the three events alert
	alerts := f.notifier.Alerts()
	require.Len(t, alerts, 2)
	byID := make(map[string]alert.Type, len(alerts))
	for _, a := range alerts {
		byID[a.SourceEventID] = a.AlertType
	}
	assert.Equal(t, alert.TypeHighValue, byID["big"])
	assert.Equal(t, alert.TypeNegativeAmount, byID["neg"])
	assert.NotContains(t, byID, "small")
}

func TestCheckpointResume(t *testing.T) {
	// first run processes two events and checkpoints
	f := newFixture(t)
	f.reader.Append(
		txnPayload(t, "e1", 10, baseTime.Add(10*time.Second)),
		txnPayload(t, "e2", 20, baseTime.Add(20*time.Second)),
	)
	stop, _ := start(t, f.coord)
	assert.Eventually(t, func() bool {
		return f.cpStore.Saves() >= 1
	}, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	cp, err := f.cpStore.Load(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, int64(1), cp.Offset)
	assert.Equal(t, baseTime.Add(20*time.Second).Add(-time.Minute).UnixMilli(), cp.Watermark.UnixMilli())
}
