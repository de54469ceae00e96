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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/metrics"
)

// readEventsCount is used to indicate the number of records read from the source
var readEventsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "read_total",
	Help:      "Total number of records read",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// rejectedEventsCount is used to indicate the number of records rejected at validation
var rejectedEventsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "rejected_total",
	Help:      "Total number of records rejected at validation",
}, []string{metrics.LabelPipeline, metrics.LabelPartition, metrics.LabelReason})

// droppedLateEventsCount is used to indicate the number of events dropped as late
var droppedLateEventsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "dropped_late_total",
	Help:      "Total number of events behind the watermark, excluded from aggregation",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// finalizedWindowsCount is used to indicate the number of windows finalized and emitted
var finalizedWindowsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "windows_finalized_total",
	Help:      "Total number of windows finalized and emitted",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// alertsCount is used to indicate the number of alerts published
var alertsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "alerts_total",
	Help:      "Total number of alerts published",
}, []string{metrics.LabelPipeline, metrics.LabelPartition, metrics.LabelAlertType})

// sinkWriteErrors is used to indicate the number of sink write errors
var sinkWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "sink_error_total",
	Help:      "Total number of sink write errors",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// notifierErrors is used to indicate the number of notifier publish errors
var notifierErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "notifier_error_total",
	Help:      "Total number of notifier publish errors",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// checkpointsCount is used to indicate the number of checkpoints saved
var checkpointsCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "checkpoints_total",
	Help:      "Total number of checkpoints saved",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// batchFailuresCount is used to indicate the number of failed batches that triggered a replay
var batchFailuresCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Subsystem: "engine",
	Name:      "batch_failure_total",
	Help:      "Total number of failed batches replayed from the last checkpoint",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// activeWindowsGauge is used to indicate the number of windows currently held in memory
var activeWindowsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "engine",
	Name:      "active_windows",
	Help:      "Number of windows currently held in memory",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})

// watermarkGauge is used to indicate the current partition watermark in unix milliseconds
var watermarkGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Subsystem: "engine",
	Name:      "watermark",
	Help:      "Current partition watermark in unix milliseconds",
}, []string{metrics.LabelPipeline, metrics.LabelPartition})
