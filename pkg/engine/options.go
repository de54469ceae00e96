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
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

type options struct {
	readBatchSize       int64
	allowedLateness     time.Duration
	suspiciousFrequency float64
	// retryBackoff bounds the retries of sink and notifier writes within a
	// batch. Exhaustion fails the batch.
	retryBackoff wait.Backoff
	// unavailableRetryWait caps the wait between read retries while the
	// source is unavailable. Read retries are unbounded.
	unavailableRetryWait time.Duration
}

func defaultOptions() *options {
	return &options{
		readBatchSize:       1000,
		allowedLateness:     10 * time.Minute,
		suspiciousFrequency: 10,
		retryBackoff: wait.Backoff{
			Steps:    5,
			Duration: 100 * time.Millisecond,
			Factor:   2.0,
			Jitter:   0.1,
		},
		unavailableRetryWait: 10 * time.Second,
	}
}

// Option is used to customize the engine.
type Option func(*options)

// WithReadBatchSize sets the maximum records read per batch.
func WithReadBatchSize(n int64) Option {
	return func(o *options) {
		o.readBatchSize = n
	}
}

// WithAllowedLateness sets the lateness bound used for the watermark and
// window finalization.
func WithAllowedLateness(d time.Duration) Option {
	return func(o *options) {
		o.allowedLateness = d
	}
}

// WithSuspiciousFrequency sets the events-per-minute rate above which a
// window is flagged high frequency.
func WithSuspiciousFrequency(f float64) Option {
	return func(o *options) {
		o.suspiciousFrequency = f
	}
}

// WithRetryBackoff sets the bounded backoff for sink and notifier writes.
func WithRetryBackoff(b wait.Backoff) Option {
	return func(o *options) {
		o.retryBackoff = b
	}
}

// WithUnavailableRetryWait caps the wait between read retries while the
// source is unavailable.
func WithUnavailableRetryWait(d time.Duration) Option {
	return func(o *options) {
		o.unavailableRetryWait = d
	}
}
