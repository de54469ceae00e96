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

// Package inmem is an in-memory notifier used in tests.
package inmem

import (
	"context"
	"sync"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
)

// Notifier collects published alerts.
type Notifier struct {
	mu       sync.Mutex
	alerts   []*alert.Alert
	failures int
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// GetName returns the notifier name.
func (n *Notifier) GetName() string {
	return "inmem"
}

// FailNext makes the next c Publish calls return an error.
func (n *Notifier) FailNext(c int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = c
}

// Publish records the alert.
func (n *Notifier) Publish(_ context.Context, a *alert.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failures > 0 {
		n.failures--
		return context.DeadlineExceeded
	}
	n.alerts = append(n.alerts, a)
	return nil
}

// Alerts returns the alerts published so far.
func (n *Notifier) Alerts() []*alert.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*alert.Alert, len(n.alerts))
	copy(out, n.alerts)
	return out
}

// Close is a no-op.
func (n *Notifier) Close() error {
	return nil
}
