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

// Package logger prints alerts to the log, used for local runs.
package logger

import (
	"context"

	"go.uber.org/zap"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
)

// Notifier logs every alert.
type Notifier struct {
	logger *zap.SugaredLogger
}

// NewNotifier returns a Notifier logging through the context logger.
func NewNotifier(ctx context.Context) *Notifier {
	return &Notifier{logger: logging.FromContext(ctx).With("notifierType", "log")}
}

// GetName returns the notifier name.
func (n *Notifier) GetName() string {
	return "log"
}

// Publish logs the alert.
func (n *Notifier) Publish(_ context.Context, a *alert.Alert) error {
	n.logger.Infow("Alert",
		"alertType", string(a.AlertType),
		"severity", string(a.Severity),
		"sourceEventID", a.SourceEventID,
		"amount", a.Amount,
		"eventTime", a.EventTime,
	)
	return nil
}

// Close is a no-op.
func (n *Notifier) Close() error {
	return nil
}
