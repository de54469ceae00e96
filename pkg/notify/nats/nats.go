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

// Package nats publishes alerts to a NATS subject.
package nats

import (
	"context"
	"fmt"
	"time"

	natslib "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
)

// Notifier publishes alerts to one subject.
type Notifier struct {
	conn    *natslib.Conn
	subject string
	logger  *zap.SugaredLogger
}

// NewNotifier connects to the NATS server and returns a Notifier.
func NewNotifier(ctx context.Context, url string, subject string) (*Notifier, error) {
	n := &Notifier{
		subject: subject,
		logger:  logging.FromContext(ctx).With("notifierType", "nats").With("subject", subject),
	}
	opts := []natslib.Option{
		natslib.MaxReconnects(-1),
		natslib.ReconnectWait(3 * time.Second),
		natslib.DisconnectErrHandler(func(c *natslib.Conn, err error) {
			n.logger.Errorw("Nats disconnected", zap.Error(err))
		}),
		natslib.ReconnectHandler(func(c *natslib.Conn) {
			n.logger.Info("Nats reconnected")
		}),
	}
	conn, err := natslib.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats url %q: %w", url, err)
	}
	n.conn = conn
	return n, nil
}

// GetName returns the notifier name.
func (n *Notifier) GetName() string {
	return "nats"
}

// Publish sends one alert to the subject.
func (n *Notifier) Publish(_ context.Context, a *alert.Alert) error {
	data, err := a.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal alert %s/%s: %w", a.SourceEventID, a.AlertType, err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish alert %s/%s: %w", a.SourceEventID, a.AlertType, err)
	}
	return nil
}

// Close drains and closes the connection.
func (n *Notifier) Close() error {
	if n.conn.IsClosed() {
		return nil
	}
	return n.conn.Drain()
}
