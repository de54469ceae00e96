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

// Package notify hands alert records to downstream paging and dashboards.
// Delivery is at-least-once, duplicates are deduplicated downstream by
// (source_event_id, alert_type).
package notify

import (
	"context"
	"io"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
)

// Notifier is shared across all partition workers and must be safe for
// concurrent publishes.
type Notifier interface {
	io.Closer
	// GetName returns the notifier name.
	GetName() string
	// Publish delivers one alert.
	Publish(ctx context.Context, a *alert.Alert) error
}
