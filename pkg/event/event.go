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

// Package event defines the typed representation of the records flowing
// through the streaming engine. The loosely structured payloads read from
// the source are validated at the boundary into a closed tagged variant
// (Transaction | Remittance) with a shared field subset and type specific
// optional fields.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Type is the kind of the event.
type Type string

const (
	TypeTransaction Type = "TRANSACTION"
	TypeRemittance  Type = "REMITTANCE"
)

// Status is the processing status asserted by the source system.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusPending Status = "PENDING"
)

// Event is an immutable validated record.
// EventTime is the timestamp asserted by the source, not the ingestion time.
type Event struct {
	// ID is unique within a partition's retention window. Duplicates are
	// idempotently absorbed by the sink, not deduplicated here.
	ID   string `json:"event_id"`
	Type Type   `json:"event_type"`
	// Hash is the sha256 of ID, carried for downstream joins.
	Hash string `json:"event_hash"`

	// Transaction dimensions.
	CountryCode     string `json:"country_code,omitempty"`
	TransactionType string `json:"transaction_type,omitempty"`

	// Remittance dimensions.
	SenderCountry    string `json:"sender_country,omitempty"`
	RecipientCountry string `json:"recipient_country,omitempty"`

	// Amount may be negative. A negative amount is an anomaly surfaced by
	// the alert evaluator, never a rejection.
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency,omitempty"`
	EventTime time.Time `json:"event_time"`
	Status    Status    `json:"status,omitempty"`

	// Type specific optional fields.
	LoanID        string   `json:"loan_id,omitempty"`
	BeneficiaryID string   `json:"beneficiary_id,omitempty"`
	Sector        string   `json:"sector,omitempty"`
	Source        string   `json:"source,omitempty"`
	SenderID      string   `json:"sender_id,omitempty"`
	RecipientID   string   `json:"recipient_id,omitempty"`
	ExchangeRate  *float64 `json:"exchange_rate,omitempty"`
	Fees          *float64 `json:"fees,omitempty"`

	// TotalAmount is amount plus fees (zero when fees are absent).
	TotalAmount float64 `json:"total_amount"`
}

// KeyFields returns the ordered business dimensions used for window keying.
// The fields are already normalized (trimmed, upper-cased) by the validator,
// so keying is case and whitespace insensitive.
func (e *Event) KeyFields() []string {
	switch e.Type {
	case TypeRemittance:
		return []string{string(e.Type), e.SenderCountry, e.RecipientCountry}
	default:
		return []string{string(e.Type), e.CountryCode, e.TransactionType}
	}
}

// DateKey returns the event date partition prefix (year/month/day) used to
// key raw event writes in the sink.
func (e *Event) DateKey() string {
	y, m, d := e.EventTime.UTC().Date()
	return fmt.Sprintf("%04d/%02d/%02d", y, int(m), d)
}

// Marshal serializes the event for the sink.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func hashID(id string) string {
	h := sha256.Sum256([]byte(id))
	return hex.EncodeToString(h[:])
}
