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

package event

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
	"github.com/goccy/go-json"
)

// RejectReason classifies why a raw record was rejected at the boundary.
type RejectReason string

const (
	ReasonMalformedPayload RejectReason = "MALFORMED_PAYLOAD"
	ReasonMissingEventID   RejectReason = "MISSING_EVENT_ID"
	ReasonUnknownEventType RejectReason = "UNKNOWN_EVENT_TYPE"
	ReasonMissingEventTime RejectReason = "MISSING_EVENT_TIME"
	ReasonBadEventTime     RejectReason = "UNPARSABLE_EVENT_TIME"
	ReasonMissingAmount    RejectReason = "MISSING_AMOUNT"
	ReasonBadAmount        RejectReason = "NON_NUMERIC_AMOUNT"
)

// ValidationError is returned when a raw record cannot be turned into an
// Event. It is never fatal, the record is dropped and counted.
type ValidationError struct {
	Reason RejectReason
	Err    error
}

func (v *ValidationError) Error() string {
	if v.Err != nil {
		return fmt.Sprintf("invalid record (%s): %v", v.Reason, v.Err)
	}
	return fmt.Sprintf("invalid record (%s)", v.Reason)
}

func (v *ValidationError) Unwrap() error {
	return v.Err
}

func reject(reason RejectReason, err error) (*Event, error) {
	return nil, &ValidationError{Reason: reason, Err: err}
}

// rawRecord is the union of the transaction and remittance wire schemas.
// Amount is kept raw so that a non-numeric amount is a typed rejection
// instead of a generic decode failure.
type rawRecord struct {
	EventID          string          `json:"event_id"`
	TransactionID    string          `json:"transaction_id"`
	RemittanceID     string          `json:"remittance_id"`
	EventType        string          `json:"event_type"`
	CountryCode      string          `json:"country_code"`
	TransactionType  string          `json:"transaction_type"`
	SenderCountry    string          `json:"sender_country"`
	RecipientCountry string          `json:"recipient_country"`
	Amount           json.RawMessage `json:"amount"`
	Currency         string          `json:"currency"`
	TransactionDate  string          `json:"transaction_date"`
	EventTime        string          `json:"event_time"`
	Status           string          `json:"status"`
	LoanID           string          `json:"loan_id"`
	BeneficiaryID    string          `json:"beneficiary_id"`
	Sector           string          `json:"sector"`
	Source           string          `json:"source"`
	SenderID         string          `json:"sender_id"`
	RecipientID      string          `json:"recipient_id"`
	ExchangeRate     *float64        `json:"exchange_rate"`
	Fees             *float64        `json:"fees"`
}

// Validator turns raw serialized records into Events.
// Negative amounts, unknown sector codes and missing optional fields are not
// rejection causes, they pass through flagged for downstream rule evaluation.
type Validator struct{}

// NewValidator returns a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate parses, validates and normalizes a raw record.
func (v *Validator) Validate(raw []byte) (*Event, error) {
	var r rawRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return reject(ReasonMalformedPayload, err)
	}

	id := firstNonEmpty(r.EventID, r.TransactionID, r.RemittanceID)
	if id == "" {
		return reject(ReasonMissingEventID, nil)
	}

	typ, err := resolveType(r)
	if err != nil {
		return reject(ReasonUnknownEventType, err)
	}

	ts := firstNonEmpty(r.EventTime, r.TransactionDate)
	if ts == "" {
		return reject(ReasonMissingEventTime, nil)
	}
	eventTime, err := dateparse.ParseAny(ts)
	if err != nil {
		return reject(ReasonBadEventTime, err)
	}

	if len(r.Amount) == 0 || strings.TrimSpace(string(r.Amount)) == "null" {
		return reject(ReasonMissingAmount, nil)
	}
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return reject(ReasonBadAmount, err)
	}

	e := &Event{
		ID:               id,
		Type:             typ,
		Hash:             hashID(id),
		CountryCode:      normalizeCode(r.CountryCode),
		TransactionType:  normalizeCode(r.TransactionType),
		SenderCountry:    normalizeCode(r.SenderCountry),
		RecipientCountry: normalizeCode(r.RecipientCountry),
		Amount:           amount,
		Currency:         normalizeCode(r.Currency),
		EventTime:        eventTime,
		Status:           Status(normalizeCode(r.Status)),
		LoanID:           strings.TrimSpace(r.LoanID),
		BeneficiaryID:    strings.TrimSpace(r.BeneficiaryID),
		Sector:           normalizeCode(r.Sector),
		Source:           strings.TrimSpace(r.Source),
		SenderID:         strings.TrimSpace(r.SenderID),
		RecipientID:      strings.TrimSpace(r.RecipientID),
		ExchangeRate:     r.ExchangeRate,
		Fees:             r.Fees,
		TotalAmount:      amount,
	}
	if e.Fees != nil {
		e.TotalAmount = amount + *e.Fees
	}
	return e, nil
}

// resolveType uses the explicit event_type field when present, otherwise
// infers the type from which id field the payload carries.
func resolveType(r rawRecord) (Type, error) {
	if r.EventType != "" {
		switch Type(normalizeCode(r.EventType)) {
		case TypeTransaction:
			return TypeTransaction, nil
		case TypeRemittance:
			return TypeRemittance, nil
		default:
			return "", fmt.Errorf("unknown event type %q", r.EventType)
		}
	}
	switch {
	case r.TransactionID != "":
		return TypeTransaction, nil
	case r.RemittanceID != "":
		return TypeRemittance, nil
	default:
		return "", fmt.Errorf("event type not specified and not inferable")
	}
}

func parseAmount(raw json.RawMessage) (float64, error) {
	s := strings.TrimSpace(string(raw))
	// amounts occasionally arrive as quoted strings
	s = strings.Trim(s, `"`)
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// normalizeCode trims and upper-cases a code field so that keying is case
// and whitespace insensitive.
func normalizeCode(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
