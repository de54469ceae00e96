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

// Package generator produces a synthetic transaction/remittance stream for
// local runs and load testing, no external broker needed.
package generator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
)

var (
	countries        = []string{"BRA", "ARG", "CHL", "COL", "MEX", "PER", "URY", "ECU", "BOL", "PRY"}
	transactionTypes = []string{"DISBURSEMENT", "REPAYMENT", "INTEREST", "FEE", "REFUND", "ADJUSTMENT"}
	sectors          = []string{"AGRICULTURE", "EDUCATION", "HEALTH", "INFRASTRUCTURE", "SMALL_BUSINESS", "ENERGY", "WATER_SANITATION", "TRANSPORTATION"}
	currencies       = []string{"USD", "EUR", "BRL", "ARS", "CLP", "COP", "MXN", "PEN"}
	statuses         = []string{"SUCCESS", "SUCCESS", "SUCCESS", "PENDING", "FAILED"}
)

// Reader generates rps synthetic records per second for one partition.
type Reader struct {
	name         string
	partitionIdx int32
	rps          int
	readTimeout  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
	seq int64

	ticker *time.Ticker
}

// NewReader returns a generator for one partition.
func NewReader(partitionIdx int32, rps int, readTimeout time.Duration) *Reader {
	if rps <= 0 {
		rps = 10
	}
	return &Reader{
		name:         "generator",
		partitionIdx: partitionIdx,
		rps:          rps,
		readTimeout:  readTimeout,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano() + int64(partitionIdx))),
		ticker:       time.NewTicker(time.Second / time.Duration(rps)),
	}
}

// GetName returns the reader name.
func (r *Reader) GetName() string {
	return r.name
}

// GetPartitionIdx returns the partition this reader serves.
func (r *Reader) GetPartitionIdx() int32 {
	return r.partitionIdx
}

// Read produces up to count synthetic records, pacing them at the
// configured rate.
func (r *Reader) Read(ctx context.Context, count int64) ([]*source.Record, error) {
	var batch []*source.Record
	timeout := time.After(r.readTimeout)
	for int64(len(batch)) < count {
		select {
		case <-ctx.Done():
			return batch, nil
		case <-timeout:
			return batch, nil
		case <-r.ticker.C:
			batch = append(batch, r.next())
		}
	}
	return batch, nil
}

// Seek is a no-op, synthetic records cannot be replayed.
func (r *Reader) Seek(_ context.Context, _ int64) error {
	return nil
}

// Close stops the generator.
func (r *Reader) Close() error {
	r.ticker.Stop()
	return nil
}

func (r *Reader) next() *source.Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payload map[string]any
	now := time.Now().UTC()
	// a slice of the stream arrives late or slightly out of order
	eventTime := now.Add(-time.Duration(r.rng.Intn(120)) * time.Second)
	if r.rng.Intn(100) < 2 {
		eventTime = now.Add(-15 * time.Minute)
	}

	if r.rng.Intn(100) < 70 {
		amount := r.rng.Float64() * 150000
		if r.rng.Intn(100) < 1 {
			amount = -amount
		}
		payload = map[string]any{
			"transaction_id":   uuid.NewString(),
			"country_code":     countries[r.rng.Intn(len(countries))],
			"transaction_type": transactionTypes[r.rng.Intn(len(transactionTypes))],
			"amount":           amount,
			"currency":         currencies[r.rng.Intn(len(currencies))],
			"transaction_date": eventTime.Format(time.RFC3339),
			"sector":           sectors[r.rng.Intn(len(sectors))],
			"status":           statuses[r.rng.Intn(len(statuses))],
			"source":           "generator",
		}
	} else {
		payload = map[string]any{
			"remittance_id":     uuid.NewString(),
			"sender_country":    countries[r.rng.Intn(len(countries))],
			"recipient_country": countries[r.rng.Intn(len(countries))],
			"amount":            r.rng.Float64() * 60000,
			"currency":          currencies[r.rng.Intn(len(currencies))],
			"fees":              r.rng.Float64() * 100,
			"transaction_date":  eventTime.Format(time.RFC3339),
			"status":            statuses[r.rng.Intn(len(statuses))],
		}
		// exchange rate is occasionally missing upstream
		if r.rng.Intn(100) < 90 {
			payload["exchange_rate"] = 1 + r.rng.Float64()*99
		}
	}

	data, _ := json.Marshal(payload)
	rec := &source.Record{
		Payload: data,
		Offset:  source.NewOffset(r.seq, r.partitionIdx),
	}
	r.seq++
	return rec
}
