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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, s.WindowLength)
	assert.Equal(t, time.Minute, s.WindowSlide)
	assert.Equal(t, 10*time.Minute, s.AllowedLateness)
	assert.Equal(t, int64(1000), s.ReadBatchSize)
	assert.Equal(t, time.Minute, s.PollInterval)
	assert.Equal(t, int32(1), s.Partitions)
	assert.Equal(t, float64(100000), s.HighValueThreshold)
	assert.Equal(t, float64(50000), s.LargeRemittanceThreshold)
	assert.Equal(t, "generator", s.SourceType)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "settings.yaml")
	content := `
pipeline: latam
window-length: 10m
window-slide: 2m
source-type: kafka
kafka-brokers:
  - broker-0:9092
kafka-topic: financial-events
partitions: 4
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))
	s, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "latam", s.Pipeline)
	assert.Equal(t, 10*time.Minute, s.WindowLength)
	assert.Equal(t, 2*time.Minute, s.WindowSlide)
	assert.Equal(t, []string{"broker-0:9092"}, s.KafkaBrokers)
	assert.Equal(t, int32(4), s.Partitions)
}

func TestValidate(t *testing.T) {
	base := func() *Settings {
		s, err := Load("")
		require.NoError(t, err)
		return s
	}
	tests := []struct {
		name    string
		mutate  func(*Settings)
		errLike string
	}{
		{"slide exceeds length", func(s *Settings) { s.WindowSlide = 6 * time.Minute }, "must not exceed"},
		{"slide not a divisor", func(s *Settings) { s.WindowSlide = 90 * time.Second }, "must divide"},
		{"negative lateness", func(s *Settings) { s.AllowedLateness = -time.Minute }, "lateness"},
		{"zero batch", func(s *Settings) { s.ReadBatchSize = 0 }, "batch size"},
		{"zero partitions", func(s *Settings) { s.Partitions = 0 }, "partitions"},
		{"kafka without brokers", func(s *Settings) { s.SourceType = "kafka" }, "kafka source"},
		{"unknown sink", func(s *Settings) { s.SinkType = "s3" }, "unknown sink"},
		{"nats without url", func(s *Settings) { s.NotifierType = "nats" }, "nats notifier"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(s)
			err := s.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errLike)
		})
	}
}
