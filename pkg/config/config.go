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

// Package config loads the processor settings from file and environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Settings holds the full processor configuration.
type Settings struct {
	// Pipeline names this deployment, it namespaces checkpoints.
	Pipeline string `mapstructure:"pipeline"`

	// Windowing.
	WindowLength    time.Duration `mapstructure:"window-length"`
	WindowSlide     time.Duration `mapstructure:"window-slide"`
	AllowedLateness time.Duration `mapstructure:"allowed-lateness"`

	// Batching.
	ReadBatchSize int64         `mapstructure:"read-batch-size"`
	PollInterval  time.Duration `mapstructure:"poll-interval"`
	Partitions    int32         `mapstructure:"partitions"`

	// Alerting thresholds.
	HighValueThreshold       float64 `mapstructure:"high-value-threshold"`
	LargeRemittanceThreshold float64 `mapstructure:"large-remittance-threshold"`
	// SuspiciousFrequency is events per minute above which a window
	// is flagged high frequency.
	SuspiciousFrequency int64 `mapstructure:"suspicious-frequency"`

	// Collaborators.
	SourceType   string   `mapstructure:"source-type"`
	KafkaBrokers []string `mapstructure:"kafka-brokers"`
	KafkaTopic   string   `mapstructure:"kafka-topic"`

	SinkType   string        `mapstructure:"sink-type"`
	RedisAddrs []string      `mapstructure:"redis-addrs"`
	RedisTTL   time.Duration `mapstructure:"redis-ttl"`

	NotifierType string `mapstructure:"notifier-type"`
	NatsURL      string `mapstructure:"nats-url"`
	NatsSubject  string `mapstructure:"nats-subject"`

	CheckpointType string `mapstructure:"checkpoint-type"`

	MetricsPort int `mapstructure:"metrics-port"`
}

// Load reads settings from the given config file (optional) and RBDP_*
// environment variables, with defaults matching production.
func Load(configFile string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("rbdp")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("pipeline", "default")
	v.SetDefault("window-length", 5*time.Minute)
	v.SetDefault("window-slide", time.Minute)
	v.SetDefault("allowed-lateness", 10*time.Minute)
	v.SetDefault("read-batch-size", 1000)
	v.SetDefault("poll-interval", time.Minute)
	v.SetDefault("partitions", 1)
	v.SetDefault("high-value-threshold", 100000.0)
	v.SetDefault("large-remittance-threshold", 50000.0)
	v.SetDefault("suspicious-frequency", 10)
	v.SetDefault("source-type", "generator")
	v.SetDefault("sink-type", "log")
	v.SetDefault("notifier-type", "log")
	v.SetDefault("checkpoint-type", "inmem")
	v.SetDefault("nats-subject", "rbdp.alerts")
	v.SetDefault("metrics-port", 2469)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", configFile, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects settings the engine cannot run with.
func (s *Settings) Validate() error {
	if s.WindowLength <= 0 || s.WindowSlide <= 0 {
		return fmt.Errorf("window length and slide must be positive, got %v/%v", s.WindowLength, s.WindowSlide)
	}
	if s.WindowSlide > s.WindowLength {
		return fmt.Errorf("window slide %v must not exceed window length %v", s.WindowSlide, s.WindowLength)
	}
	if s.WindowLength%s.WindowSlide != 0 {
		return fmt.Errorf("window slide %v must divide window length %v", s.WindowSlide, s.WindowLength)
	}
	if s.AllowedLateness < 0 {
		return fmt.Errorf("allowed lateness must not be negative, got %v", s.AllowedLateness)
	}
	if s.ReadBatchSize <= 0 {
		return fmt.Errorf("read batch size must be positive, got %d", s.ReadBatchSize)
	}
	if s.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive, got %d", s.Partitions)
	}
	switch s.SourceType {
	case "kafka":
		if len(s.KafkaBrokers) == 0 || s.KafkaTopic == "" {
			return fmt.Errorf("kafka source needs brokers and a topic")
		}
	case "generator":
	default:
		return fmt.Errorf("unknown source type %q", s.SourceType)
	}
	switch s.SinkType {
	case "redis":
		if len(s.RedisAddrs) == 0 {
			return fmt.Errorf("redis sink needs addresses")
		}
	case "log":
	default:
		return fmt.Errorf("unknown sink type %q", s.SinkType)
	}
	switch s.NotifierType {
	case "nats":
		if s.NatsURL == "" {
			return fmt.Errorf("nats notifier needs a url")
		}
	case "log":
	default:
		return fmt.Errorf("unknown notifier type %q", s.NotifierType)
	}
	switch s.CheckpointType {
	case "redis":
		if len(s.RedisAddrs) == 0 {
			return fmt.Errorf("redis checkpoint store needs addresses")
		}
	case "inmem":
	default:
		return fmt.Errorf("unknown checkpoint type %q", s.CheckpointType)
	}
	return nil
}
