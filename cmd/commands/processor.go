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

package commands

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	platform "github.com/fidelfunez/RegionalBankDataPlatform"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/alert"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint"
	cpinmem "github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint/inmem"
	cpredis "github.com/fidelfunez/RegionalBankDataPlatform/pkg/checkpoint/redis"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/config"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/engine"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/metrics"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/notify"
	ntlogger "github.com/fidelfunez/RegionalBankDataPlatform/pkg/notify/logger"
	ntnats "github.com/fidelfunez/RegionalBankDataPlatform/pkg/notify/nats"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/shared/logging"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink"
	sklog "github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink/logsink"
	skredis "github.com/fidelfunez/RegionalBankDataPlatform/pkg/sink/redis"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source/generator"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/source/kafka"
	"github.com/fidelfunez/RegionalBankDataPlatform/pkg/window"
)

// NewProcessorCommand returns the command running the streaming processor.
func NewProcessorCommand() *cobra.Command {
	var configFile string

	command := &cobra.Command{
		Use:   "processor",
		Short: "Start the streaming aggregation and alerting processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.NewLogger().Named("processor")
			v := platform.GetVersion()
			log.Infow("Starting processor", "version", v)
			metrics.BuildInfo.WithLabelValues(v.Version, v.Platform).Set(1)

			settings, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load settings: %w", err)
			}
			log = log.With("pipeline", settings.Pipeline)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithLogger(ctx, log)
			return runProcessor(ctx, settings)
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "Path to the settings file")
	return command
}

func runProcessor(ctx context.Context, settings *config.Settings) error {
	log := logging.FromContext(ctx)

	windower, err := window.NewSliding(settings.WindowLength, settings.WindowSlide)
	if err != nil {
		return err
	}
	evaluator := alert.NewEvaluator(settings.HighValueThreshold, settings.LargeRemittanceThreshold)

	var closers []io.Closer
	defer func() {
		var closeErr error
		for _, c := range closers {
			closeErr = multierr.Append(closeErr, c.Close())
		}
		if closeErr != nil {
			log.Errorw("Failed to close resources", zap.Error(closeErr))
		}
	}()

	cpStore, err := buildCheckpointStore(settings)
	if err != nil {
		return err
	}
	closers = append(closers, cpStore)

	sinker, err := buildSink(ctx, settings)
	if err != nil {
		return err
	}
	closers = append(closers, sinker)

	notifier, err := buildNotifier(ctx, settings)
	if err != nil {
		return err
	}
	closers = append(closers, notifier)

	readers, err := buildReaders(ctx, settings, cpStore)
	if err != nil {
		return err
	}
	for _, r := range readers {
		closers = append(closers, r)
	}

	ms := metrics.NewMetricsServer(settings.MetricsPort)
	shutdown, err := ms.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(sctx)
	}()

	coord := engine.NewCoordinator(ctx, settings.Pipeline, readers, sinker, notifier, cpStore,
		windower, evaluator,
		engine.WithReadBatchSize(settings.ReadBatchSize),
		engine.WithAllowedLateness(settings.AllowedLateness),
		engine.WithSuspiciousFrequency(float64(settings.SuspiciousFrequency)),
	)
	log.Infow("Processor running",
		"partitions", settings.Partitions,
		"source", settings.SourceType,
		"sink", sinker.GetName(),
		"notifier", notifier.GetName(),
	)
	if err := coord.Run(ctx); err != nil {
		log.Errorw("Processor stopped with error", zap.Error(err))
		return err
	}
	log.Info("Processor exited")
	return nil
}

func buildCheckpointStore(settings *config.Settings) (checkpoint.Store, error) {
	switch settings.CheckpointType {
	case "redis":
		return cpredis.NewStore(settings.RedisAddrs, settings.Pipeline), nil
	case "inmem":
		return cpinmem.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint type %q", settings.CheckpointType)
	}
}

func buildSink(ctx context.Context, settings *config.Settings) (sink.Sinker, error) {
	switch settings.SinkType {
	case "redis":
		return skredis.NewSink(settings.RedisAddrs,
			skredis.WithTTL(settings.RedisTTL),
			skredis.WithLogger(logging.FromContext(ctx)))
	case "log":
		return sklog.NewSink(ctx), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", settings.SinkType)
	}
}

func buildNotifier(ctx context.Context, settings *config.Settings) (notify.Notifier, error) {
	switch settings.NotifierType {
	case "nats":
		return ntnats.NewNotifier(ctx, settings.NatsURL, settings.NatsSubject)
	case "log":
		return ntlogger.NewNotifier(ctx), nil
	default:
		return nil, fmt.Errorf("unknown notifier type %q", settings.NotifierType)
	}
}

// buildReaders returns one reader per partition, positioned at the partition's
// last checkpoint when there is one.
func buildReaders(ctx context.Context, settings *config.Settings, cpStore checkpoint.Store) ([]source.Reader, error) {
	readers := make([]source.Reader, 0, settings.Partitions)
	for idx := int32(0); idx < settings.Partitions; idx++ {
		switch settings.SourceType {
		case "kafka":
			resume := int64(-1)
			cp, err := cpStore.Load(ctx, idx)
			if err != nil {
				return nil, fmt.Errorf("failed to load checkpoint for partition %d: %w", idx, err)
			}
			if cp != nil {
				resume = cp.Offset + 1
			}
			r, err := kafka.NewReader(settings.KafkaBrokers, settings.KafkaTopic, idx, resume,
				kafka.WithLogger(logging.FromContext(ctx)),
				kafka.WithReadTimeout(settings.PollInterval))
			if err != nil {
				return nil, err
			}
			readers = append(readers, r)
		case "generator":
			readers = append(readers, generator.NewReader(idx, 10, settings.PollInterval))
		default:
			return nil, fmt.Errorf("unknown source type %q", settings.SourceType)
		}
	}
	return readers, nil
}
