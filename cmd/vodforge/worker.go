package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/heyjunin/vodforge/pkg/api"
	"github.com/heyjunin/vodforge/pkg/config"
	"github.com/heyjunin/vodforge/pkg/intake"
	"github.com/heyjunin/vodforge/pkg/jobstore"
	"github.com/heyjunin/vodforge/pkg/logger"
	"github.com/heyjunin/vodforge/pkg/notify"
	"github.com/heyjunin/vodforge/pkg/pipeline"
	"github.com/heyjunin/vodforge/pkg/source"
	"github.com/heyjunin/vodforge/pkg/storage"
	"github.com/heyjunin/vodforge/pkg/transcoder"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the queue-driven transcoding worker",
		Long: `Worker consumes intake messages from Kafka and runs each job through
the pipeline with bounded concurrency. Offsets are committed only after a
job reaches a terminal status, so jobs lost to a crash are redelivered and
resume from their checkpoint.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runWorker(ctx, cfg)
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	jobs, err := jobstore.Open(cfg.JobStorePath())
	if err != nil {
		return err
	}
	defer jobs.Close()

	store, signer, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}

	encoder, err := transcoder.New(transcoder.Options{
		FFmpegBinary:    cfg.FFmpeg.FFmpegBinary,
		FFprobeBinary:   cfg.FFmpeg.FFprobeBinary,
		WorkDir:         cfg.FFmpeg.WorkDir,
		SegmentDuration: cfg.FFmpeg.SegmentSeconds,
		FFmpegExtraArgs: cfg.FFmpeg.ExtraArgs,
	}, store)
	if err != nil {
		return err
	}
	if err := encoder.HealthCheck(); err != nil {
		return err
	}

	orch, err := pipeline.New(pipeline.Deps{
		Jobs:     jobs,
		Store:    store,
		Encoder:  encoder,
		Resolver: source.NewResolver(signer, cfg.PresignTTL()),
		Notifier: buildNotifier(cfg),
	}, pipeline.Config{JobTimeout: cfg.JobTimeout()})
	if err != nil {
		return err
	}

	consumer, err := intake.NewConsumer(intake.KafkaConfig{
		Brokers: cfg.Queue.Brokers,
		Topic:   cfg.Queue.Topic,
		GroupID: cfg.Queue.GroupID,
	})
	if err != nil {
		return err
	}
	defer consumer.Close()

	worker, err := intake.NewWorker(consumer, jobs, orch, intake.WorkerConfig{
		Concurrency: cfg.Worker.Concurrency,
		StateDir:    cfg.Worker.StateDir,
	}, logger.NewLogger())
	if err != nil {
		return err
	}

	if cfg.API.Bind != "" {
		srv, err := api.New(jobs, logger.NewLogger())
		if err != nil {
			return err
		}
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.API.Bind); err != nil {
				logger.Error("API server failed", "worker", map[string]interface{}{
					"bind":  cfg.API.Bind,
					"error": err.Error(),
				})
			}
		}()
	}

	return worker.Run(ctx)
}

func buildStore(ctx context.Context, cfg *config.Config) (storage.Store, source.URLSigner, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		s3store, err := storage.NewS3Store(ctx, storage.S3Config{
			Region:        cfg.Storage.Region,
			Bucket:        cfg.Storage.Bucket,
			Endpoint:      cfg.Storage.Endpoint,
			UsePathStyle:  cfg.Storage.UsePathStyle,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return s3store, s3store, nil
	default:
		dirStore, err := storage.NewDirStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return dirStore, nil, nil
	}
}

func buildNotifier(cfg *config.Config) notify.Notifier {
	var sinks []notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.WebhookURL, cfg.NotifyTimeout()))
	}
	if cfg.Notify.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Notify.RedisAddr})
		sinks = append(sinks, notify.NewRedisSink(client, cfg.Notify.RedisChannel))
	}
	if len(sinks) == 0 {
		return notify.Noop{}
	}
	return notify.NewAsync(cfg.NotifyTimeout(), sinks...)
}
