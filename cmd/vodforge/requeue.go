package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heyjunin/vodforge/pkg/config"
	"github.com/heyjunin/vodforge/pkg/intake"
	"github.com/heyjunin/vodforge/pkg/logger"
)

func newRequeueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "requeue ASSET_ID",
		Short: "Send a finished job back to the queue",
		Long: `Requeue resets a done, partial or failed job to queued, keeping its
completed renditions, and produces a fresh intake message. The next run
resumes from the checkpoint instead of starting over.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runRequeue(ctx, cfg, args[0])
		},
	}
}

func runRequeue(ctx context.Context, cfg *config.Config, assetID string) error {
	jobs, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

	job, err := jobs.ResetForRetry(ctx, assetID)
	if err != nil {
		return err
	}

	// Committed offsets never redeliver, so the retry needs its own
	// message.
	producer, err := intake.NewProducer(intake.KafkaConfig{
		Brokers: cfg.Queue.Brokers,
		Topic:   cfg.Queue.Topic,
	})
	if err != nil {
		return err
	}
	defer producer.Close()

	if err := producer.Publish(ctx, intake.Message{AssetID: job.AssetID, InputRef: job.InputRef}); err != nil {
		return err
	}

	logger.Info("Job requeued", "requeue", map[string]interface{}{
		"asset_id":           job.AssetID,
		"completed_variants": job.CompletedVariants(),
	})
	fmt.Printf("Requeued %s, keeping %d completed renditions\n", job.AssetID, job.CompletedVariants())
	return nil
}
