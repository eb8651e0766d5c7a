package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heyjunin/vodforge/pkg/config"
	"github.com/heyjunin/vodforge/pkg/intake"
	"github.com/heyjunin/vodforge/pkg/logger"
)

func newSubmitCommand() *cobra.Command {
	var assetID string

	cmd := &cobra.Command{
		Use:   "submit INPUT_REF",
		Short: "Queue a video for transcoding",
		Long: `Submit records a new job and produces the intake message the worker
pool consumes. INPUT_REF is an s3://bucket/key reference, an http(s) URL,
or a file path reachable by the workers.

The generated asset id is printed on stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runSubmit(ctx, cfg, assetID, args[0])
		},
	}

	cmd.Flags().StringVar(&assetID, "asset-id", "", "Asset identifier (generated when empty)")
	return cmd
}

func runSubmit(ctx context.Context, cfg *config.Config, assetID, inputRef string) error {
	if assetID == "" {
		assetID = uuid.NewString()
	}

	jobs, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

	if _, err := jobs.Create(ctx, assetID, inputRef); err != nil {
		return err
	}

	producer, err := intake.NewProducer(intake.KafkaConfig{
		Brokers: cfg.Queue.Brokers,
		Topic:   cfg.Queue.Topic,
	})
	if err != nil {
		return err
	}
	defer producer.Close()

	if err := producer.Publish(ctx, intake.Message{AssetID: assetID, InputRef: inputRef}); err != nil {
		return err
	}

	logger.Info("Job submitted", "submit", map[string]interface{}{
		"asset_id":  assetID,
		"input_ref": inputRef,
		"topic":     cfg.Queue.Topic,
	})
	fmt.Println(assetID)
	return nil
}
