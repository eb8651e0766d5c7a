package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heyjunin/vodforge/pkg/config"
	"github.com/heyjunin/vodforge/pkg/hls"
	"github.com/heyjunin/vodforge/pkg/jobstore"
	"github.com/heyjunin/vodforge/pkg/logger"
	"github.com/heyjunin/vodforge/pkg/notify"
	"github.com/heyjunin/vodforge/pkg/pipeline"
	"github.com/heyjunin/vodforge/pkg/progress"
	"github.com/heyjunin/vodforge/pkg/source"
	"github.com/heyjunin/vodforge/pkg/storage"
	"github.com/heyjunin/vodforge/pkg/transcoder"
)

func newTranscodeCommand() *cobra.Command {
	var (
		outputDir string
		assetID   string
	)

	cmd := &cobra.Command{
		Use:   "transcode INPUT",
		Short: "Transcode one video to HLS on the local filesystem",
		Long: `Transcode runs the full pipeline against a local directory, without a
queue or object storage. INPUT is a local file or an http(s) URL.

The run checkpoints in the worker state directory: rerunning a cancelled
or failed transcode resumes from the completed renditions.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			return runTranscode(ctx, cfg, args[0], outputDir, assetID)
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "hls-output", "Output directory for playlists and segments")
	cmd.Flags().StringVar(&assetID, "asset-id", "", "Asset identifier (derived from the input name when empty)")
	return cmd
}

func runTranscode(ctx context.Context, cfg *config.Config, input, outputDir, assetID string) error {
	if assetID == "" {
		assetID = deriveAssetID(input)
	}

	outputDir, err := config.ExpandPath(outputDir)
	if err != nil {
		return err
	}

	// The store creates its own root; the configured storage backend is
	// not involved in the one-shot mode.
	store, err := storage.NewDirStore(outputDir)
	if err != nil {
		return err
	}
	jobs, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

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

	bar := progress.NewBarReporter()
	orch, err := pipeline.New(pipeline.Deps{
		Jobs:     jobs,
		Store:    store,
		Encoder:  encoder,
		Resolver: source.NewResolver(nil, 0),
		Notifier: notify.New(&consoleSink{bar: bar}),
	}, pipeline.Config{JobTimeout: cfg.JobTimeout()})
	if err != nil {
		return err
	}

	if _, err := jobs.Create(ctx, assetID, input); err != nil {
		return err
	}

	logger.Info("Starting local transcode", "transcode", map[string]interface{}{
		"asset_id": assetID,
		"input":    input,
		"output":   outputDir,
	})

	bar.Start(100)
	status, err := orch.Run(ctx, assetID)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %s\n", assetID, status)
	if status == jobstore.StatusDone || status == jobstore.StatusPartial {
		fmt.Println(store.PublicURL(hls.MasterKey(assetID)))
	}
	return nil
}

// deriveAssetID names the asset after the input file when the name is safe
// to embed in object keys.
func deriveAssetID(input string) string {
	base := filepath.Base(input)
	candidate := strings.TrimSuffix(base, filepath.Ext(base))
	if candidate == "" || strings.IndexFunc(candidate, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '-', r == '_', r == '.':
			return false
		}
		return true
	}) >= 0 {
		return uuid.NewString()
	}
	return candidate
}

// consoleSink drives the progress bar from pipeline events.
type consoleSink struct {
	bar  *progress.BarReporter
	last int64
}

func (s *consoleSink) Publish(ctx context.Context, event notify.Event) error {
	switch event.Type {
	case notify.EventProgress:
		if event.Percent != nil {
			s.last = int64(*event.Percent)
			s.bar.Set(s.last, "")
		}
	case notify.EventPlayable:
		s.bar.Set(s.last, "Transcoding (playable)...")
	case notify.EventDone:
		s.bar.Complete()
	}
	return nil
}
