package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/heyjunin/vodforge/pkg/config"
	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/jobstore"
)

func newStatusCommand() *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "status [ASSET_ID]",
		Short: "Show job status",
		Long: `Status without arguments lists every job. With an asset id it prints
the job's details and the per-rendition checkpoint state.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signalContext()
			defer stop()
			if len(args) == 1 {
				return runStatusDetail(ctx, cfg, args[0])
			}
			return runStatusList(ctx, cfg, statusFilters)
		},
	}

	cmd.Flags().StringSliceVar(&statusFilters, "status", nil,
		"Only list jobs with these statuses (queued, running, done, partial, failed)")
	return cmd
}

func runStatusList(ctx context.Context, cfg *config.Config, filters []string) error {
	jobs, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

	statuses := make([]jobstore.Status, 0, len(filters))
	for _, f := range filters {
		statuses = append(statuses, jobstore.Status(strings.ToLower(strings.TrimSpace(f))))
	}

	records, err := jobs.List(ctx, statuses...)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, job := range records {
		rows = append(rows, []string{
			job.AssetID,
			string(job.Status),
			fmt.Sprintf("%.1f%%", job.GlobalProgress),
			fmt.Sprintf("%d/%d", job.CompletedVariants(), len(job.Plan)),
			job.UpdatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	fmt.Println(renderTable([]string{"ASSET", "STATUS", "PROGRESS", "RENDITIONS", "UPDATED"}, rows))
	return nil
}

func runStatusDetail(ctx context.Context, cfg *config.Config, assetID string) error {
	jobs, err := openJobStore(cfg)
	if err != nil {
		return err
	}
	defer jobs.Close()

	job, err := jobs.Get(ctx, assetID)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.New(errors.StorageError, "No job found for the asset", assetID, errors.ErrJobNotFound)
	}

	fmt.Printf("Asset:     %s\n", job.AssetID)
	fmt.Printf("Input:     %s\n", job.InputRef)
	fmt.Printf("Status:    %s\n", job.Status)
	fmt.Printf("Progress:  %.1f%%\n", job.GlobalProgress)
	if job.Probed != nil {
		fmt.Printf("Source:    %dx%d, %.1fs\n", job.Probed.Width, job.Probed.Height, job.Probed.Duration)
	}
	if job.MasterKey != "" {
		fmt.Printf("Master:    %s\n", job.MasterKey)
	}
	if job.ThumbnailKey != "" {
		fmt.Printf("Thumbnail: %s\n", job.ThumbnailKey)
	}
	if job.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", job.ErrorMessage)
	}
	fmt.Printf("Updated:   %s\n", job.UpdatedAt.Local().Format("2006-01-02 15:04:05"))

	if len(job.Plan) > 0 {
		rows := make([][]string, 0, len(job.Plan))
		for _, v := range job.Plan {
			rows = append(rows, []string{
				v.Label,
				fmt.Sprintf("%dx%d", v.Width, v.Height),
				v.VideoBitrate,
				string(job.VariantState[v.Label]),
			})
		}
		fmt.Println(renderTable([]string{"RENDITION", "RESOLUTION", "BITRATE", "STATE"}, rows))
	}
	return nil
}

func openJobStore(cfg *config.Config) (*jobstore.Store, error) {
	if err := os.MkdirAll(cfg.Worker.StateDir, 0o755); err != nil {
		return nil, err
	}
	return jobstore.Open(cfg.JobStorePath())
}

func renderTable(headers []string, rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}
	return tw.Render()
}
