package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/heyjunin/vodforge/pkg/config"
	"github.com/heyjunin/vodforge/pkg/logger"
)

var configFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vodforge",
		Short: "vodforge - resumable HLS transcoding pipeline",
		Long: `vodforge turns uploaded videos into HLS adaptive streams.

It runs as a queue-driven worker against object storage, or as a one-shot
local transcoder. Jobs checkpoint after every rendition: a crashed or
requeued job resumes where it stopped, and a stream becomes playable as
soon as its first rendition exists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newWorkerCommand())
	rootCmd.AddCommand(newSubmitCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newRequeueCommand())
	rootCmd.AddCommand(newTranscodeCommand())
	rootCmd.AddCommand(newConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

// loadConfig resolves the configuration file and initializes the global
// logger from it.
func loadConfig() (*config.Config, error) {
	cfg, path, exists, err := config.Load(configFlag)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Pretty)
	if exists {
		logger.Debug("Loaded configuration", "main", map[string]interface{}{
			"path": path,
		})
	} else {
		logger.Debug("No configuration file found, using defaults", "main", map[string]interface{}{
			"path": path,
		})
	}
	return cfg, nil
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
