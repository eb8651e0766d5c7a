package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter renders live progress for interactive runs. The worker daemon
// reports through the notification sink instead; Reporter exists for the
// one-shot CLI path where a human is watching.
type Reporter interface {
	// Start begins a run covering total units of work.
	Start(total int64)
	// Set moves the displayed progress to current and updates the stage
	// description shown next to the bar.
	Set(current int64, stage string)
	// Complete fills the bar and finishes the line.
	Complete()
}

// BarReporter draws a console progress bar on stderr.
type BarReporter struct {
	bar    *progressbar.ProgressBar
	writer io.Writer
}

// NewBarReporter returns a Reporter backed by a console progress bar.
func NewBarReporter() *BarReporter {
	return &BarReporter{writer: os.Stderr}
}

func (r *BarReporter) Start(total int64) {
	r.bar = progressbar.NewOptions64(total,
		progressbar.OptionSetDescription("Transcoding..."),
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (r *BarReporter) Set(current int64, stage string) {
	if r.bar == nil {
		return
	}
	if stage != "" {
		r.bar.Describe(stage)
	}
	_ = r.bar.Set64(current)
}

func (r *BarReporter) Complete() {
	if r.bar == nil {
		return
	}
	_ = r.bar.Finish()
	r.bar = nil
}

// NopReporter discards all updates. Used by non-interactive callers and
// tests.
type NopReporter struct{}

func (NopReporter) Start(total int64)               {}
func (NopReporter) Set(current int64, stage string) {}
func (NopReporter) Complete()                       {}
