package transcoder

import (
	"os"

	"github.com/heyjunin/vodforge/pkg/hls"
)

// Options contains settings for the encode engine.
type Options struct {
	// FFmpegBinary is the encoder executable. Defaults to "ffmpeg" on PATH.
	FFmpegBinary string
	// FFprobeBinary is the prober executable. Defaults to "ffprobe" on PATH.
	FFprobeBinary string
	// WorkDir is the root under which per-run scratch directories are
	// created. Defaults to the system temp directory.
	WorkDir string
	// SegmentDuration is the target segment length in seconds.
	SegmentDuration int
	// FFmpegExtraArgs are appended to every encode invocation, before the
	// output path. Useful for tuning flags like -threads.
	FFmpegExtraArgs []string
}

func (o Options) withDefaults() Options {
	if o.FFmpegBinary == "" {
		o.FFmpegBinary = "ffmpeg"
	}
	if o.FFprobeBinary == "" {
		o.FFprobeBinary = "ffprobe"
	}
	if o.WorkDir == "" {
		o.WorkDir = os.TempDir()
	}
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = hls.SegmentDuration
	}
	return o
}
