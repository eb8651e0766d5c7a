package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/hls"
	"github.com/heyjunin/vodforge/pkg/logger"
	"github.com/heyjunin/vodforge/pkg/progress"
	"github.com/heyjunin/vodforge/pkg/storage"
)

// sweepInterval is how often a running encode is checked for newly
// finalized segments. Segments are ~10s of media, so this is generous.
const sweepInterval = 2 * time.Second

// maxErrorDetail bounds how much encoder stderr is carried into an error.
const maxErrorDetail = 2048

// Engine runs the ffmpeg/ffprobe subprocesses for one worker. It owns the
// full subprocess lifecycle: spawn, wait, kill on cancellation, and scratch
// directory cleanup on every exit path. Artifacts stream to the configured
// store as they are produced; nothing durable lives in the scratch dir.
type Engine struct {
	opts   Options
	store  storage.Store
	logger logger.Logger
}

// New creates an Engine backed by the process-wide logger.
func New(opts Options, store storage.Store) (*Engine, error) {
	return NewWithDeps(opts, store, logger.NewLogger())
}

// NewWithDeps creates an Engine with explicit dependencies.
func NewWithDeps(opts Options, store storage.Store, log logger.Logger) (*Engine, error) {
	if store == nil {
		return nil, errors.New(errors.ConfigError, "An object store is required", "", errors.ErrConfigInvalid)
	}
	if log == nil {
		log = logger.NewLogger()
	}
	return &Engine{opts: opts.withDefaults(), store: store, logger: log}, nil
}

// HealthCheck verifies the encoder and prober binaries are runnable.
func (e *Engine) HealthCheck() error {
	for _, bin := range []string{e.opts.FFmpegBinary, e.opts.FFprobeBinary} {
		if err := exec.Command(bin, "-version").Run(); err != nil {
			return errors.Wrap(err, errors.EncodeError, "Encoder toolchain is not available", errors.ErrEncodeStart)
		}
	}
	return nil
}

// Input describes one source being processed, resolved to a readable URL.
type Input struct {
	AssetID         string
	URL             string
	DurationSeconds float64
}

// VariantResult reports the artifacts one variant encode uploaded.
type VariantResult struct {
	PlaylistKey string
	SegmentKeys []string
}

// TranscodeVariant encodes one rendition of the source into segmented HLS.
// Segments upload (long-cache) as the encoder finalizes them and are
// deleted locally right after; the variant playlist uploads last, so its
// presence in storage implies every segment it references is present too.
// Progress reports from the encoder's side channel are forwarded through
// onSample as percentages of this variant.
func (e *Engine) TranscodeVariant(ctx context.Context, in Input, v hls.Variant, onSample func(percent float64)) (*VariantResult, error) {
	if onSample == nil {
		onSample = func(float64) {}
	}

	dir, err := os.MkdirTemp(e.opts.WorkDir, fmt.Sprintf("%s-%s-", in.AssetID, v.Label))
	if err != nil {
		return nil, errors.Wrap(err, errors.EncodeError, "Failed to create a scratch directory", errors.ErrEncodeStart)
	}
	defer os.RemoveAll(dir)

	lis, err := progress.NewListener(in.DurationSeconds, onSample)
	if err != nil {
		return nil, errors.Wrap(err, errors.EncodeError, "Failed to start the progress listener", errors.ErrEncodeStart)
	}
	defer lis.Close()

	args := buildVariantArgs(in.URL, v, dir, lis.Endpoint(), e.opts)
	e.logger.Info("Encoding variant", "transcoder", map[string]interface{}{
		"asset_id": in.AssetID,
		"variant":  v.Label,
		"height":   v.Height,
	})
	e.logger.Debug("Executing FFmpeg command", "ffmpeg", map[string]interface{}{
		"command": e.opts.FFmpegBinary + " " + strings.Join(args, " "),
	})

	cmd := exec.CommandContext(ctx, e.opts.FFmpegBinary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, errors.EncodeError, "Encoder process failed to start", errors.ErrEncodeStart)
	}

	wait := make(chan error, 1)
	go func() { wait <- cmd.Wait() }()

	uploaded := make(map[string]bool)
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	var runErr error
encode:
	for {
		select {
		case runErr = <-wait:
			break encode
		case <-ticker.C:
			if err := e.uploadSegments(ctx, dir, in.AssetID, v.Label, finalizedSegments(dir), uploaded); err != nil {
				_ = cmd.Process.Kill()
				<-wait
				return nil, err
			}
		}
	}

	if runErr != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), errors.TimeoutError, "Encoder run was cancelled", errors.ErrEncodeCancelled)
		}
		return nil, classifyEncodeFailure(runErr, stderr.String())
	}

	playlist := filepath.Join(dir, hls.PlaylistName)
	names, err := validatePlaylist(playlist)
	if err != nil {
		return nil, err
	}
	if err := e.uploadSegments(ctx, dir, in.AssetID, v.Label, names, uploaded); err != nil {
		return nil, err
	}

	playlistKey := hls.VariantPlaylistKey(in.AssetID, v.Label)
	err = storage.UploadFile(ctx, e.store, playlist, playlistKey, storage.UploadOptions{
		ContentType:  hls.PlaylistContentType,
		CacheControl: hls.CacheLongLived,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, errors.UploadError, "Failed to upload the variant playlist", errors.ErrUploadPlaylist)
	}

	segmentKeys := make([]string, 0, len(names))
	for _, name := range names {
		segmentKeys = append(segmentKeys, hls.SegmentKey(in.AssetID, v.Label, name))
	}
	e.logger.Info("Variant complete", "transcoder", map[string]interface{}{
		"asset_id": in.AssetID,
		"variant":  v.Label,
		"segments": len(segmentKeys),
	})
	return &VariantResult{PlaylistKey: playlistKey, SegmentKeys: segmentKeys}, nil
}

// buildVariantArgs assembles the encoder invocation for one rendition.
// Width is derived from the height to preserve the source aspect ratio;
// -hls_list_size 0 keeps every segment in the playlist as it grows.
func buildVariantArgs(url string, v hls.Variant, dir, progressEndpoint string, opts Options) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-i", url,
		"-vf", fmt.Sprintf("scale=-2:%d", v.Height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", v.VideoBitrate,
		"-maxrate", v.MaxRate,
		"-bufsize", v.BufSize,
		"-g", "300",
		"-c:a", "aac",
		"-b:a", v.AudioBitrate,
		"-f", "hls",
		"-hls_time", strconv.Itoa(opts.SegmentDuration),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(dir, hls.SegmentPattern),
		"-progress", progressEndpoint,
	}
	args = append(args, opts.FFmpegExtraArgs...)
	return append(args, "-y", filepath.Join(dir, hls.PlaylistName))
}

// uploadSegments pushes every not-yet-uploaded segment in names to the
// store in playlist order and removes the local file after a successful
// upload, keeping scratch disk usage to roughly one segment.
func (e *Engine) uploadSegments(ctx context.Context, dir, assetID, label string, names []string, uploaded map[string]bool) error {
	for _, name := range names {
		if uploaded[name] {
			continue
		}
		key := hls.SegmentKey(assetID, label, name)
		err := storage.UploadFile(ctx, e.store, filepath.Join(dir, name), key, storage.UploadOptions{
			ContentType:  hls.SegmentContentType,
			CacheControl: hls.CacheLongLived,
		})
		if err != nil {
			return errors.WrapTransient(err, errors.UploadError, "Failed to upload a media segment", errors.ErrUploadSegment)
		}
		uploaded[name] = true
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			e.logger.Warn("Failed to remove uploaded segment", "transcoder", map[string]interface{}{
				"segment": name,
				"error":   err.Error(),
			})
		}
		e.logger.Debug("Uploaded segment", "transcoder", map[string]interface{}{
			"key": key,
		})
	}
	return nil
}

// transientHints marks encoder stderr content that points at source
// connectivity rather than an encoder or input defect. A connectivity
// failure retries with a freshly signed URL; everything else is fatal.
var transientHints = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"network is unreachable",
	"host is unreachable",
	"temporarily unavailable",
	"operation timed out",
	"end of file",
	"tls",
	"server returned 403",
	"server returned 5",
}

// classifyEncodeFailure decides whether a non-zero encoder exit was caused
// by losing the remote source (retryable) or by the encode itself (not).
func classifyEncodeFailure(err error, stderr string) error {
	detail := tailString(strings.TrimSpace(stderr), maxErrorDetail)
	if detail == "" {
		detail = err.Error()
	}
	lower := strings.ToLower(detail)
	for _, hint := range transientHints {
		if strings.Contains(lower, hint) {
			return errors.NewTransient(errors.EncodeError, "Encoder lost access to the remote source", detail, errors.ErrEncodeSource)
		}
	}
	return errors.New(errors.EncodeError, "Encoder process exited with an error", detail, errors.ErrEncodeExit)
}

// tailString returns the last n bytes of s. Encoder output grows downward,
// so the tail is where the actual failure reason lands.
func tailString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
