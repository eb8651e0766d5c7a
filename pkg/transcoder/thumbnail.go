package transcoder

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/hls"
	"github.com/heyjunin/vodforge/pkg/storage"
)

// thumbnailWidth is the delivered poster width; height follows the aspect.
const thumbnailWidth = 320

// ExtractThumbnail grabs one frame from the source, scales it down to the
// poster width and uploads it as a long-cached JPEG. The frame is taken at
// 1s to skip any black lead-in, or at 0s when the source is that short.
func (e *Engine) ExtractThumbnail(ctx context.Context, in Input) (string, error) {
	dir, err := os.MkdirTemp(e.opts.WorkDir, in.AssetID+"-thumb-")
	if err != nil {
		return "", errors.Wrap(err, errors.EncodeError, "Failed to create a scratch directory", errors.ErrEncodeStart)
	}
	defer os.RemoveAll(dir)

	seek := 1.0
	if in.DurationSeconds <= 1 {
		seek = 0
	}
	frame := filepath.Join(dir, "frame.jpg")
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-ss", strconv.FormatFloat(seek, 'f', -1, 64),
		"-i", in.URL,
		"-frames:v", "1",
		"-q:v", "2",
		"-y", frame,
	}
	cmd := exec.CommandContext(ctx, e.opts.FFmpegBinary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := tailString(strings.TrimSpace(stderr.String()), maxErrorDetail)
		if detail == "" {
			detail = err.Error()
		}
		return "", errors.New(errors.EncodeError, "Failed to extract a thumbnail frame", detail, errors.ErrThumbnailFrame)
	}

	img, err := renderThumbnail(frame)
	if err != nil {
		return "", err
	}

	key := hls.ThumbnailKey(in.AssetID)
	err = e.store.Upload(ctx, key, bytes.NewReader(img), storage.UploadOptions{
		ContentType:  hls.ThumbnailContentType,
		CacheControl: hls.CacheLongLived,
	})
	if err != nil {
		return "", errors.WrapTransient(err, errors.UploadError, "Failed to upload the thumbnail", errors.ErrUploadThumbnail)
	}
	e.logger.Info("Thumbnail uploaded", "transcoder", map[string]interface{}{
		"asset_id": in.AssetID,
		"key":      key,
	})
	return key, nil
}

// renderThumbnail scales a grabbed frame down to the poster width and
// re-encodes it as JPEG.
func renderThumbnail(framePath string) ([]byte, error) {
	img, err := imaging.Open(framePath)
	if err != nil {
		return nil, errors.Wrap(err, errors.EncodeError, "Failed to decode the thumbnail frame", errors.ErrThumbnailResize)
	}
	resized := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return nil, errors.Wrap(err, errors.EncodeError, "Failed to encode the thumbnail image", errors.ErrThumbnailResize)
	}
	return buf.Bytes(), nil
}
