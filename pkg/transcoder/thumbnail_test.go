package transcoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/logger"
)

func writeTestFrame(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 64, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "frame.jpg")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return path
}

func TestRenderThumbnail(t *testing.T) {
	frame := writeTestFrame(t, 640, 480)

	data, err := renderThumbnail(frame)
	if err != nil {
		t.Fatalf("renderThumbnail: %v", err)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != thumbnailWidth {
		t.Errorf("width = %d, want %d", cfg.Width, thumbnailWidth)
	}
	if cfg.Height != 240 {
		t.Errorf("height = %d, want 240 to preserve the aspect ratio", cfg.Height)
	}
}

func TestRenderThumbnailSmallSourceStillScales(t *testing.T) {
	frame := writeTestFrame(t, 160, 90)

	data, err := renderThumbnail(frame)
	if err != nil {
		t.Fatalf("renderThumbnail: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeConfig: %v", err)
	}
	if cfg.Width != thumbnailWidth {
		t.Errorf("width = %d, want %d", cfg.Width, thumbnailWidth)
	}
}

func TestRenderThumbnailMissingFrame(t *testing.T) {
	_, err := renderThumbnail(filepath.Join(t.TempDir(), "nope.jpg"))
	if err == nil {
		t.Fatal("expected an error for a missing frame")
	}
	se, ok := err.(*errors.StructuredError)
	if !ok {
		t.Fatalf("expected a StructuredError, got %T", err)
	}
	if se.Code != errors.ErrThumbnailResize {
		t.Errorf("code = %d, want %d", se.Code, errors.ErrThumbnailResize)
	}
	if errors.Retryable(err) {
		t.Error("thumbnail decode failures are fatal")
	}
}

func TestExtractThumbnailFrameGrabFailure(t *testing.T) {
	store, _ := newDirStore(t)
	e, err := NewWithDeps(Options{
		WorkDir:      t.TempDir(),
		FFmpegBinary: filepath.Join(t.TempDir(), "no-such-ffmpeg"),
	}, store, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWithDeps: %v", err)
	}

	_, err = e.ExtractThumbnail(context.Background(), Input{AssetID: "asset1", URL: "in.mp4", DurationSeconds: 30})
	if err == nil {
		t.Fatal("expected a frame grab failure")
	}
	se, ok := err.(*errors.StructuredError)
	if !ok {
		t.Fatalf("expected a StructuredError, got %T", err)
	}
	if se.Code != errors.ErrThumbnailFrame {
		t.Errorf("code = %d, want %d", se.Code, errors.ErrThumbnailFrame)
	}
}
