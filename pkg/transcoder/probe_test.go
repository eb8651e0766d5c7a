package transcoder

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/logger"
)

func TestParseProbeOutput(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type": "audio"},
			{"codec_type": "video", "width": 1920, "height": 1080, "duration": "93.400000"}
		],
		"format": {"duration": "93.533333"}
	}`)
	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", info.Width, info.Height)
	}
	if info.DurationSeconds != 93.4 {
		t.Errorf("duration = %v, want the stream value 93.4", info.DurationSeconds)
	}
}

func TestParseProbeOutputFormatDurationFallback(t *testing.T) {
	data := []byte(`{
		"streams": [{"codec_type": "video", "width": 640, "height": 360}],
		"format": {"duration": "120.5"}
	}`)
	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.DurationSeconds != 120.5 {
		t.Errorf("duration = %v, want 120.5", info.DurationSeconds)
	}
}

func TestParseProbeOutputUnknownDuration(t *testing.T) {
	data := []byte(`{"streams": [{"codec_type": "video", "width": 640, "height": 360}], "format": {}}`)
	info, err := parseProbeOutput(data)
	if err != nil {
		t.Fatalf("parseProbeOutput: %v", err)
	}
	if info.DurationSeconds != 0 {
		t.Errorf("duration = %v, want 0 for an unreported duration", info.DurationSeconds)
	}
}

func TestParseProbeOutputNoVideoStream(t *testing.T) {
	data := []byte(`{"streams": [{"codec_type": "audio"}], "format": {"duration": "10"}}`)
	_, err := parseProbeOutput(data)
	if err == nil {
		t.Fatal("expected an error for an audio-only source")
	}
	se, ok := err.(*errors.StructuredError)
	if !ok {
		t.Fatalf("expected a StructuredError, got %T", err)
	}
	if se.Type != errors.ProbeError || se.Code != errors.ErrProbeNoVideoStream {
		t.Errorf("got type %q code %d, want %q %d", se.Type, se.Code, errors.ProbeError, errors.ErrProbeNoVideoStream)
	}
}

func TestParseProbeOutputMalformed(t *testing.T) {
	_, err := parseProbeOutput([]byte("not json at all"))
	if err == nil {
		t.Fatal("expected a parse error")
	}
	se, ok := err.(*errors.StructuredError)
	if !ok {
		t.Fatalf("expected a StructuredError, got %T", err)
	}
	if se.Code != errors.ErrProbeParse {
		t.Errorf("code = %d, want %d", se.Code, errors.ErrProbeParse)
	}
}

func TestProbeExecFailure(t *testing.T) {
	store, _ := newDirStore(t)
	e, err := NewWithDeps(Options{
		FFprobeBinary: filepath.Join(t.TempDir(), "no-such-ffprobe"),
	}, store, logger.NewNop())
	if err != nil {
		t.Fatalf("NewWithDeps: %v", err)
	}

	_, err = e.Probe(context.Background(), "in.mp4")
	if err == nil {
		t.Fatal("expected a probe failure")
	}
	if !errors.IsType(err, errors.ProbeError) {
		t.Errorf("error type = %q, want %q", errors.TypeOf(err), errors.ProbeError)
	}
	if errors.Retryable(err) {
		t.Error("probe failures are fatal")
	}
}
