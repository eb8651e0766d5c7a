package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"

	"github.com/heyjunin/vodforge/pkg/errors"
)

// MediaInfo holds the source properties the variant planner needs.
type MediaInfo struct {
	Width           int
	Height          int
	DurationSeconds float64
}

// ffprobeOutput mirrors the JSON shape of `ffprobe -print_format json`.
type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// Probe inspects the source at url with ffprobe and returns its dimensions
// and duration. The url may be remote; ffprobe reads only the metadata it
// needs, not the whole object. Probe reports facts as found: dimension
// validation belongs to the variant planner.
func (e *Engine) Probe(ctx context.Context, url string) (*MediaInfo, error) {
	cmd := exec.CommandContext(
		ctx,
		e.opts.FFprobeBinary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		url,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		detail := tailString(stderr.String(), maxErrorDetail)
		if detail == "" {
			detail = err.Error()
		}
		return nil, errors.New(errors.ProbeError, "ffprobe execution failed", detail, errors.ErrProbeExec)
	}

	info, err := parseProbeOutput(output)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("Probed source", "transcoder", map[string]interface{}{
		"url":      url,
		"width":    info.Width,
		"height":   info.Height,
		"duration": info.DurationSeconds,
	})
	return info, nil
}

// parseProbeOutput decodes ffprobe JSON into MediaInfo. The duration comes
// from the video stream when present, falling back to the container format;
// sources that report neither probe as zero and are handled downstream.
func parseProbeOutput(data []byte) (*MediaInfo, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, errors.ProbeError, "ffprobe produced unparseable output", errors.ErrProbeParse)
	}

	var video *ffprobeStream
	for i := range probe.Streams {
		if probe.Streams[i].CodecType == "video" {
			video = &probe.Streams[i]
			break
		}
	}
	if video == nil {
		return nil, errors.New(errors.ProbeError, "No video stream found in the source", "", errors.ErrProbeNoVideoStream)
	}

	info := &MediaInfo{
		Width:  video.Width,
		Height: video.Height,
	}
	if d, err := strconv.ParseFloat(video.Duration, 64); err == nil {
		info.DurationSeconds = d
	} else if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.DurationSeconds = d
	}
	return info, nil
}
