package transcoder

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/hls"
)

// parsePlaylist scans a variant playlist and returns the segment file names
// it references in order, plus whether the header and end marker were seen.
// The encoder appends a segment entry only after the segment file is
// finalized, so during a live encode the returned names are exactly the
// segments that are safe to upload.
func parsePlaylist(data string) (segments []string, header, ended bool) {
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "#EXTM3U":
			header = true
		case line == "#EXT-X-ENDLIST":
			ended = true
		case line == "" || strings.HasPrefix(line, "#"):
		default:
			segments = append(segments, line)
		}
	}
	return segments, header, ended
}

// finalizedSegments reads the growing playlist in dir and returns the
// segment names finalized so far. A missing or unreadable playlist means
// the encoder has not completed a segment yet.
func finalizedSegments(dir string) []string {
	data, err := os.ReadFile(filepath.Join(dir, hls.PlaylistName))
	if err != nil {
		return nil
	}
	segments, _, _ := parsePlaylist(string(data))
	return segments
}

// validatePlaylist checks a finished variant playlist and returns the
// segment names it references. A missing header, end marker or segment
// list means the encoder exited without producing a complete rendition.
func validatePlaylist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.EncodeError, "Encoder finished without writing a playlist", errors.ErrEncodeIncomplete)
	}
	segments, header, ended := parsePlaylist(string(data))
	switch {
	case !header:
		return nil, errors.New(errors.EncodeError, "Variant playlist is missing the #EXTM3U header", path, errors.ErrEncodeIncomplete)
	case len(segments) == 0:
		return nil, errors.New(errors.EncodeError, "Variant playlist references no segments", path, errors.ErrEncodeIncomplete)
	case !ended:
		return nil, errors.New(errors.EncodeError, "Variant playlist is missing the #EXT-X-ENDLIST marker", path, errors.ErrEncodeIncomplete)
	}
	return segments, nil
}
