package hls

import (
	"fmt"
	"strconv"
	"strings"
)

// Variant defines one rendition of the source video: a resolution label plus
// the bitrate settings used to encode it.
type Variant struct {
	Label        string `json:"label"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	VideoBitrate string `json:"video_bitrate"`
	MaxRate      string `json:"max_rate"`
	BufSize      string `json:"buf_size"`
	AudioBitrate string `json:"audio_bitrate"`
}

// Ladder is the canonical set of output tiers, ascending by height.
var Ladder = []Variant{
	{Label: "240p", Width: 426, Height: 240, VideoBitrate: "400k", MaxRate: "450k", BufSize: "600k", AudioBitrate: "48k"},
	{Label: "360p", Width: 640, Height: 360, VideoBitrate: "800k", MaxRate: "900k", BufSize: "1200k", AudioBitrate: "64k"},
	{Label: "480p", Width: 854, Height: 480, VideoBitrate: "1200k", MaxRate: "1400k", BufSize: "2000k", AudioBitrate: "96k"},
	{Label: "720p", Width: 1280, Height: 720, VideoBitrate: "2500k", MaxRate: "2800k", BufSize: "3500k", AudioBitrate: "128k"},
	{Label: "1080p", Width: 1920, Height: 1080, VideoBitrate: "4500k", MaxRate: "4800k", BufSize: "6000k", AudioBitrate: "192k"},
}

// SegmentDuration is the fixed segment length in seconds. The last segment of
// a variant may be shorter.
const SegmentDuration = 10

// Artifact names within a variant directory.
const (
	PlaylistName   = "index.m3u8"
	SegmentPattern = "seg_%03d.ts"
	MasterName     = "master.m3u8"
	ThumbnailName  = "thumbnail.jpg"
)

// Content types for uploaded artifacts.
const (
	PlaylistContentType  = "application/x-mpegURL"
	SegmentContentType   = "video/MP2T"
	ThumbnailContentType = "image/jpeg"
)

// Cache-control directives. Segments and variant playlists are immutable once
// uploaded and get the long-lived value; the master playlist stays uncached
// until the job is fully done because its contents grow as variants finish.
const (
	CacheLongLived = "max-age=31536000"
	CacheNone      = "no-cache"
)

// Bandwidth returns the BANDWIDTH attribute value in bits per second for the
// variant's video bitrate ("4500k" -> 4500000). Malformed bitrates yield 0.
func (v Variant) Bandwidth() int {
	raw := strings.TrimSuffix(strings.TrimSpace(v.VideoBitrate), "k")
	kbps, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return kbps * 1000
}

// MasterKey returns the storage key of an asset's master playlist.
func MasterKey(assetID string) string {
	return fmt.Sprintf("processed/%s/hls/%s", assetID, MasterName)
}

// VariantPlaylistKey returns the storage key of one variant's playlist.
func VariantPlaylistKey(assetID, label string) string {
	return fmt.Sprintf("processed/%s/hls/%s/%s", assetID, label, PlaylistName)
}

// SegmentKey returns the storage key of one media segment file.
func SegmentKey(assetID, label, filename string) string {
	return fmt.Sprintf("processed/%s/hls/%s/%s", assetID, label, filename)
}

// ThumbnailKey returns the storage key of the asset's poster frame.
func ThumbnailKey(assetID string) string {
	return fmt.Sprintf("processed/%s/%s", assetID, ThumbnailName)
}

// RenderMaster builds the master playlist referencing the given variants, in
// the order supplied. Callers pass the done variants ascending by height so
// players see qualities smallest-first.
func RenderMaster(variants []Variant) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	for _, v := range variants {
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", v.Bandwidth(), v.Width, v.Height)
		fmt.Fprintf(&b, "%s/%s\n", v.Label, PlaylistName)
	}
	return b.String()
}
