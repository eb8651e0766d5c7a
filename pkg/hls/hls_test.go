package hls

import (
	"fmt"
	"testing"
)

func TestLadderAscending(t *testing.T) {
	for i := 1; i < len(Ladder); i++ {
		if Ladder[i].Height <= Ladder[i-1].Height {
			t.Errorf("Ladder not ascending at index %d: %dp after %dp", i, Ladder[i].Height, Ladder[i-1].Height)
		}
	}
	for _, v := range Ladder {
		if want := fmt.Sprintf("%dp", v.Height); v.Label != want {
			t.Errorf("Ladder label %q does not match height %d", v.Label, v.Height)
		}
		if v.Width%2 != 0 || v.Height%2 != 0 {
			t.Errorf("Ladder tier %s has odd dimensions: %dx%d", v.Label, v.Width, v.Height)
		}
	}
}

func TestVariantBandwidth(t *testing.T) {
	cases := []struct {
		bitrate string
		want    int
	}{
		{"4500k", 4500000},
		{"400k", 400000},
		{" 800k ", 800000},
		{"800", 800000},
		{"", 0},
		{"fast", 0},
	}
	for _, tc := range cases {
		v := Variant{VideoBitrate: tc.bitrate}
		if got := v.Bandwidth(); got != tc.want {
			t.Errorf("Bandwidth(%q) = %d, want %d", tc.bitrate, got, tc.want)
		}
	}
}

func TestStorageKeys(t *testing.T) {
	assetID := "a1b2c3"

	if got, want := MasterKey(assetID), "processed/a1b2c3/hls/master.m3u8"; got != want {
		t.Errorf("MasterKey() = %q, want %q", got, want)
	}
	if got, want := VariantPlaylistKey(assetID, "720p"), "processed/a1b2c3/hls/720p/index.m3u8"; got != want {
		t.Errorf("VariantPlaylistKey() = %q, want %q", got, want)
	}
	if got, want := SegmentKey(assetID, "720p", "seg_003.ts"), "processed/a1b2c3/hls/720p/seg_003.ts"; got != want {
		t.Errorf("SegmentKey() = %q, want %q", got, want)
	}
	if got, want := ThumbnailKey(assetID), "processed/a1b2c3/thumbnail.jpg"; got != want {
		t.Errorf("ThumbnailKey() = %q, want %q", got, want)
	}
}

func TestSegmentPattern(t *testing.T) {
	if got, want := fmt.Sprintf(SegmentPattern, 7), "seg_007.ts"; got != want {
		t.Errorf("segment name for index 7 = %q, want %q", got, want)
	}
	if got, want := fmt.Sprintf(SegmentPattern, 123), "seg_123.ts"; got != want {
		t.Errorf("segment name for index 123 = %q, want %q", got, want)
	}
}

func TestRenderMaster(t *testing.T) {
	variants := []Variant{
		{Label: "360p", Width: 640, Height: 360, VideoBitrate: "800k"},
		{Label: "720p", Width: 1280, Height: 720, VideoBitrate: "2500k"},
	}
	expected := "#EXTM3U\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360\n" +
		"360p/index.m3u8\n" +
		"#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720\n" +
		"720p/index.m3u8\n"

	if got := RenderMaster(variants); got != expected {
		t.Errorf("RenderMaster() mismatch:\nGot:\n%s\nExpected:\n%s", got, expected)
	}
}

func TestRenderMasterEmpty(t *testing.T) {
	if got := RenderMaster(nil); got != "#EXTM3U\n" {
		t.Errorf("RenderMaster(nil) = %q, want header only", got)
	}
}
