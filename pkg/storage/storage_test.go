package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDirStoreUploadAndDelete(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()

	key := "processed/asset1/hls/240p/index.m3u8"
	body := "#EXTM3U\n"
	err = store.Upload(ctx, key, strings.NewReader(body), UploadOptions{
		ContentType:  "application/x-mpegURL",
		CacheControl: "no-cache",
	})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	data, err := os.ReadFile(store.PublicURL(key))
	if err != nil {
		t.Fatalf("reading stored object: %v", err)
	}
	if string(data) != body {
		t.Errorf("stored content = %q, want %q", data, body)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(store.PublicURL(key)); !os.IsNotExist(err) {
		t.Errorf("object still present after Delete")
	}

	// Deleting a missing object is not an error.
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("Delete of missing object: %v", err)
	}
}

func TestDirStoreUploadOverwrites(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	ctx := context.Background()

	for _, body := range []string{"first", "second"} {
		if err := store.Upload(ctx, "a/b.txt", strings.NewReader(body), UploadOptions{}); err != nil {
			t.Fatalf("Upload: %v", err)
		}
	}
	data, err := os.ReadFile(store.PublicURL("a/b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("content = %q, want last write", data)
	}
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "seg_000.ts")
	if err := os.WriteFile(local, []byte("segment-bytes"), 0644); err != nil {
		t.Fatal(err)
	}

	store, err := NewDirStore(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	err = UploadFile(context.Background(), store, local, "hls/240p/seg_000.ts", UploadOptions{})
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}

	data, err := os.ReadFile(store.PublicURL("hls/240p/seg_000.ts"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "segment-bytes" {
		t.Errorf("content = %q", data)
	}
}

func TestUploadFileMissingLocal(t *testing.T) {
	store, err := NewDirStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDirStore: %v", err)
	}
	err = UploadFile(context.Background(), store, "/nonexistent/path.ts", "k", UploadOptions{})
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
}

func TestS3StorePublicURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
		key  string
		want string
	}{
		{
			name: "cdn base",
			cfg:  S3Config{Bucket: "videos", Region: "us-east-1", PublicBaseURL: "https://cdn.example.com/"},
			key:  "processed/a/thumbnail.jpg",
			want: "https://cdn.example.com/processed/a/thumbnail.jpg",
		},
		{
			name: "custom endpoint",
			cfg:  S3Config{Bucket: "videos", Endpoint: "http://localhost:9000"},
			key:  "processed/a/hls/master.m3u8",
			want: "http://localhost:9000/videos/processed/a/hls/master.m3u8",
		},
		{
			name: "aws default",
			cfg:  S3Config{Bucket: "videos", Region: "eu-west-2"},
			key:  "x.ts",
			want: "https://videos.s3.eu-west-2.amazonaws.com/x.ts",
		},
	}
	for _, tc := range cases {
		s := &S3Store{cfg: tc.cfg}
		if got := s.PublicURL(tc.key); got != tc.want {
			t.Errorf("%s: PublicURL = %q, want %q", tc.name, got, tc.want)
		}
	}
}
