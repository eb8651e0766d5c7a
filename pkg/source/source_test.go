package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/heyjunin/vodforge/pkg/errors"
)

type fakeSigner struct {
	bucket string
	key    string
	ttl    time.Duration
	url    string
	err    error
}

func (f *fakeSigner) SignGet(_ context.Context, bucket, key string, ttl time.Duration) (string, error) {
	f.bucket, f.key, f.ttl = bucket, key, ttl
	return f.url, f.err
}

func TestResolveObjectRef(t *testing.T) {
	signer := &fakeSigner{url: "https://storage.example/signed"}
	r := NewResolver(signer, 30*time.Minute)

	url, err := r.Resolve(context.Background(), "s3://videos/uploads/raw.mp4")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if url != "https://storage.example/signed" {
		t.Errorf("Resolve = %q, want signed URL", url)
	}
	if signer.bucket != "videos" || signer.key != "uploads/raw.mp4" {
		t.Errorf("signed bucket/key = %q/%q, want videos/uploads/raw.mp4", signer.bucket, signer.key)
	}
	if signer.ttl != 30*time.Minute {
		t.Errorf("signed ttl = %v, want 30m", signer.ttl)
	}
}

func TestResolveHTTPPassthrough(t *testing.T) {
	r := NewResolver(nil, 0)
	for _, ref := range []string{"http://cdn.example/a.mp4", "https://cdn.example/a.mp4"} {
		url, err := r.Resolve(context.Background(), ref)
		if err != nil {
			t.Errorf("Resolve(%q) returned error: %v", ref, err)
			continue
		}
		if url != ref {
			t.Errorf("Resolve(%q) = %q, want passthrough", ref, url)
		}
	}
}

func TestResolveLocalPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.mp4")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	r := NewResolver(nil, 0)
	url, err := r.Resolve(context.Background(), path)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if url != path {
		t.Errorf("Resolve = %q, want local path passthrough", url)
	}
}

func TestResolveMissingLocalPath(t *testing.T) {
	r := NewResolver(nil, 0)
	_, err := r.Resolve(context.Background(), filepath.Join(t.TempDir(), "absent.mp4"))
	if err == nil {
		t.Fatal("expected error for missing local file")
	}
	if !errors.IsType(err, errors.InvalidInputError) {
		t.Errorf("error type = %v, want InvalidInputError", errors.TypeOf(err))
	}
}

func TestResolveMalformedObjectRef(t *testing.T) {
	r := NewResolver(&fakeSigner{}, 0)
	for _, ref := range []string{"s3://", "s3://bucketonly", "s3:///key", "s3://bucket/"} {
		_, err := r.Resolve(context.Background(), ref)
		if err == nil {
			t.Errorf("Resolve(%q) expected error", ref)
			continue
		}
		if !errors.IsType(err, errors.InvalidInputError) {
			t.Errorf("Resolve(%q) error type = %v, want InvalidInputError", ref, errors.TypeOf(err))
		}
	}
}

func TestResolveObjectRefWithoutSigner(t *testing.T) {
	r := NewResolver(nil, 0)
	_, err := r.Resolve(context.Background(), "s3://videos/raw.mp4")
	if err == nil {
		t.Fatal("expected error when no signer is configured")
	}
	if !errors.IsType(err, errors.InvalidInputError) {
		t.Errorf("error type = %v, want InvalidInputError", errors.TypeOf(err))
	}
}

func TestObjectRefRoundTrip(t *testing.T) {
	ref := ObjectRef("videos", "uploads/raw.mp4")
	if ref != "s3://videos/uploads/raw.mp4" {
		t.Fatalf("ObjectRef = %q", ref)
	}
	bucket, key, ok := SplitObjectRef(ref)
	if !ok || bucket != "videos" || key != "uploads/raw.mp4" {
		t.Errorf("SplitObjectRef(%q) = %q, %q, %v", ref, bucket, key, ok)
	}
}
