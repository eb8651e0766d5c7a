package source

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/heyjunin/vodforge/pkg/errors"
	"github.com/heyjunin/vodforge/pkg/logger"
)

// DefaultURLTTL is how long a signed read URL stays valid. It must outlive
// the slowest single-variant encode, which streams from the URL for its
// whole duration.
const DefaultURLTTL = time.Hour

// URLSigner issues a time-limited read URL for a stored object. The URL must
// support range requests: both probing and encoding read the source
// piecewise, never as one full transfer.
type URLSigner interface {
	SignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

// Resolver turns a job's input reference into a URL the encoder can stream
// from. Three forms are accepted: s3://bucket/key references are signed,
// http(s) URLs pass through untouched, and anything else is treated as a
// local file path.
type Resolver struct {
	signer URLSigner
	ttl    time.Duration
}

// NewResolver creates a Resolver. signer may be nil when no object storage
// is configured; s3:// references then fail with an invalid input error.
func NewResolver(signer URLSigner, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultURLTTL
	}
	return &Resolver{signer: signer, ttl: ttl}
}

// Resolve maps inputRef to a streamable URL or local path.
func (r *Resolver) Resolve(ctx context.Context, inputRef string) (string, error) {
	switch {
	case strings.HasPrefix(inputRef, "s3://"):
		return r.signObjectURL(ctx, inputRef)
	case strings.HasPrefix(inputRef, "http://"), strings.HasPrefix(inputRef, "https://"):
		return inputRef, nil
	default:
		if _, err := os.Stat(inputRef); err != nil {
			return "", errors.Wrap(err, errors.InvalidInputError,
				"Input file not found", errors.ErrInvalidInputRef)
		}
		return inputRef, nil
	}
}

func (r *Resolver) signObjectURL(ctx context.Context, inputRef string) (string, error) {
	bucket, key, ok := SplitObjectRef(inputRef)
	if !ok {
		return "", errors.New(errors.InvalidInputError,
			"Malformed object reference", inputRef, errors.ErrInvalidInputRef)
	}
	if r.signer == nil {
		return "", errors.New(errors.InvalidInputError,
			"Object reference given but no storage is configured", inputRef,
			errors.ErrInvalidInputRef)
	}

	url, err := r.signer.SignGet(ctx, bucket, key, r.ttl)
	if err != nil {
		return "", errors.Wrap(err, errors.StorageError,
			"Failed to sign input URL", errors.ErrPresign)
	}

	logger.Debug("Signed input URL", "source", map[string]interface{}{
		"bucket": bucket,
		"key":    key,
		"ttl":    r.ttl.String(),
	})
	return url, nil
}

// SplitObjectRef parses an s3://bucket/key reference.
func SplitObjectRef(ref string) (bucket, key string, ok bool) {
	rest := strings.TrimPrefix(ref, "s3://")
	if rest == ref {
		return "", "", false
	}
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// ObjectRef builds the canonical s3://bucket/key form.
func ObjectRef(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
