// Package source loads payloads for `wsm send` from a file, standard input
// or an S3 object, enforcing a size cap.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source errors.
var (
	ErrTooLarge     = errors.New("source: payload exceeds size limit")
	ErrInvalidS3URI = errors.New("source: invalid s3 uri")
	ErrNoS3Client   = errors.New("source: no s3 client configured")
)

// ObjectGetter is the part of *s3.Client used to fetch objects.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader resolves payload references.
type Loader struct {
	maxBytes int64
	s3       ObjectGetter
	stdin    io.Reader
}

// Option configures a Loader.
type Option func(*Loader)

// WithMaxBytes caps payload size. 0 means no limit.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// WithS3 sets the client used for s3:// references.
func WithS3(client ObjectGetter) Option {
	return func(l *Loader) { l.s3 = client }
}

// WithStdin replaces os.Stdin for the "-" reference.
func WithStdin(r io.Reader) Option {
	return func(l *Loader) { l.stdin = r }
}

// NewLoader creates a Loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{stdin: os.Stdin}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the payload named by ref: "-" for standard input,
// "s3://bucket/key" for an S3 object, anything else as a file path.
func (l *Loader) Load(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case ref == "-":
		return l.read(l.stdin)
	case strings.HasPrefix(ref, "s3://"):
		return l.loadS3(ctx, ref)
	default:
		f, err := os.Open(ref)
		if err != nil {
			return nil, fmt.Errorf("source: open %s: %w", ref, err)
		}
		defer f.Close()
		return l.read(f)
	}
}

func (l *Loader) loadS3(ctx context.Context, ref string) ([]byte, error) {
	if l.s3 == nil {
		return nil, ErrNoS3Client
	}
	bucket, key, err := ParseS3URI(ref)
	if err != nil {
		return nil, err
	}

	out, err := l.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("source: get %s: %w", ref, err)
	}
	defer out.Body.Close()

	if l.maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > l.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes, limit %d", ErrTooLarge, ref, *out.ContentLength, l.maxBytes)
	}
	return l.read(out.Body)
}

// read copies r with the size limit. One extra byte is read to detect
// overflow.
func (l *Loader) read(r io.Reader) ([]byte, error) {
	if l.maxBytes > 0 {
		r = io.LimitReader(r, l.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("source: read: %w", err)
	}
	if l.maxBytes > 0 && int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrTooLarge, l.maxBytes)
	}
	return data, nil
}

// ParseS3URI splits s3://bucket/key.
func ParseS3URI(ref string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(ref, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidS3URI, ref)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidS3URI, ref)
	}
	return bucket, key, nil
}
