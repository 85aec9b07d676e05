package svg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dsedov/penpal-studio/pkg/canvas"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "image/svg+xml"

// Destination receives a rendered document.
type Destination interface {
	Write(ctx context.Context, data []byte) error
}

// FileDestination writes to a local path, creating parent directories.
type FileDestination struct {
	Path string
}

// Write replaces the file at d.Path with data.
func (d FileDestination) Write(_ context.Context, data []byte) error {
	if dir := filepath.Dir(d.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(d.Path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", d.Path, err)
	}
	return nil
}

// S3Config selects the bucket endpoint for s3:// targets.
type S3Config struct {
	Region   string
	Endpoint string // non-empty enables path-style addressing (MinIO and similar)
}

// S3Destination uploads to an S3-compatible bucket.
type S3Destination struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Destination creates an S3 destination for bucket/key.
func NewS3Destination(ctx context.Context, bucket, key string, cfg S3Config) (*S3Destination, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}
	return &S3Destination{
		client: s3.NewFromConfig(awsCfg, s3opts...),
		bucket: bucket,
		key:    key,
	}, nil
}

// Bucket returns the target bucket.
func (d *S3Destination) Bucket() string { return d.bucket }

// Key returns the target object key.
func (d *S3Destination) Key() string { return d.key }

// Write uploads data as the configured object.
func (d *S3Destination) Write(ctx context.Context, data []byte) error {
	contentType := ContentType
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(d.key),
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

// ParseS3 splits an s3://bucket/key target. ok is false for other targets.
func ParseS3(target string) (bucket, key string, ok bool, err error) {
	rest, found := strings.CutPrefix(target, "s3://")
	if !found {
		return "", "", false, nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", true, fmt.Errorf("invalid S3 target %q, want s3://bucket/key", target)
	}
	return bucket, key, true, nil
}

// Open returns the destination for target: s3://bucket/key uploads to S3,
// anything else is a local path.
func Open(ctx context.Context, target string, cfg S3Config) (Destination, error) {
	if target == "" {
		return nil, fmt.Errorf("no output file specified")
	}
	bucket, key, isS3, err := ParseS3(target)
	if err != nil {
		return nil, err
	}
	if isS3 {
		return NewS3Destination(ctx, bucket, key, cfg)
	}
	return FileDestination{Path: target}, nil
}

// Export renders c and writes it to dest.
func Export(ctx context.Context, c *canvas.Canvas, dest Destination, opts Options) error {
	data, err := Render(c, opts)
	if err != nil {
		return err
	}
	return dest.Write(ctx, data)
}
