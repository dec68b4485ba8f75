package tree

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ Tree = (*S3Tree)(nil)

// S3Config configures an S3-backed output tree, adapted from the
// teacher's storage.S3Config.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// symlinkMetaKey is the object metadata key S3Tree uses to emulate a
// filesystem symlink: S3 has no native link concept, so Symlink writes a
// zero-byte marker object carrying the relative target in its user
// metadata instead of a real file body.
const symlinkMetaKey = "npmmirror-symlink-target"

// S3Tree implements Tree against an S3-compatible bucket, adapted from the
// teacher's storage.S3.
type S3Tree struct {
	client   *s3.Client
	uploader *transfermanager.Client
	bucket   string
	prefix   string
}

// NewS3Tree constructs an S3-backed tree from cfg.
func NewS3Tree(ctx context.Context, cfg S3Config) (*S3Tree, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tree: loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &S3Tree{
		client:   client,
		uploader: transfermanager.New(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3Tree) key(path string) string {
	return filepath.Join(s.prefix, path)
}

func (s *S3Tree) Read(ctx context.Context, path string) (io.ReadCloser, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return out.Body, true, nil
}

func (s *S3Tree) Write(ctx context.Context, path string, data io.ReadCloser) error {
	defer data.Close()
	_, err := s.uploader.UploadObject(ctx, &transfermanager.UploadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("tree: uploading %q: %w", path, err)
	}
	return nil
}

func (s *S3Tree) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Tree) Remove(ctx context.Context, path string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		return fmt.Errorf("tree: removing %q: %w", path, err)
	}
	return nil
}

func (s *S3Tree) Symlink(ctx context.Context, path, target string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(s.key(path)),
		Body:     bytes.NewReader(nil),
		Metadata: map[string]string{symlinkMetaKey: target},
	})
	if err != nil {
		return fmt.Errorf("tree: symlinking %q -> %q: %w", path, target, err)
	}
	return nil
}

func (s *S3Tree) ReadLink(ctx context.Context, path string) (string, bool, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return "", false, nil
		}
		return "", false, err
	}
	target, ok := out.Metadata[symlinkMetaKey]
	if !ok {
		return "", false, nil
	}
	return target, true, nil
}
