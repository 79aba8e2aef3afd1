package export

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/capmd/capmd/pkg/models"
	"github.com/capmd/capmd/pkg/pathutil"
	"github.com/capmd/capmd/pkg/store"
)

// S3Config holds configuration for archive offload to object storage.
type S3Config struct {
	// Bucket is the target bucket name. Empty disables offload.
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (optional, SDK default if empty).
	Region string `mapstructure:"region" yaml:"region,omitempty"`

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`

	// KeyPrefix is prepended to archive keys. Should end with "/" if
	// non-empty.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	// ForcePathStyle forces path-style addressing (required for MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// Enabled reports whether offload is configured.
func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

// uploader matches the manager.Uploader method the service uses, so tests
// can substitute a fake.
type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Service builds workspace archives and offloads them when configured.
type Service struct {
	store    *store.Store
	cfg      S3Config
	uploader uploader
	now      func() time.Time
}

// NewService creates an export Service without offload support.
func NewService(s *store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

// NewServiceWithS3 creates an export Service with an S3 uploader built from
// cfg.
func NewServiceWithS3(ctx context.Context, s *store.Store, cfg S3Config) (*Service, error) {
	svc := &Service{store: s, cfg: cfg, now: time.Now}
	if !cfg.Enabled() {
		return svc, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	svc.uploader = manager.NewUploader(s3.NewFromConfig(awsCfg, s3Opts...))
	return svc, nil
}

// Export archives the live files under folder (or the whole workspace when
// folder is empty).
func (s *Service) Export(ctx context.Context, workspaceID, folder string, format Format) (*Archive, error) {
	prefix := ""
	if folder != "" && folder != "/" {
		p, err := pathutil.NormalizeFolder(folder)
		if err != nil {
			return nil, err
		}
		prefix = p
	}

	files, err := s.store.ListFilesByPrefix(ctx, workspaceID, prefix, true)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, models.ErrFileNotFound
	}
	return buildArchive(files, format, s.now())
}

// Offload uploads an archive to the configured bucket and returns the
// object key.
func (s *Service) Offload(ctx context.Context, workspaceID string, a *Archive) (string, error) {
	if s.uploader == nil {
		return "", fmt.Errorf("%w: export offload is not configured", models.ErrInvalidRequest)
	}

	key := s.cfg.KeyPrefix + workspaceID + "/" + a.Name
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.Data),
		ContentType: aws.String(a.ContentType),
		Metadata:    map[string]string{"checksum-sha256": a.Checksum},
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	return key, nil
}
