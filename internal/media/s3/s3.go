// Package s3 uploads user media to an S3-compatible object store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"vidhub/internal/config"
	"vidhub/internal/lib/sl"
)

const partSize = 5 * 1024 * 1024

var ErrEmptyFile = errors.New("media: empty file")

type Uploader struct {
	logger   *slog.Logger
	uploader *manager.Uploader
	bucket   string
	baseURL  string
}

// New configures an uploader for the bucket described by cfg. Static
// credentials are used when given; otherwise the default AWS chain applies.
func New(ctx context.Context, logger *slog.Logger, cfg config.MediaConfig) (*Uploader, error) {
	const op = "media.s3.New"

	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("%s: bucket is required", op)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("%s: load aws config: %w", op, err)
	}

	endpoint := strings.TrimSuffix(cfg.Endpoint, "/")

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	baseURL := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if baseURL == "" {
		if endpoint != "" {
			baseURL = endpoint + "/" + cfg.Bucket
		} else {
			baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}

	return &Uploader{
		logger: logger,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = partSize
			u.LeavePartsOnError = false
		}),
		bucket:  cfg.Bucket,
		baseURL: baseURL,
	}, nil
}

// Upload stores the file at localPath under a fresh key and returns its public
// URL. The local file is removed whether or not the upload succeeds.
func (u *Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	const op = "media.s3.Upload"
	log := u.logger.With(slog.String("op", op), slog.String("path", localPath))

	defer func() {
		if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to remove local file", sl.Err(err))
		}
	}()

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if info.Size() == 0 {
		return "", fmt.Errorf("%s: %w", op, ErrEmptyFile)
	}

	ext := strings.ToLower(filepath.Ext(localPath))
	key := uuid.NewString() + ext

	input := &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if contentType := mime.TypeByExtension(ext); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := u.uploader.Upload(ctx, input); err != nil {
		log.Error("upload failed", sl.Err(err))
		return "", fmt.Errorf("%s: upload %s: %w", op, key, err)
	}

	log.Info("media uploaded", slog.String("key", key))

	return u.baseURL + "/" + key, nil
}
