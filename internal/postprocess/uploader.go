package postprocess

import (
	"context"
	"errors"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	apperrors "github.com/GriffinCanCode/tapedeck/internal/errors"
	"github.com/GriffinCanCode/tapedeck/internal/resilience"
)

// Uploader archives an encoded file under key.
type Uploader interface {
	Upload(ctx context.Context, path, key string) error
}

// MinioConfig holds object storage settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// objectStore is the subset of *minio.Client the uploader needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, path string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinioUploader puts files into a bucket behind a circuit breaker, so an
// unreachable store costs one fast failure per track instead of a timeout.
type MinioUploader struct {
	store   objectStore
	bucket  string
	breaker *resilience.Breaker
}

// NewMinioUploader connects to the store and creates the bucket if needed.
func NewMinioUploader(ctx context.Context, cfg MinioConfig) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ConfigInvalid, "create minio client").
			WithMetadata("endpoint", cfg.Endpoint)
	}
	return newMinioUploader(ctx, client, cfg.Bucket)
}

func newMinioUploader(ctx context.Context, store objectStore, bucket string) (*MinioUploader, error) {
	exists, err := store.BucketExists(ctx, bucket)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "check bucket").WithMetadata("bucket", bucket)
	}
	if !exists {
		if err := store.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apperrors.Wrap(err, apperrors.Unavailable, "create bucket").WithMetadata("bucket", bucket)
		}
		slog.Info("created archive bucket", "bucket", bucket)
	}
	return &MinioUploader{
		store:   store,
		bucket:  bucket,
		breaker: resilience.New(resilience.UploadConfig()),
	}, nil
}

// Upload puts path at key.
func (u *MinioUploader) Upload(ctx context.Context, path, key string) error {
	err := u.breaker.Execute(func() error {
		_, err := u.store.FPutObject(ctx, u.bucket, key, path, minio.PutObjectOptions{
			ContentType: uploadContentType,
		})
		return err
	})
	if errors.Is(err, resilience.ErrOpen) {
		return apperrors.Wrap(err, apperrors.Unavailable, "archive unavailable")
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.Unavailable, "upload failed").
			WithMetadata("bucket", u.bucket).
			WithMetadata("key", key)
	}
	return nil
}
