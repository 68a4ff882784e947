// Package miniostorage provides structure to work with minio-storage
package miniostorage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

type MinioStorage struct {
	bucket string
	client *minio.Client
}

func NewMinioClient(ctx context.Context, cfg *config.Config) (*MinioStorage, error) {
	bucket := cfg.GetString("BUCKET_NAME")

	if bucket == "" {
		bucket = "watermarker"
		zlog.Logger.Warn().Str("bucket", bucket).Msg("Bucket name is empty. Using default value")
	}

	user := cfg.GetString("MINIO_USER")
	pass := cfg.GetString("MINIO_PASS")
	addr := cfg.GetString("MINIO_CONTAINER_NAME")

	// подключаемся к минио - создаем клиента
	strg, err := minio.New(addr+":9000", &minio.Options{
		Creds:  credentials.NewStaticV4(user, pass, ""),
		Secure: false,
	})
	if err != nil {
		return nil, err
	}

	// создаем бакет если его нет
	if err := ensureBucket(ctx, strg, bucket); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket %q in MinIO: %w", bucket, err)
	}

	return &MinioStorage{bucket: bucket, client: strg}, nil
}

func (s *MinioStorage) Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}

	if _, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return err
	}

	return nil
}

// Delete - S3 не ругается на удаление отсутствующего ключа, нам это и нужно
func (s *MinioStorage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	res, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", mapErr(err)
	}

	// GetObject ленивый - реальный запрос уходит только на Stat/Read
	resStat, err := res.Stat()
	if err != nil {
		_ = res.Close()
		return nil, "", mapErr(err)
	}

	return res, resStat.ContentType, nil
}

func mapErr(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", model.ErrObjectNotFound, err)
	}
	return err
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}
