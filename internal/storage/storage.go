// Package storage selects and wraps the blob store backends
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/UnendingLoop/watermarker/internal/storage/fsstorage"
	"github.com/UnendingLoop/watermarker/internal/storage/miniostorage"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/zlog"
)

const (
	BackendMinio = "minio"
	BackendFS    = "fs"
)

// ObjectStore - потоковый контракт бэкендов хранилища
type ObjectStore interface {
	Delete(ctx context.Context, key string) error
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
}

// Blobs is the byte-level get/put/delete view used for logos, settings and the password hash.
// Get returns model.ErrObjectNotFound (wrapped) for an absent key.
type Blobs interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// NewImgStorage connects to the configured backend, retrying MinIO until it answers or ctx ends.
func NewImgStorage(ctx context.Context, cfg *config.Config, delay time.Duration) (ObjectStore, error) {
	backend := cfg.GetString("STORAGE_BACKEND")
	if backend == BackendFS {
		dir := cfg.GetString("DATA_DIR")
		zlog.Logger.Info().Str("dir", dir).Msg("Using filesystem blob storage")
		return fsstorage.New(dir)
	}
	if backend != "" && backend != BackendMinio {
		return nil, fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
	}

	for {
		zlog.Logger.Info().Msg("Connecting to IMG-storage...")
		client, err := miniostorage.NewMinioClient(ctx, cfg)
		if err == nil {
			zlog.Logger.Info().Msg("Successfully connected IMG-storage!")
			return client, nil
		}
		zlog.Logger.Warn().Err(err).Dur("retry_in", delay).Msg("Failed to init connection to IMG-storage")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// ByteBlobs adapts an ObjectStore to Blobs.
type ByteBlobs struct {
	Store ObjectStore
}

func NewByteBlobs(s ObjectStore) *ByteBlobs {
	return &ByteBlobs{Store: s}
}

func (b *ByteBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	rc, _, err := b.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			zlog.Logger.Warn().Err(err).Str("key", key).Msg("Failed to close blob reader")
		}
	}()

	return io.ReadAll(rc)
}

func (b *ByteBlobs) Put(ctx context.Context, key string, data []byte) error {
	return b.Store.Put(ctx, key, int64(len(data)), http.DetectContentType(data), bytes.NewReader(data))
}

func (b *ByteBlobs) Delete(ctx context.Context, key string) error {
	return b.Store.Delete(ctx, key)
}
