// Package fsstorage keeps blobs as plain files under a root directory
package fsstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/UnendingLoop/watermarker/internal/model"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9\-_./]`)

// ErrBadKey - пустой ключ или попытка выйти за пределы корня
var ErrBadKey = errors.New("invalid storage key")

type FileStorage struct {
	root string
}

func New(root string) (*FileStorage, error) {
	if root == "" {
		root = "./data"
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir %q: %w", abs, err)
	}
	return &FileStorage{root: abs}, nil
}

// SanitizeKey replaces every char outside [a-zA-Z0-9-_./] with '_' and refuses
// keys that are empty or contain a ".." segment.
func SanitizeKey(key string) (string, error) {
	key = strings.Trim(unsafeKeyChars.ReplaceAllString(key, "_"), "/")
	if key == "" {
		return "", ErrBadKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", fmt.Errorf("%w: %q", ErrBadKey, key)
		}
	}
	return key, nil
}

func (s *FileStorage) path(key string) (string, error) {
	clean, err := SanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FileStorage) Put(ctx context.Context, key string, _ int64, _ string, r io.Reader) error {
	if r == nil {
		return errors.New("nil reader passed to storage.Put")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}

	// пишем во временный файл и переименовываем - читатель не увидит половину файла
	tmp, err := os.CreateTemp(filepath.Dir(p), ".put-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func (s *FileStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	p, err := s.path(key)
	if err != nil {
		return nil, "", err
	}

	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("%w: %s", model.ErrObjectNotFound, key)
		}
		return nil, "", err
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = f.Close()
		return nil, "", err
	}

	return f, http.DetectContentType(head[:n]), nil
}

func (s *FileStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
