package service

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/retry"
)

// MOCK RESPOSITORY

type mockRepo struct {
	createFn         func(ctx context.Context, j *model.Job) error
	getFn            func(ctx context.Context, id string) (*model.Job, error)
	getListFn        func(ctx context.Context, req *model.ListRequest) ([]model.Job, error)
	deleteFn         func(ctx context.Context, id string) error
	claimFn          func(ctx context.Context, id string) (bool, error)
	updateStatusFn   func(ctx context.Context, id string, st model.Status, msg model.StringSlice) error
	updateProgressFn func(ctx context.Context, id string, done int, progress float64) error
	saveResultFn     func(ctx context.Context, j *model.Job) error
	fetchOrphansFn   func(ctx context.Context, limit int) ([]string, error)
}

func (m *mockRepo) Create(ctx context.Context, j *model.Job) error {
	return m.createFn(ctx, j)
}

func (m *mockRepo) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	return m.getListFn(ctx, req)
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockRepo) Claim(ctx context.Context, id string) (bool, error) {
	return m.claimFn(ctx, id)
}

func (m *mockRepo) UpdateStatus(ctx context.Context, id string, st model.Status, msg model.StringSlice) error {
	return m.updateStatusFn(ctx, id, st, msg)
}

func (m *mockRepo) UpdateProgress(ctx context.Context, id string, done int, progress float64) error {
	return m.updateProgressFn(ctx, id, done, progress)
}

func (m *mockRepo) SaveResult(ctx context.Context, j *model.Job) error {
	return m.saveResultFn(ctx, j)
}

func (m *mockRepo) FetchOrphans(ctx context.Context, limit int) ([]string, error) {
	return m.fetchOrphansFn(ctx, limit)
}

// MOCK STORAGE

type mockStorage struct {
	putFn    func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	getFn    func(ctx context.Context, key string) (io.ReadCloser, string, error)
	deleteFn func(ctx context.Context, key string) error
}

func (m *mockStorage) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.getFn(ctx, key)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.deleteFn(ctx, key)
}

// MOCK PUBLISHER

type mockPublisher struct {
	sendFn func(ctx context.Context, s retry.Strategy, key []byte, v []byte) error
}

func (m *mockPublisher) SendWithRetry(ctx context.Context, s retry.Strategy, key []byte, v []byte) error {
	return m.sendFn(ctx, s, key, v)
}

// MOCK BLOBS - простое in-memory хранилище

type memBlobs struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	putErr error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, model.ErrObjectNotFound
	}
	return v, nil
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = data
	return nil
}

func (m *memBlobs) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// MOCK CACHE

type mockCache struct {
	ensureFn    func(ctx context.Context) (assets.Assets, error)
	invalidated int
}

func (m *mockCache) EnsureLoaded(ctx context.Context) (assets.Assets, error) {
	return m.ensureFn(ctx)
}

func (m *mockCache) Invalidate() {
	m.invalidated++
}

// MOCK SETTINGS

type mockSettings struct {
	loadFn func(ctx context.Context) (model.Settings, error)
	saveFn func(ctx context.Context, s model.Settings) error
}

func (m *mockSettings) Load(ctx context.Context) (model.Settings, error) {
	return m.loadFn(ctx)
}

func (m *mockSettings) Save(ctx context.Context, s model.Settings) error {
	return m.saveFn(ctx, s)
}

// MOCK PIPELINE

type mockBatcher struct {
	processFn func(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error)
	customFn  func(ctx context.Context, src, logo []byte, policy imageproc.TrimPolicy) ([]byte, error)
}

func (m *mockBatcher) ProcessBatch(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error) {
	return m.processFn(ctx, items, mode, onProgress)
}

func (m *mockBatcher) WatermarkWithAsset(ctx context.Context, src, logo []byte, policy imageproc.TrimPolicy) ([]byte, error) {
	return m.customFn(ctx, src, logo, policy)
}

// FAKE FILE

type fakeFile struct {
	*bytes.Reader
}

func (f *fakeFile) Close() error {
	return nil
}

func newFakeFile(s string) *fakeFile {
	return &fakeFile{Reader: bytes.NewReader([]byte(s))}
}
