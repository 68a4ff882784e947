package worker

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"sync"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

type mockWorkerService struct {
	claimFn    func(ctx context.Context, id string) (bool, error)
	getFn      func(ctx context.Context, id string) (*model.Job, error)
	progressFn func(ctx context.Context, id string, done int, progress float64) error
	failFn     func(ctx context.Context, id string, reason string) error
	saveFn     func(ctx context.Context, job *model.Job) error
}

func (m *mockWorkerService) Claim(ctx context.Context, id string) (bool, error) {
	return m.claimFn(ctx, id)
}

func (m *mockWorkerService) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockWorkerService) ReportProgress(ctx context.Context, id string, done int, progress float64) error {
	if m.progressFn == nil {
		return nil
	}
	return m.progressFn(ctx, id, done, progress)
}

func (m *mockWorkerService) Fail(ctx context.Context, id string, reason string) error {
	return m.failFn(ctx, id, reason)
}

func (m *mockWorkerService) SaveResult(ctx context.Context, job *model.Job) error {
	return m.saveFn(ctx, job)
}

func (m *mockWorkerService) ResultKey(uid uuid.UUID, n int) string {
	return "res/" + uid.String() + "/" + strconv.Itoa(n) + ".jpg"
}

//----------------------------------

// memStorage - хранилище в памяти; ключи из getErr отдают ошибку
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  map[string]error
	putErr  error
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte), getErr: make(map[string]error)}
}

func (m *memStorage) Get(_ context.Context, key string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.getErr[key]; err != nil {
		return nil, "", err
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, "", model.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), "", nil
}

func (m *memStorage) Put(_ context.Context, key string, _ int64, _ string, r io.Reader) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

//----------------------------------

type mockBatcher struct {
	processFn func(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error)
}

func (m *mockBatcher) ProcessBatch(ctx context.Context, items []model.BatchItem, mode model.Mode, onProgress model.ProgressFunc) ([]model.BatchResult, error) {
	return m.processFn(ctx, items, mode, onProgress)
}

type mockCommitter struct {
	mu        sync.Mutex
	committed []kafkago.Message
}

func (m *mockCommitter) Commit(_ context.Context, msg kafkago.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, msg)
	return nil
}

func (m *mockCommitter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}
