package transport

import (
	"context"
	"io"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/gin-gonic/gin"
)

type mockJobService struct {
	createFn   func(ctx context.Context, d *model.JobCreateData) (*model.Job, error)
	deleteFn   func(ctx context.Context, id string) error
	getFn      func(ctx context.Context, id string) (*model.Job, error)
	loadItemFn func(ctx context.Context, id string, n int) (io.ReadCloser, string, error)
	getListFn  func(ctx context.Context, req *model.ListRequest) ([]model.Job, error)
}

func (m *mockJobService) Create(ctx context.Context, d *model.JobCreateData) (*model.Job, error) {
	return m.createFn(ctx, d)
}

func (m *mockJobService) Delete(ctx context.Context, id string) error {
	return m.deleteFn(ctx, id)
}

func (m *mockJobService) Get(ctx context.Context, id string) (*model.Job, error) {
	return m.getFn(ctx, id)
}

func (m *mockJobService) LoadItem(ctx context.Context, id string, n int) (io.ReadCloser, string, error) {
	return m.loadItemFn(ctx, id, n)
}

func (m *mockJobService) GetList(ctx context.Context, req *model.ListRequest) ([]model.Job, error) {
	return m.getListFn(ctx, req)
}

type mockWatermarkService struct {
	processFn func(ctx context.Context, mode string, images []model.UploadedImage) ([]model.BatchResult, error)
	customFn  func(ctx context.Context, image, logo model.UploadedImage, removeLightBg bool, lightThreshold int) ([]byte, error)
}

func (m *mockWatermarkService) Process(ctx context.Context, mode string, images []model.UploadedImage) ([]model.BatchResult, error) {
	return m.processFn(ctx, mode, images)
}

func (m *mockWatermarkService) Custom(ctx context.Context, image, logo model.UploadedImage, removeLightBg bool, lightThreshold int) ([]byte, error) {
	return m.customFn(ctx, image, logo, removeLightBg, lightThreshold)
}

// mockAdminService хранит всё в памяти; пароль сравнивается как есть
type mockAdminService struct {
	password string
	settings model.Settings
	logos    map[model.Variant][]byte
	kv       map[string][]byte

	uploadErr error
	verifyErr error
}

func newMockAdminService() *mockAdminService {
	return &mockAdminService{
		settings: model.DefaultSettings(),
		logos:    make(map[model.Variant][]byte),
		kv:       make(map[string][]byte),
	}
}

func (m *mockAdminService) UploadWatermark(_ context.Context, v model.Variant, data []byte) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if !v.Valid() {
		return model.ErrIncorrectVariant
	}
	m.logos[v] = data
	return nil
}

func (m *mockAdminService) DeleteWatermark(_ context.Context, v model.Variant) error {
	if !v.Valid() {
		return model.ErrIncorrectVariant
	}
	delete(m.logos, v)
	return nil
}

func (m *mockAdminService) WatermarkStatus(context.Context) ([]model.WatermarkInfo, error) {
	res := make([]model.WatermarkInfo, 0, len(model.Variants))
	for _, v := range model.Variants {
		_, ok := m.logos[v]
		res = append(res, model.WatermarkInfo{Variant: v, Present: ok})
	}
	return res, nil
}

func (m *mockAdminService) GetSettings(context.Context) (model.Settings, error) {
	return m.settings, nil
}

func (m *mockAdminService) SaveSettings(_ context.Context, s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.settings = s
	return nil
}

func (m *mockAdminService) HasPassword(context.Context) (bool, error) {
	return m.password != "", nil
}

func (m *mockAdminService) SetPassword(_ context.Context, raw string) error {
	if len(raw) < 4 {
		return model.ErrInvalidPassword
	}
	m.password = raw
	return nil
}

func (m *mockAdminService) VerifyPassword(_ context.Context, raw string) (bool, error) {
	if m.verifyErr != nil {
		return false, m.verifyErr
	}
	return m.password != "" && raw == m.password, nil
}

func (m *mockAdminService) SaveKV(_ context.Context, key string, value []byte) error {
	if key == "" {
		return model.ErrIncorrectKey
	}
	m.kv[key] = value
	return nil
}

func (m *mockAdminService) LoadKV(_ context.Context, key string) ([]byte, error) {
	v, ok := m.kv[key]
	if !ok {
		return nil, model.ErrObjectNotFound
	}
	return v, nil
}

func (m *mockAdminService) DeleteKV(_ context.Context, key string) error {
	delete(m.kv, key)
	return nil
}

func init() {
	gin.SetMode(gin.TestMode)
}
