package pipeline

import (
	"context"

	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/model"
)

type mockAssets struct {
	ensureFn func(ctx context.Context) (assets.Assets, error)
}

func (m *mockAssets) EnsureLoaded(ctx context.Context) (assets.Assets, error) {
	return m.ensureFn(ctx)
}

type mockSettings struct {
	loadFn func(ctx context.Context) (model.Settings, error)
}

func (m *mockSettings) Load(ctx context.Context) (model.Settings, error) {
	return m.loadFn(ctx)
}
