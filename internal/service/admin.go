package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UnendingLoop/watermarker/internal/assets"
	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/UnendingLoop/watermarker/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// AssetCache - контракт кэша логотипов
type AssetCache interface {
	EnsureLoaded(ctx context.Context) (assets.Assets, error)
	Invalidate()
}

// SettingsStore - контракт хранилища настроек
type SettingsStore interface {
	Load(ctx context.Context) (model.Settings, error)
	Save(ctx context.Context, s model.Settings) error
}

// AdminService manages the logos, the watermark settings, the admin password and
// the raw key/value store.
type AdminService struct {
	blobs    storage.Blobs
	cache    AssetCache
	settings SettingsStore
	cost     int
}

func NewAdminService(blobs storage.Blobs, cache AssetCache, st SettingsStore) *AdminService {
	return &AdminService{blobs: blobs, cache: cache, settings: st, cost: bcrypt.DefaultCost}
}

// UploadWatermark stores a logo for the variant. The bytes must decode as an image.
func (a *AdminService) UploadWatermark(ctx context.Context, v model.Variant, data []byte) error {
	logger := mwlogger.LoggerFromContext(ctx)
	if !v.Valid() {
		return model.ErrIncorrectVariant
	}
	if _, err := imageproc.Decode(data); err != nil {
		return fmt.Errorf("%w: %v", model.ErrUnsupportedFormat, err)
	}

	if err := a.blobs.Put(ctx, model.AssetKey(v), data); err != nil {
		logger.Error().Err(err).Str("variant", string(v)).Msg("Failed to store watermark")
		return model.ErrCommon500
	}
	a.cache.Invalidate()
	return nil
}

func (a *AdminService) DeleteWatermark(ctx context.Context, v model.Variant) error {
	logger := mwlogger.LoggerFromContext(ctx)
	if !v.Valid() {
		return model.ErrIncorrectVariant
	}

	if err := a.blobs.Delete(ctx, model.AssetKey(v)); err != nil {
		logger.Error().Err(err).Str("variant", string(v)).Msg("Failed to delete watermark")
		return model.ErrCommon500
	}
	a.cache.Invalidate()
	return nil
}

// WatermarkStatus reports both variants as the cache currently sees them.
func (a *AdminService) WatermarkStatus(ctx context.Context) ([]model.WatermarkInfo, error) {
	loaded, err := a.cache.EnsureLoaded(ctx)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to load watermark cache")
		return nil, model.ErrCommon500
	}

	res := make([]model.WatermarkInfo, 0, len(model.Variants))
	for _, v := range model.Variants {
		info := model.WatermarkInfo{Variant: v}
		if t := loaded.Get(v); t != nil {
			info.Present = true
			info.Width, info.Height = t.Width, t.Height
			info.OriginalWidth, info.OriginalHeight = t.OriginalWidth, t.OriginalHeight
			info.AspectRatio = t.AspectRatio
		}
		res = append(res, info)
	}
	return res, nil
}

func (a *AdminService) GetSettings(ctx context.Context) (model.Settings, error) {
	s, err := a.settings.Load(ctx)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to load settings")
		return model.Settings{}, model.ErrCommon500
	}
	return s, nil
}

func (a *AdminService) SaveSettings(ctx context.Context, s model.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := a.settings.Save(ctx, s); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to save settings")
		return model.ErrCommon500
	}
	return nil
}

//---------------------- пароль

func (a *AdminService) HasPassword(ctx context.Context) (bool, error) {
	_, err := a.blobs.Get(ctx, model.KeyAdminPassword)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, model.ErrObjectNotFound):
		return false, nil
	}
	logger := mwlogger.LoggerFromContext(ctx)
	logger.Error().Err(err).Msg("Failed to read admin password")
	return false, model.ErrCommon500
}

// SetPassword validates and stores the password as a bcrypt hash.
func (a *AdminService) SetPassword(ctx context.Context, raw string) error {
	pw, err := validatePassword(raw)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pw), a.cost)
	if err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to hash admin password")
		return model.ErrCommon500
	}
	if err := a.blobs.Put(ctx, model.KeyAdminPassword, hash); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to store admin password")
		return model.ErrCommon500
	}
	return nil
}

// VerifyPassword reports whether raw matches the stored hash. No stored password
// means nothing matches.
func (a *AdminService) VerifyPassword(ctx context.Context, raw string) (bool, error) {
	hash, err := a.blobs.Get(ctx, model.KeyAdminPassword)
	if err != nil {
		if errors.Is(err, model.ErrObjectNotFound) {
			return false, nil
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Msg("Failed to read admin password")
		return false, model.ErrCommon500
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(strings.TrimSpace(raw))) == nil, nil
}

//---------------------- key/value

func (a *AdminService) SaveKV(ctx context.Context, rawKey string, value []byte) error {
	key, err := sanitizeKVKey(rawKey)
	if err != nil {
		return err
	}
	if err := a.blobs.Put(ctx, key, value); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Str("key", key).Msg("Failed to save kv entry")
		return model.ErrCommon500
	}
	a.invalidateIfAsset(key)
	return nil
}

func (a *AdminService) LoadKV(ctx context.Context, rawKey string) ([]byte, error) {
	key, err := sanitizeKVKey(rawKey)
	if err != nil {
		return nil, err
	}
	data, err := a.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, model.ErrObjectNotFound) {
			return nil, model.ErrObjectNotFound
		}
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Str("key", key).Msg("Failed to load kv entry")
		return nil, model.ErrCommon500
	}
	return data, nil
}

func (a *AdminService) DeleteKV(ctx context.Context, rawKey string) error {
	key, err := sanitizeKVKey(rawKey)
	if err != nil {
		return err
	}
	if err := a.blobs.Delete(ctx, key); err != nil {
		logger := mwlogger.LoggerFromContext(ctx)
		logger.Error().Err(err).Str("key", key).Msg("Failed to delete kv entry")
		return model.ErrCommon500
	}
	a.invalidateIfAsset(key)
	return nil
}

// логотип, записанный в обход UploadWatermark, тоже должен сбросить кэш
func (a *AdminService) invalidateIfAsset(key string) {
	if key == model.KeyWatermarkDark || key == model.KeyWatermarkLight {
		a.cache.Invalidate()
	}
}
