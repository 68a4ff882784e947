package transport

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/ginext"
)

const AdminPasswordHeader = "X-Admin-Password"

type AdminService interface {
	UploadWatermark(ctx context.Context, v model.Variant, data []byte) error
	DeleteWatermark(ctx context.Context, v model.Variant) error
	WatermarkStatus(ctx context.Context) ([]model.WatermarkInfo, error)
	GetSettings(ctx context.Context) (model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) error
	HasPassword(ctx context.Context) (bool, error)
	SetPassword(ctx context.Context, raw string) error
	VerifyPassword(ctx context.Context, raw string) (bool, error)
	SaveKV(ctx context.Context, key string, value []byte) error
	LoadKV(ctx context.Context, key string) ([]byte, error)
	DeleteKV(ctx context.Context, key string) error
}

type AdminHandler struct {
	service AdminService
}

func NewAdminHandler(svc AdminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

func (h AdminHandler) WatermarkStatus(ctx *ginext.Context) {
	res, err := h.service.WatermarkStatus(ctx.Request.Context())
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(200, res)
}

// UploadWatermark принимает логотип либо полем формы "logo", либо сырым телом запроса
func (h AdminHandler) UploadWatermark(ctx *ginext.Context) {
	v := model.Variant(ctx.Param("variant"))

	var data []byte
	var err error
	if strings.HasPrefix(ctx.ContentType(), "multipart/") {
		var logo model.UploadedImage
		if logo, err = formFile(ctx, "logo"); err != nil {
			respondErr(ctx, err)
			return
		}
		defer closeFileFlow(logo.File)
		data, err = io.ReadAll(logo.File)
	} else {
		data, err = io.ReadAll(ctx.Request.Body)
	}
	if err != nil {
		if errorCodeDefiner(err) == 413 {
			respondErr(ctx, err)
			return
		}
		respondErr(ctx, fmt.Errorf("%w: failed to read logo", model.ErrEmptySource))
		return
	}
	if len(data) == 0 {
		respondErr(ctx, model.ErrEmptySource)
		return
	}

	if err := h.service.UploadWatermark(ctx.Request.Context(), v, data); err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.Status(204)
}

func (h AdminHandler) DeleteWatermark(ctx *ginext.Context) {
	if err := h.service.DeleteWatermark(ctx.Request.Context(), model.Variant(ctx.Param("variant"))); err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.Status(204)
}

func (h AdminHandler) GetSettings(ctx *ginext.Context) {
	res, err := h.service.GetSettings(ctx.Request.Context())
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(200, res)
}

// SaveSettings - частичное обновление: непереданные поля остаются как были
func (h AdminHandler) SaveSettings(ctx *ginext.Context) {
	cur, err := h.service.GetSettings(ctx.Request.Context())
	if err != nil {
		respondErr(ctx, err)
		return
	}
	if err := ctx.ShouldBindJSON(&cur); err != nil {
		respondErr(ctx, fmt.Errorf("%w: %v", model.ErrInvalidSettings, err))
		return
	}

	if err := h.service.SaveSettings(ctx.Request.Context(), cur); err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(200, cur)
}

type passwordRequest struct {
	Password string `json:"password"`
}

// SetPassword - пока пароль не задан, ставится без авторизации; дальше только с текущим паролем
func (h AdminHandler) SetPassword(ctx *ginext.Context) {
	has, err := h.service.HasPassword(ctx.Request.Context())
	if err != nil {
		respondErr(ctx, err)
		return
	}
	if has {
		current := ctx.GetHeader(AdminPasswordHeader)
		if current == "" {
			respondErr(ctx, model.ErrPasswordAlreadySet)
			return
		}
		ok, err := h.service.VerifyPassword(ctx.Request.Context(), current)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		if !ok {
			respondErr(ctx, model.ErrUnauthorized)
			return
		}
	}

	var req passwordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondErr(ctx, model.ErrInvalidPassword)
		return
	}
	if err := h.service.SetPassword(ctx.Request.Context(), req.Password); err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.Status(204)
}

func (h AdminHandler) SaveKV(ctx *ginext.Context) {
	var req model.KVEntry
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondErr(ctx, fmt.Errorf("%w: {key, value} expected", model.ErrIncorrectQuery))
		return
	}
	if err := h.service.SaveKV(ctx.Request.Context(), req.Key, []byte(req.Value)); err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(200, map[string]bool{"success": true})
}

func (h AdminHandler) LoadKV(ctx *ginext.Context) {
	key := ctx.Query("key")
	data, err := h.service.LoadKV(ctx.Request.Context(), key)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(200, model.KVEntry{Key: key, Value: string(data)})
}

func (h AdminHandler) DeleteKV(ctx *ginext.Context) {
	var req model.KVEntry
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondErr(ctx, fmt.Errorf("%w: {key} expected", model.ErrIncorrectQuery))
		return
	}
	if err := h.service.DeleteKV(ctx.Request.Context(), req.Key); err != nil {
		respondErr(ctx, err)
		return
	}
	ctx.JSON(200, map[string]bool{"success": true})
}
