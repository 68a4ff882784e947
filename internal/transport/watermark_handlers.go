package transport

import (
	"context"
	"fmt"
	"strconv"

	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/ginext"
)

type WatermarkService interface {
	Process(ctx context.Context, mode string, images []model.UploadedImage) ([]model.BatchResult, error)
	Custom(ctx context.Context, image, logo model.UploadedImage, removeLightBg bool, lightThreshold int) ([]byte, error)
}

type WatermarkHandler struct {
	service WatermarkService
}

func NewWatermarkHandler(svc WatermarkService) *WatermarkHandler {
	return &WatermarkHandler{service: svc}
}

// Process - синхронная обработка батча, результаты в base64 внутри JSON
func (h WatermarkHandler) Process(ctx *ginext.Context) {
	images, err := collectUploads(ctx)
	if err != nil {
		respondErr(ctx, err)
		return
	}
	defer closeUploads(images)

	mode := ctx.Query("mode")
	if mode == "" {
		mode = ctx.PostForm("mode")
	}

	res, err := h.service.Process(ctx.Request.Context(), mode, images)
	if err != nil {
		respondErr(ctx, err)
		return
	}

	ctx.JSON(200, res)
}

// Custom - одна картинка и свой логотип в том же запросе, ответ - JPEG
func (h WatermarkHandler) Custom(ctx *ginext.Context) {
	image, err := formFile(ctx, "image")
	if err != nil {
		respondErr(ctx, err)
		return
	}
	defer closeFileFlow(image.File)

	logo, err := formFile(ctx, "logo")
	if err != nil {
		respondErr(ctx, err)
		return
	}
	defer closeFileFlow(logo.File)

	removeLight := false
	if raw := ctx.PostForm("remove_light_bg"); raw != "" {
		if removeLight, err = strconv.ParseBool(raw); err != nil {
			respondErr(ctx, fmt.Errorf("%w: remove_light_bg must be a boolean", model.ErrIncorrectQuery))
			return
		}
	}

	threshold := imageproc.DarkLightThreshold
	if raw := ctx.PostForm("light_threshold"); raw != "" {
		if threshold, err = strconv.Atoi(raw); err != nil {
			respondErr(ctx, fmt.Errorf("%w: light_threshold must be an integer", model.ErrIncorrectQuery))
			return
		}
	}

	out, err := h.service.Custom(ctx.Request.Context(), image, logo, removeLight, threshold)
	if err != nil {
		respondErr(ctx, err)
		return
	}

	ctx.Data(200, model.JPEG, out)
}
