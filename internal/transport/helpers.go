package transport

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"
)

func errorCodeDefiner(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, model.ErrCommon500):
		return 500
	case errors.As(err, &tooLarge):
		return 413
	case errors.Is(err, model.ErrJobNotFound),
		errors.Is(err, model.ErrItemNotFound),
		errors.Is(err, model.ErrResultNotReady),
		errors.Is(err, model.ErrObjectNotFound):
		return 404
	case errors.Is(err, model.ErrUnauthorized):
		return 401
	case errors.Is(err, model.ErrPasswordAlreadySet):
		return 409
	case errors.Is(err, model.ErrAssetUnavailable):
		return 412
	case errors.Is(err, model.ErrIncorrectQuery),
		errors.Is(err, model.ErrIncorrectID),
		errors.Is(err, model.ErrIncorrectMode),
		errors.Is(err, model.ErrIncorrectVariant),
		errors.Is(err, model.ErrIncorrectKey),
		errors.Is(err, model.ErrEmptySource),
		errors.Is(err, model.ErrNoImages),
		errors.Is(err, model.ErrInvalidSettings),
		errors.Is(err, model.ErrInvalidPassword),
		errors.Is(err, model.ErrDecodeFailure),
		errors.Is(err, model.ErrUnsupportedFormat):
		return 400
	default:
		return 500
	}
}

func respondErr(ctx *ginext.Context, err error) {
	ctx.JSON(errorCodeDefiner(err), map[string]string{"error": err.Error()})
}

func closeFileFlow(res io.ReadCloser) {
	if res == nil {
		return
	}
	if err := res.Close(); err != nil {
		zlog.Logger.Warn().Err(err).Msg("Handler failed to close fileflow")
	}
}

// collectUploads opens every file sent under images[] (or images). The caller closes them.
func collectUploads(ctx *ginext.Context) ([]model.UploadedImage, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: multipart form expected", model.ErrIncorrectQuery)
	}

	headers := form.File["images[]"]
	if len(headers) == 0 {
		headers = form.File["images"]
	}
	if len(headers) == 0 {
		return nil, model.ErrNoImages
	}

	res := make([]model.UploadedImage, 0, len(headers))
	for _, h := range headers {
		img, err := openUpload(h)
		if err != nil {
			closeUploads(res)
			return nil, err
		}
		res = append(res, img)
	}
	return res, nil
}

func openUpload(h *multipart.FileHeader) (model.UploadedImage, error) {
	f, err := h.Open()
	if err != nil {
		return model.UploadedImage{}, fmt.Errorf("%w: %v", model.ErrEmptySource, err)
	}
	return model.UploadedImage{
		Name:        h.Filename,
		File:        f,
		ContentType: h.Header.Get("Content-Type"),
		Size:        h.Size,
	}, nil
}

func closeUploads(imgs []model.UploadedImage) {
	for _, img := range imgs {
		closeFileFlow(img.File)
	}
}

// formFile - одиночный файл формы
func formFile(ctx *ginext.Context, field string) (model.UploadedImage, error) {
	_, h, err := ctx.Request.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return model.UploadedImage{}, err
		}
		return model.UploadedImage{}, fmt.Errorf("%w: %s is required", model.ErrEmptySource, field)
	}
	return openUpload(h)
}
