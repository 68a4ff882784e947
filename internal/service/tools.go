package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/UnendingLoop/watermarker/internal/model"
)

func validateQueryParams(req *model.ListRequest) {
	// Обрабатываем пустые значения, присваиваем дефолты если надо
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 30
	}
	if req.Sort == "" {
		req.Sort = model.ByCreated
	}
	if req.Order == "" {
		req.Order = model.OrderDESC
	}

	// Валидируем непустое поле типа сортировки
	req.Sort = strings.ToLower(req.Sort)
	req.Sort = strings.TrimSpace(req.Sort)
	switch {
	case strings.Contains(req.Sort, model.ByUUID):
		req.Sort = "uid"
	case strings.Contains(req.Sort, model.ByCreated):
		req.Sort = "created_at"
	default:
		req.Sort = "created_at" // по дефолту ставим сортировку по времени создания
	}

	// Валадируем непустой порядок
	req.Order = strings.ToLower(req.Order)
	req.Order = strings.TrimSpace(req.Order)
	switch {
	case strings.Contains(req.Order, model.OrderASC):
		req.Order = "ASC"
	case strings.Contains(req.Order, model.OrderDESC):
		req.Order = "DESC"
	default:
		req.Order = "DESC" // по дефолту ставим сортировку "новое-выше"
	}
}

// parseMode - пустой режим означает auto
func parseMode(raw string) (model.Mode, error) {
	mode := model.Mode(strings.ToLower(strings.TrimSpace(raw)))
	if mode == "" {
		return model.ModeAuto, nil
	}
	if !model.ModesMap[mode] {
		return "", model.ErrIncorrectMode
	}
	return mode, nil
}

func validateJobCreate(raw *model.JobCreateData) (model.Mode, error) {
	if raw == nil || len(raw.Images) == 0 {
		return "", model.ErrNoImages
	}

	mode, err := parseMode(raw.Mode)
	if err != nil {
		return "", err
	}

	// корректны ли исходники
	for _, img := range raw.Images {
		if err := validateUpload(img); err != nil {
			return "", err
		}
	}
	return mode, nil
}

func validateUpload(img model.UploadedImage) error {
	if img.File == nil || img.Size <= 0 {
		return model.ErrEmptySource
	}
	if !model.InImageTypeMap[img.ContentType] {
		return model.ErrUnsupportedFormat
	}
	return nil
}

// validatePassword - не короче 4 символов после обрезки и без пробелов внутри
func validatePassword(raw string) (string, error) {
	pw := strings.TrimSpace(raw)
	if utf8.RuneCountInString(pw) < 4 || strings.IndexFunc(pw, unicode.IsSpace) >= 0 {
		return "", model.ErrInvalidPassword
	}
	return pw, nil
}

var unsafeKVChars = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// sanitizeKVKey - как в старом key/value API: все лишнее заменяется на '_'
func sanitizeKVKey(raw string) (string, error) {
	key := unsafeKVChars.ReplaceAllString(strings.TrimSpace(raw), "_")
	if key == "" || key == model.KeyAdminPassword {
		return "", model.ErrIncorrectKey
	}
	return key, nil
}
