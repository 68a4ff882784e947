// Package model provides data-structs for internal app-usage
package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
)

type (
	Variant     string
	Mode        string
	Orientation string
	Status      string
)

const (
	VariantDark  Variant = "dark"
	VariantLight Variant = "light"
)

// Variants - порядок важен: dark всегда готовится и проверяется первым
var Variants = []Variant{VariantDark, VariantLight}

const (
	ModeAuto  Mode = "auto"
	ModeDark  Mode = "dark"
	ModeLight Mode = "light"
)

var ModesMap = map[Mode]bool{
	ModeAuto:  true,
	ModeDark:  true,
	ModeLight: true,
}

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// OrientationOf - квадрат считается landscape
func OrientationOf(width, height int) Orientation {
	if height > width {
		return Portrait
	}
	return Landscape
}

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusFailed     Status = "failed"
	StatusDone       Status = "done"
)

var StatusMap = map[Status]bool{
	StatusCreated:    true,
	StatusInProgress: true,
	StatusFailed:     true,
	StatusDone:       true,
}

// Ключи в blob-хранилище
const (
	KeyWatermarkDark  = "watermark-dark"
	KeyWatermarkLight = "watermark-light"
	KeySettings       = "settings"
	KeyAdminPassword  = "admin-password"
)

// AssetKey returns the blob key the raw logo of the variant is stored under.
func AssetKey(v Variant) string {
	if v == VariantLight {
		return KeyWatermarkLight
	}
	return KeyWatermarkDark
}

func (v Variant) Valid() bool {
	return v == VariantDark || v == VariantLight
}

//---------------------

// Settings - WatermarkSettings, хранится JSON-ом под ключом "settings"
type Settings struct {
	SizePercentPortrait  float64 `json:"watermarkSizePortrait"`
	SizePercentLandscape float64 `json:"watermarkSizeLandscape"`
	BottomMarginCm       float64 `json:"bottomMargin"`
	DPI                  int     `json:"dpi"`
	Quality              int     `json:"quality"`
	BrightnessThreshold  float64 `json:"brightnessThreshold"`
}

func DefaultSettings() Settings {
	return Settings{
		SizePercentPortrait:  20,
		SizePercentLandscape: 20,
		BottomMarginCm:       0.1,
		DPI:                  300,
		Quality:              95,
		BrightnessThreshold:  128,
	}
}

// SizePercent picks the size setting for the orientation.
func (s Settings) SizePercent(o Orientation) float64 {
	if o == Portrait {
		return s.SizePercentPortrait
	}
	return s.SizePercentLandscape
}

func (s Settings) Validate() error {
	switch {
	case s.SizePercentPortrait <= 0 || s.SizePercentPortrait > 100:
		return fmt.Errorf("%w: portrait size must be in (0,100]", ErrInvalidSettings)
	case s.SizePercentLandscape <= 0 || s.SizePercentLandscape > 100:
		return fmt.Errorf("%w: landscape size must be in (0,100]", ErrInvalidSettings)
	case s.BottomMarginCm < 0:
		return fmt.Errorf("%w: bottom margin must be >= 0", ErrInvalidSettings)
	case s.DPI <= 0:
		return fmt.Errorf("%w: dpi must be > 0", ErrInvalidSettings)
	case s.Quality < 1 || s.Quality > 100:
		return fmt.Errorf("%w: quality must be in [1,100]", ErrInvalidSettings)
	case s.BrightnessThreshold < 0 || s.BrightnessThreshold > 255:
		return fmt.Errorf("%w: brightness threshold must be in [0,255]", ErrInvalidSettings)
	}
	return nil
}

//---------------------

type BatchItem struct {
	Name string
	Data []byte
}

type BatchResult struct {
	Name        string      `json:"name"`
	Output      []byte      `json:"output,omitempty"`
	Variant     Variant     `json:"variant,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Brightness  *float64    `json:"brightness,omitempty"`
	Succeeded   bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
}

// ProgressFunc вызывается после каждого элемента батча
type ProgressFunc func(percent float64, done, total int)

// WatermarkInfo - состояние загруженного логотипа для админки
type WatermarkInfo struct {
	Variant        Variant `json:"variant"`
	Present        bool    `json:"present"`
	Width          int     `json:"width,omitempty"`
	Height         int     `json:"height,omitempty"`
	OriginalWidth  int     `json:"original_width,omitempty"`
	OriginalHeight int     `json:"original_height,omitempty"`
	AspectRatio    float64 `json:"aspect_ratio,omitempty"`
}

// KVEntry - тело запросов key/value-хранилища
type KVEntry struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

//---------------------

type Job struct {
	UID       uuid.UUID   `json:"uid"`
	Mode      Mode        `json:"mode"`
	Status    Status      `json:"status"`
	Total     int         `json:"total"`
	Done      int         `json:"done"`
	Progress  float64     `json:"progress"`
	Items     JobItems    `json:"items"`
	ErrMsg    StringSlice `json:"error,omitempty"`
	CreatedAt *time.Time  `json:"created_at,omitempty"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

type JobItem struct {
	Name        string      `json:"name"`
	SourceKey   string      `json:"-"`
	ContentType string      `json:"content_type,omitempty"`
	ResultKey   string      `json:"-"`
	Variant     Variant     `json:"variant,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Brightness  *float64    `json:"brightness,omitempty"`
	Succeeded   bool        `json:"success"`
	Error       string      `json:"error,omitempty"`
}

// jobItemRow - то, что реально лежит в JSONB: ключи хранилища не отдаются наружу, но в базе нужны
type jobItemRow struct {
	JobItem
	SourceKey string `json:"source_key"`
	ResultKey string `json:"result_key,omitempty"`
}

//-------------------

type ListRequest struct {
	Page  int    `form:"page"`
	Limit int    `form:"limit"`
	Sort  string `form:"sort"`
	Order string `form:"order"`
}

const (
	ByUUID    = "uid"
	ByCreated = "created"
	OrderASC  = "ascend"
	OrderDESC = "descend"
)

type UploadedImage struct {
	Name        string
	File        multipart.File
	ContentType string
	Size        int64
}

type JobCreateData struct {
	Mode   string
	Images []UploadedImage
}

// ------------------

var (
	ErrCommon500          error = errors.New("something went wrong. Try again later")         // 500
	ErrIncorrectQuery     error = errors.New("incorrect query parameters")                    // 400
	ErrIncorrectID        error = errors.New("incorrect job UUID")                            // 400
	ErrJobNotFound        error = errors.New("specified job UUID doesn't exist")              // 404
	ErrItemNotFound       error = errors.New("specified job item doesn't exist")              // 404
	ErrResultNotReady     error = errors.New("requested job is not processed yet")            // 404
	ErrIncorrectMode      error = errors.New("mode must be one of auto, dark, light")         // 400
	ErrIncorrectVariant   error = errors.New("variant must be dark or light")                 // 400
	ErrEmptySource        error = errors.New("empty/incorrect source image provided")         // 400
	ErrNoImages           error = errors.New("at least one image is required")                // 400
	ErrUnsupportedFormat  error = errors.New("unsupported image format")                      // 400
	ErrInvalidSettings    error = errors.New("invalid watermark settings")                    // 400
	ErrInvalidPassword    error = errors.New("password must be 4+ characters without spaces") // 400
	ErrUnauthorized       error = errors.New("admin password required")                       // 401
	ErrPasswordAlreadySet error = errors.New("admin password is already set")                 // 409
	ErrObjectNotFound     error = errors.New("object not found in storage")                   // 404
	ErrIncorrectKey       error = errors.New("key is empty or reserved")                      // 400

	ErrDecodeFailure    error = errors.New("failed to decode image")              // per item
	ErrCompositeFailure error = errors.New("failed to composite watermark")       // per item
	ErrAssetMissing     error = errors.New("watermark asset is not available")    // per call
	ErrAssetUnavailable error = errors.New("logos not configured")                // 412, batch-fatal
	ErrPrepareTimeout   error = errors.New("timed out preparing watermark asset") // internal
	ErrEmptyBitmap      error = errors.New("bitmap has zero width or height")     // per call
)

//--------------------

const (
	JPEG = "image/jpeg"
	PNG  = "image/png"
	GIF  = "image/gif"
)

var GetImageFileExt = map[string]string{
	JPEG: ".jpg",
	PNG:  ".png",
	GIF:  ".gif",
}

var InImageTypeMap = map[string]bool{
	JPEG: true,
	PNG:  true,
	GIF:  true,
}

//--------------------

type StringSlice []string

func (s *StringSlice) Scan(value any) error {
	if value == nil {
		*s = []string{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for StringSlice")
	}

	if err := json.Unmarshal(b, s); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to []StringSlice: %w", err)
	}
	return nil
}

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 || s == nil {
		return []byte(`[]`), nil
	}
	res, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal []StringSlice to JSONB: %w", err)
	}

	return res, nil
}

type JobItems []JobItem

func (j *JobItems) Scan(value any) error {
	if value == nil {
		*j = JobItems{}
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("invalid type for JobItems")
	}

	var rows []jobItemRow
	if err := json.Unmarshal(b, &rows); err != nil {
		return fmt.Errorf("failed to unmarshal JSONB to JobItems: %w", err)
	}

	items := make(JobItems, 0, len(rows))
	for _, r := range rows {
		it := r.JobItem
		it.SourceKey = r.SourceKey
		it.ResultKey = r.ResultKey
		items = append(items, it)
	}
	*j = items
	return nil
}

func (j JobItems) Value() (driver.Value, error) {
	if len(j) == 0 {
		return []byte(`[]`), nil
	}

	rows := make([]jobItemRow, 0, len(j))
	for _, it := range j {
		rows = append(rows, jobItemRow{JobItem: it, SourceKey: it.SourceKey, ResultKey: it.ResultKey})
	}
	res, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JobItems to JSONB: %w", err)
	}

	return res, nil
}
