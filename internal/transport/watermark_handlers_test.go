package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/UnendingLoop/watermarker/internal/imageproc"
	"github.com/UnendingLoop/watermarker/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

func TestWatermarkHandler_Process(t *testing.T) {
	tests := []struct {
		name       string
		req        *http.Request
		mock       *mockWatermarkService
		wantStatus int
		wantLen    int
	}{
		{
			name: "mode from query",
			req: newMultipartRequest(t, "/api/watermark?mode=dark", nil,
				formPart{"images[]", "a.jpg", []byte("a")},
				formPart{"images[]", "b.jpg", []byte("b")},
			),
			mock: &mockWatermarkService{
				processFn: func(ctx context.Context, mode string, images []model.UploadedImage) ([]model.BatchResult, error) {
					require.Equal(t, "dark", mode)
					require.Len(t, images, 2)
					data, err := io.ReadAll(images[1].File)
					require.NoError(t, err)
					require.Equal(t, "b", string(data))
					return []model.BatchResult{
						{Name: "a.jpg", Succeeded: true, Output: []byte{1}},
						{Name: "b.jpg", Error: "decode failed"},
					}, nil
				},
			},
			wantStatus: 200,
			wantLen:    2,
		},
		{
			name: "mode from form",
			req: newMultipartRequest(t, "/api/watermark", map[string]string{"mode": "light"},
				formPart{"images[]", "a.jpg", []byte("a")},
			),
			mock: &mockWatermarkService{
				processFn: func(ctx context.Context, mode string, images []model.UploadedImage) ([]model.BatchResult, error) {
					require.Equal(t, "light", mode)
					return []model.BatchResult{{Name: "a.jpg", Succeeded: true}}, nil
				},
			},
			wantStatus: 200,
			wantLen:    1,
		},
		{
			name:       "no images",
			req:        newMultipartRequest(t, "/api/watermark", map[string]string{"mode": "auto"}),
			mock:       &mockWatermarkService{},
			wantStatus: 400,
		},
		{
			name: "logos not configured",
			req: newMultipartRequest(t, "/api/watermark", nil,
				formPart{"images[]", "a.jpg", []byte("a")},
			),
			mock: &mockWatermarkService{
				processFn: func(ctx context.Context, mode string, images []model.UploadedImage) ([]model.BatchResult, error) {
					return nil, model.ErrAssetUnavailable
				},
			},
			wantStatus: 412,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewWatermarkHandler(tt.mock)

			r.POST("/api/watermark", func(c *gin.Context) {
				h.Process((*ginext.Context)(c))
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, tt.req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 200 {
				var res []model.BatchResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
				require.Len(t, res, tt.wantLen)
			}
		})
	}
}

func TestWatermarkHandler_Custom(t *testing.T) {
	okCustom := func(wantRemove bool, wantThreshold int) func(context.Context, model.UploadedImage, model.UploadedImage, bool, int) ([]byte, error) {
		return func(ctx context.Context, image, logo model.UploadedImage, removeLightBg bool, lightThreshold int) ([]byte, error) {
			require.Equal(t, "photo.jpg", image.Name)
			require.Equal(t, "logo.png", logo.Name)
			require.Equal(t, wantRemove, removeLightBg)
			require.Equal(t, wantThreshold, lightThreshold)
			return []byte("jpeg"), nil
		}
	}
	files := []formPart{
		{"image", "photo.jpg", []byte("img")},
		{"logo", "logo.png", []byte("logo")},
	}

	tests := []struct {
		name       string
		req        *http.Request
		mock       *mockWatermarkService
		wantStatus int
	}{
		{
			name:       "defaults",
			req:        newMultipartRequest(t, "/api/watermark/custom", nil, files...),
			mock:       &mockWatermarkService{customFn: okCustom(false, imageproc.DarkLightThreshold)},
			wantStatus: 200,
		},
		{
			name: "remove light background with threshold",
			req: newMultipartRequest(t, "/api/watermark/custom",
				map[string]string{"remove_light_bg": "true", "light_threshold": "200"}, files...),
			mock:       &mockWatermarkService{customFn: okCustom(true, 200)},
			wantStatus: 200,
		},
		{
			name: "bad flag",
			req: newMultipartRequest(t, "/api/watermark/custom",
				map[string]string{"remove_light_bg": "maybe"}, files...),
			mock:       &mockWatermarkService{},
			wantStatus: 400,
		},
		{
			name: "bad threshold",
			req: newMultipartRequest(t, "/api/watermark/custom",
				map[string]string{"light_threshold": "high"}, files...),
			mock:       &mockWatermarkService{},
			wantStatus: 400,
		},
		{
			name:       "logo missing",
			req:        newMultipartRequest(t, "/api/watermark/custom", nil, files[0]),
			mock:       &mockWatermarkService{},
			wantStatus: 400,
		},
		{
			name: "undecodable image",
			req:  newMultipartRequest(t, "/api/watermark/custom", nil, files...),
			mock: &mockWatermarkService{
				customFn: func(context.Context, model.UploadedImage, model.UploadedImage, bool, int) ([]byte, error) {
					return nil, model.ErrDecodeFailure
				},
			},
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewWatermarkHandler(tt.mock)

			r.POST("/api/watermark/custom", func(c *gin.Context) {
				h.Custom((*ginext.Context)(c))
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, tt.req)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == 200 {
				require.Equal(t, model.JPEG, w.Header().Get("Content-Type"))
				require.Equal(t, "jpeg", w.Body.String())
			}
		})
	}
}
