package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/UnendingLoop/watermarker/internal/appcfg"
	"github.com/UnendingLoop/watermarker/internal/mwlogger"
	"github.com/UnendingLoop/watermarker/internal/transport"
	"github.com/stretchr/testify/require"
)

type denyVerifier struct{}

func (denyVerifier) VerifyPassword(ctx context.Context, raw string) (bool, error) {
	return false, nil
}

func TestNewRouter(t *testing.T) {
	cfg := &appcfg.Config{GinMode: "release", RateLimitRPS: 100, RateLimitBurst: 100, MaxUploadBytes: 1 << 20}
	engine := newRouter(cfg, transport.Handlers{
		Jobs:      transport.NewJobHandler(nil),
		Watermark: transport.NewWatermarkHandler(nil),
		Admin:     transport.NewAdminHandler(nil),
	}, denyVerifier{})
	h := mwlogger.NewMWLogger(engine)

	tests := []struct {
		name     string
		method   string
		path     string
		password string
		wantCode int
	}{
		{"ping", http.MethodGet, "/ping", "", 200},
		{"admin without password", http.MethodGet, "/api/admin/settings", "", 401},
		{"admin wrong password", http.MethodDelete, "/api/admin/watermarks/dark", "nope", 401},
		{"unknown route", http.MethodGet, "/api/nothing", "", 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.password != "" {
				req.Header.Set(transport.AdminPasswordHeader, tt.password)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)
			require.Equal(t, tt.wantCode, w.Code)
			require.NotEmpty(t, w.Header().Get(mwlogger.RequestIDHeader))
		})
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}
