package mwlogger

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/zlog"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	var buf bytes.Buffer
	prev := zlog.Logger
	zlog.Logger = zerolog.New(&buf)
	t.Cleanup(func() { zlog.Logger = prev })
	return &buf
}

func TestNewMWLogger(t *testing.T) {
	tests := []struct {
		name       string
		reqID      string
		status     int
		wantLevel  string
		wantStatus string
	}{
		{name: "keeps incoming id", reqID: "abc-123", status: 201, wantLevel: `"level":"info"`, wantStatus: `"status":201`},
		{name: "generates id", status: 0, wantLevel: `"level":"info"`, wantStatus: `"status":200`},
		{name: "server error", reqID: "x", status: 503, wantLevel: `"level":"error"`, wantStatus: `"status":503`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := withCapturedLogger(t)

			var seenInHandler bool
			h := NewMWLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				l := LoggerFromContext(r.Context())
				l.Info().Msg("inside")
				seenInHandler = true
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte("ok"))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
			if tt.reqID != "" {
				req.Header.Set(RequestIDHeader, tt.reqID)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			require.True(t, seenInHandler)
			gotID := w.Header().Get(RequestIDHeader)
			require.NotEmpty(t, gotID)
			if tt.reqID != "" {
				require.Equal(t, tt.reqID, gotID)
			}

			out := buf.String()
			require.Contains(t, out, `"request_id":"`+gotID+`"`)
			require.Contains(t, out, `"path":"/api/jobs"`)
			require.Contains(t, out, tt.wantStatus)
			require.Contains(t, out, tt.wantLevel)
		})
	}
}

func TestLoggerFromContext_Fallback(t *testing.T) {
	buf := withCapturedLogger(t)

	l := LoggerFromContext(context.Background())
	l.Info().Msg("plain")
	require.Contains(t, buf.String(), "plain")
	require.NotContains(t, buf.String(), "request_id")
}
