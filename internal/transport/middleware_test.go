package transport

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimit(t *testing.T) {
	admin := newMockAdminService()
	r := newTestRouter(admin, RouteOptions{RateLimitRPS: 0.001, RateLimitBurst: 1})

	send := func(ip string) int {
		req := newMultipartRequest(t, "/api/watermark", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// первый запрос проходит до хендлера (и падает там на пустой форме)
	require.Equal(t, 400, send("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	// у другого клиента свой бакет
	require.Equal(t, 400, send("10.0.0.2"))

	// ручки без лимита не трогаются
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, 200, w.Code)
}

func TestIPLimiters_EvictIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newIPLimiters(0.001, 1, time.Minute, func() time.Time { return now })

	require.True(t, l.get("10.0.0.1").Allow())
	require.False(t, l.get("10.0.0.1").Allow())
	l.get("10.0.0.2")
	require.Equal(t, 2, l.size())

	// .2 продолжает ходить, .1 простаивает
	now = now.Add(40 * time.Second)
	l.get("10.0.0.2")
	now = now.Add(30 * time.Second)
	l.get("10.0.0.3")
	require.Equal(t, 2, l.size())

	// выкинутый клиент получает свежий бакет
	require.True(t, l.get("10.0.0.1").Allow())
	require.Equal(t, 3, l.size())
}

func TestLimitBody(t *testing.T) {
	admin := newMockAdminService()
	r := newTestRouter(admin, RouteOptions{MaxUploadBytes: 64})

	req := newMultipartRequest(t, "/api/watermark", nil,
		formPart{"images[]", "big.jpg", bytes.Repeat([]byte{1}, 4096)},
	)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
