// Package mwlogger provides UUID-logging to every request
package mwlogger

import (
	"context"
	"net/http"
	"time"

	"github.com/wb-go/wbf/helpers"
	"github.com/wb-go/wbf/zlog"
)

const RequestIDHeader = "X-Request-Id"

type loggerWithRequestID struct{}

// statusRecorder запоминает код ответа для итоговой записи в лог
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// NewMWLogger - обёртка для логирования запросов с присвоением UUID каждому запросу и пробросу логгера в контекст запроса
func NewMWLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fetching/generating UUID for request
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = helpers.CreateUUID()
		}
		w.Header().Set(RequestIDHeader, reqID)

		// Creating logger
		logger := zlog.Logger.With().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		// Putting logger to context
		r = r.WithContext(WithLogger(r.Context(), logger))

		// Running handler
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		ev := logger.Info()
		if rec.status >= 500 {
			ev = logger.Error()
		}
		ev.Int("status", rec.status).
			Int("bytes", rec.bytes).
			Dur("duration", time.Since(start)).
			Msg("Request completed")
	})
}

// WithLogger кладет логгер в контекст - воркер делает так же для каждой задачи
func WithLogger(ctx context.Context, logger zlog.Zerolog) context.Context {
	return context.WithValue(ctx, loggerWithRequestID{}, logger)
}

// LoggerFromContext extracts logger from context - used in service-layer
func LoggerFromContext(ctx context.Context) zlog.Zerolog {
	if l, ok := ctx.Value(loggerWithRequestID{}).(zlog.Zerolog); ok {
		return l
	}
	return zlog.Logger
}
