package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const contextKeyRequestLog contextKey = "request_log"

// requestLog é preenchido pelos middlewares internos (ex.: Authenticate)
// e lido por Logging quando a resposta termina.
type requestLog struct {
	userID int64
}

func noteUser(ctx context.Context, userID int64) {
	if rl, ok := ctx.Value(contextKeyRequestLog).(*requestLog); ok {
		rl.userID = userID
	}
}

// Logging escreve uma linha estruturada por requisição, com nível pelo status.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		rl := &requestLog{}
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), contextKeyRequestLog, rl)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := zerolog.InfoLevel
		switch {
		case status >= 500:
			level = zerolog.ErrorLevel
		case status >= 400:
			level = zerolog.WarnLevel
		}

		event := log.WithLevel(level).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("ip", ClientIP(r))

		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				event = event.Str("route", pattern)
			}
		}
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			event = event.Str("request_id", reqID)
		}
		if rl.userID != 0 {
			event = event.Int64("usuario_id", rl.userID)
		}
		if ua := r.UserAgent(); ua != "" {
			event = event.Str("user_agent", ua)
		}
		event.Msg("http_request")
	})
}
