// Package request attaches a request ID to every inbound request and writes
// one access log line per request.
package request

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"loankyc/pkg/requestcontext"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// ID reuses a caller-supplied X-Request-ID when it is sane, otherwise it mints one.
func ID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if reqID == "" || len(reqID) > maxRequestIDLength {
			reqID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, reqID)
		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logger logs method, path, status and latency once the handler returns,
// plus the caller's browser family when a User-Agent is sent. Server errors
// log at error level, everything else at info.
func Logger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			ctx := r.Context()
			args := []any{
				"request_id", requestcontext.RequestID(ctx),
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
			}
			args = append(args, clientAttrs(r.UserAgent())...)
			logger.Log(ctx, level, "http request", args...)
		})
	}
}

// clientAttrs reduces a User-Agent to a browser and platform summary so the
// raw header never reaches the log.
func clientAttrs(header string) []any {
	if header == "" {
		return nil
	}
	ua := useragent.New(header)
	browser, _ := ua.Browser()
	return []any{
		"client_browser", browser,
		"client_os", ua.OS(),
		"client_mobile", ua.Mobile(),
		"client_bot", ua.Bot(),
	}
}
