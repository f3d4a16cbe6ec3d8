package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// subjectHolder は下流で確定したセッションのsubjectをログミドルウェアへ渡す。
// Gateはセッションを注入した新しいリクエストを下流に渡すため、上流からは直接参照できない。
type subjectHolder struct {
	mu  sync.Mutex
	sub string
}

var subjectHolderKey = contextKey("subject_holder")

func (h *subjectHolder) set(sub string) {
	h.mu.Lock()
	h.sub = sub
	h.mu.Unlock()
}

func (h *subjectHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sub
}

// recordSubject はログ用にsubjectを記録する。ログミドルウェアを通過していなければ何もしない。
func recordSubject(ctx context.Context, sub string) {
	if h, ok := ctx.Value(subjectHolderKey).(*subjectHolder); ok {
		h.set(sub)
	}
}

// NewLoggingMiddleware はリクエストごとにhttp_requestログを1行出力するミドルウェアを返す。
// method、path、status、duration_ms、request_id、user_id（認証済みの場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			holder := &subjectHolder{}

			next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), subjectHolderKey, holder)))

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if sub := loggedSubject(r, holder); sub != "" {
				attrs = append(attrs, slog.String("user_id", sub))
			}

			logger.LogAttrs(r.Context(), levelForStatus(rec.statusCode), "http_request", attrs...)
		})
	}
}

// loggedSubject はGateが確定したsubjectを優先し、なければ上流で注入済みのセッションを使う。
func loggedSubject(r *http.Request, holder *subjectHolder) string {
	if sub := holder.get(); sub != "" {
		return sub
	}
	if s, ok := SessionFromContext(r.Context()); ok {
		return s.Subject
	}
	return ""
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
