package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/schoolsite/internal/metrics"
)

// requestLogKey はログ用の可変情報をコンテキストに格納するためのキー。
var requestLogKey = contextKey("request_log")

// requestLog は内側のミドルウェアが解決した値をログミドルウェアへ戻すための入れ物。
type requestLog struct {
	userID string
}

// annotateUserID は内側で認証したユーザーIDをリクエストログに記録する。
func annotateUserID(ctx context.Context, userID string) {
	if rl, ok := ctx.Value(requestLogKey).(*requestLog); ok {
		rl.userID = userID
	}
}

// NewLoggingMiddleware はリクエストごとに1行のJSONログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、request_id、user_id（認証済みの場合）を含む。
// collectorが指定された場合はステータスコードも記録する。
func NewLoggingMiddleware(logger *slog.Logger, collector metrics.MetricsCollector) func(next http.Handler) http.Handler {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			info := &requestLog{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestLogKey, info)))

			status := ww.Status()
			if status == 0 {
				// 何も書かずに返ったハンドラーはnet/httpが200を返す
				status = http.StatusOK
			}
			collector.RecordHTTPStatus(status)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000),
			}
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if userID := info.userID; userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			} else if userID, _ := UserIDFromContext(r.Context()); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			logger.LogAttrs(r.Context(), levelForStatus(status), "http_request", attrs...)
		})
	}
}

// levelForStatus は5xxをError、4xxをWarn、それ以外をInfoにする。
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
