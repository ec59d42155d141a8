package middleware

import "net/http"

// corsHeaders は許可オリジン以外の固定CORSヘッダー。
// APIはGETとPOSTのみで、状態変更リクエストにはCSRFヘッダーが必要。
var corsHeaders = map[string]string{
	"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
	"Access-Control-Allow-Headers":     "Content-Type, " + csrfHeaderName,
	"Access-Control-Allow-Credentials": "true",
	"Access-Control-Max-Age":           "86400",
}

// NewCORSMiddleware は管理画面フロントエンドのオリジンだけを許可するCORSミドルウェアを返す。
// セッションCookieを送るためワイルドカード(*)は使わない。
func NewCORSMiddleware(allowedOrigin string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowedOrigin)
			h.Add("Vary", "Origin")
			for k, v := range corsHeaders {
				h.Set(k, v)
			}

			// プリフライト
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
