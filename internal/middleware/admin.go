package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/hitoshi/evote/internal/model"
)

// AdminKeyHeader は管理者キーを受け取るヘッダー名。
const AdminKeyHeader = "X-Admin-Key"

// NewAdminKeyMiddleware は管理者向けルートを保護するミドルウェアを返す。
// keyが空の場合は何も検証しない。
func NewAdminKeyMiddleware(key string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(AdminKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				slog.Warn("admin key rejected",
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
				)
				WriteErrorResponse(w, http.StatusForbidden, model.NewAdminForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
