// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/evote/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionContextKey      = contextKey("session")
	sessionErrorContextKey = contextKey("session_error")
	requestIDContextKey    = contextKey("request_id")
)

// SessionResolver はセッショントークンからセッションを解決するインターフェース。
// auth.Serviceが実装する。セッションがない場合はUnauthenticatedErrorを返す。
type SessionResolver interface {
	RequireSession(ctx context.Context, token string) (*model.Session, error)
}

// NewSessionMiddleware はCookieのセッショントークンを1度だけ解決し、
// 有効なセッションがあればリクエストコンテキストに注入するミドルウェアを返す。
// セッションがなくてもリクエストは拒否しない。拒否はRequireSessionで行う。
// セッションストアの障害はコンテキストに記録し、RequireSessionが500として扱う。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionTokenFromRequest(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			session, err := resolver.RequireSession(r.Context(), token)
			switch {
			case err == nil:
				r = r.WithContext(ContextWithSession(r.Context(), session))
			case model.IsCode(err, model.ErrCodeUnauthenticated):
			default:
				slog.Error("failed to resolve session",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				r = r.WithContext(context.WithValue(r.Context(), sessionErrorContextKey, err))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSession はセッションのないリクエストを拒否するミドルウェアを返す。
// GET/HEADはloginPathへリダイレクトし、それ以外は401のJSONを返す。
// セッションの解決自体に失敗していた場合は500を返す。
func RequireSession(loginPath string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if SessionFromContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			if _, failed := r.Context().Value(sessionErrorContextKey).(error); failed {
				WriteInternalServerError(w)
				return
			}
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		})
	}
}

// SessionTokenFromRequest はCookieからセッショントークンを取得する。ない場合は空文字。
func SessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// 未認証の場合はnil。
func SessionFromContext(ctx context.Context) *model.Session {
	session, _ := ctx.Value(sessionContextKey).(*model.Session)
	return session
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
