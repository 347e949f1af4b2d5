package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bibliohispa/hispanet/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みアイデンティティを格納するためのキー。
var identityContextKey = contextKey("identity")

// Identity はリクエストに紐付いた認証済みアイデンティティ。
type Identity struct {
	Email string
	Role  model.Role
}

// SessionParser はセッションCookieの値からアイデンティティを復元する関数。
// auth.Serviceのトークン検証を注入する。
type SessionParser func(token string) (*Identity, bool)

// NewSessionAnnotator はセッションCookieが有効な場合に限り、
// アイデンティティをリクエストコンテキストに注入するミドルウェアを返す。
// このミドルウェアはリクエストを拒否しない。Cookieが無い・無効な場合は
// そのまま通す（認可は各ハンドラーの責任）。
func NewSessionAnnotator(cookieName string, parse SessionParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(cookieName)
			if err == nil && cookie.Value != "" {
				if ident, ok := parse(cookie.Value); ok {
					ctx := context.WithValue(r.Context(), identityContextKey, ident)
					r = r.WithContext(ctx)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext はリクエストコンテキストからアイデンティティを取得する。
func IdentityFromContext(ctx context.Context) (*Identity, error) {
	ident, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || ident == nil {
		return nil, fmt.Errorf("identity not found in context")
	}
	return ident, nil
}

// ContextWithIdentity はコンテキストにアイデンティティを注入する。
// テスト用。
func ContextWithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, ident)
}
