package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bibliohispa/hispanet/internal/model"
)

// SSOTokenParser はサブドメイン横断SSO Cookieの値からロールを復元する関数。
// デコードできない場合はfalseを返す。
type SSOTokenParser func(token string) (model.Role, bool)

// SSOGateConfig はサブドメイン横断SSOゲートの設定。
type SSOGateConfig struct {
	// Enabled がfalseの場合、ゲートは何もしないパススルーになる。
	Enabled bool
	// CookieName は共有親ドメインにスコープされたSSO Cookieの名前。
	CookieName string
	// Parse はCookie値のデコード関数。
	Parse SSOTokenParser
}

// ssoExemptPrefixes はゲートを適用しないログインエンドポイント。
// このアプリ自身のログインはゲートの対象外でなければならない。
var ssoExemptPrefixes = []string{
	"/api/auth/google",
	"/api/auth/pin",
	"/api/prisma-auth",
}

// NewSSOGateMiddleware は /api/* への全リクエストをディスパッチ前に検査するゲートを返す。
// SSO Cookieが存在し、かつこのアプリで許可されないロール（family/student等）に
// デコードされた場合のみ403で短絡する。Cookieが無い・デコード不能な場合は
// そのまま通す（このアプリは独自ログインを持つためsoft-fail open）。
func NewSSOGateMiddleware(config SSOGateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") || isSSOExempt(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(config.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			role, ok := config.Parse(cookie.Value)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !role.Valid() {
				slog.Warn("sso gate rejected request",
					slog.String("path", r.URL.Path),
					slog.String("role", string(role)),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"message": "Tu perfil no tiene acceso a esta aplicación.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isSSOExempt はパスがゲート適用外のログインエンドポイントかを判定する。
func isSSOExempt(path string) bool {
	for _, prefix := range ssoExemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
