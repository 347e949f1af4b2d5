package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/bibliohispa/hispanet/internal/auth"
	"github.com/bibliohispa/hispanet/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, credential string) (*model.User, string, error)
	LoginWithSecret(ctx context.Context, username, password string) (*model.User, string, error)
	CurrentUser(tokenString string) (*auth.SessionClaims, error)
}

// LoginRecorder はログイン結果のメトリクス記録インターフェース。
// metrics.Recorderの部分集合として定義する。
type LoginRecorder interface {
	RecordLoginSuccess(method string)
	RecordLoginFailure(code string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieName    string
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はログイン・ログアウト・セッション照会のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics LoginRecorder
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, metrics LoginRecorder, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		metrics: metrics,
		config:  config,
	}
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Success bool       `json:"success"`
	ID      string     `json:"id"`
	Email   string     `json:"email"`
	Name    string     `json:"name"`
	Avatar  string     `json:"avatar,omitempty"`
	Role    model.Role `json:"role"`
}

// LoginGoogle はGoogle IDトークンによるログインを処理する。
// POST /api/auth/google {token}
func (h *AuthHandler) LoginGoogle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		writeBadRequest(w, "Falta el token de identidad.")
		return
	}

	user, token, err := h.service.Login(r.Context(), req.Token)
	if err != nil {
		h.recordFailure(err)
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, token, h.config.SessionMaxAge)
	h.metrics.RecordLoginSuccess("google")

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Avatar:  user.Avatar,
		Role:    user.Role,
	})
}

// LoginPin は上流の外部認証チェックによる管理者ログインを処理する。
// POST /api/auth/pin（別名 POST /api/prisma-auth）{username, password}
func (h *AuthHandler) LoginPin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Faltan las credenciales.")
		return
	}

	user, token, err := h.service.LoginWithSecret(r.Context(), req.Username, req.Password)
	if err != nil {
		h.recordFailure(err)
		writeError(w, err)
		return
	}

	h.setSessionCookie(w, token, h.config.SessionMaxAge)
	h.metrics.RecordLoginSuccess("pin")

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		ID:      user.ID,
		Email:   user.Email,
		Name:    user.Name,
		Avatar:  user.Avatar,
		Role:    user.Role,
	})
}

// Logout はセッションCookieを即時失効値で上書きする。冪等。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Me はセッションCookieを検証し、埋め込まれたアイデンティティを返す。
// GET /api/proxy/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(h.config.CookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, model.NewNoSessionError())
		return
	}

	claims, err := h.service.CurrentUser(cookie.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user": map[string]any{
			"id":    claims.UserID,
			"name":  claims.Name,
			"email": claims.Email,
			"role":  claims.Role,
		},
	})
}

// setSessionCookie はサブドメイン横断のセッションCookieを設定する。
// maxAgeに-1を渡すと即時失効する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.config.CookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// recordFailure はログイン失敗をエラーコード別にメトリクスへ記録する。
func (h *AuthHandler) recordFailure(err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		h.metrics.RecordLoginFailure(apiErr.Code)
		return
	}
	h.metrics.RecordLoginFailure("INTERNAL")
}
