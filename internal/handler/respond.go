// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bibliohispa/hispanet/internal/model"
)

// errorResponseBody はAPIエラーレスポンスの統一フォーマット。
// クライアントは success と message のみに依存する。
type errorResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"action,omitempty"`
}

// statusForCode はエラーコードをHTTPステータスに対応付ける。
func statusForCode(code string) int {
	switch code {
	case model.ErrCodeInvalidCredential, model.ErrCodeInvalidSecret,
		model.ErrCodeNoSession, model.ErrCodeInvalidSession:
		return http.StatusUnauthorized
	case model.ErrCodeDomainNotAllowed, model.ErrCodeNotAuthorized:
		return http.StatusForbidden
	case model.ErrCodeInvalidKey, model.ErrCodeInvalidPath:
		return http.StatusBadRequest
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeError はエラーを統一フォーマット {success:false, message} に変換して書き込む。
// APIError以外のエラーは詳細をログのみに記録し、一般的なメッセージを返す。
func writeError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeJSON(w, statusForCode(apiErr.Code), errorResponseBody{
			Success: false,
			Message: apiErr.Message,
			Code:    apiErr.Code,
			Action:  apiErr.Action,
		})
		return
	}

	slog.Error("internal error", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorResponseBody{
		Success: false,
		Message: "Error interno del servidor. Inténtalo de nuevo más tarde.",
	})
}

// writeBadRequest は400の統一レスポンスを書き込む。
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponseBody{
		Success: false,
		Message: message,
	})
}
