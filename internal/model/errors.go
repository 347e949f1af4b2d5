// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// ユーザーに表示する原因カテゴリと対処方法（スペイン語）を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（ユーザー向け、スペイン語）
	Category string // カテゴリ: auth, validation, upload, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredential   = "INVALID_CREDENTIAL"
	ErrCodeDomainNotAllowed    = "DOMAIN_NOT_ALLOWED"
	ErrCodeNotAuthorized       = "NOT_AUTHORIZED"
	ErrCodeInvalidSecret       = "INVALID_SECRET"
	ErrCodeNoSession           = "NO_SESSION"
	ErrCodeInvalidSession      = "INVALID_SESSION"
	ErrCodeInvalidKey          = "INVALID_KEY"
	ErrCodeInvalidPath         = "INVALID_PATH"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeIOError             = "IO_ERROR"
)

// NewInvalidCredentialError は身元トークンが検証できなかった場合のエラーを生成する。
func NewInvalidCredentialError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredential,
		Message:  "No se ha podido verificar tu identidad de Google.",
		Category: "auth",
		Action:   "Cierra sesión en Google y vuelve a intentarlo.",
	}
}

// NewDomainNotAllowedError はメールドメインが許可外の場合のエラーを生成する。
func NewDomainNotAllowedError(domain string) *APIError {
	return &APIError{
		Code:     ErrCodeDomainNotAllowed,
		Message:  fmt.Sprintf("Solo se permiten cuentas del dominio %s.", domain),
		Category: "auth",
		Action:   "Accede con tu cuenta corporativa del colegio.",
	}
}

// NewNotAuthorizedError は身元は正しいが名簿に載っていない場合のエラーを生成する。
// DomainNotAllowedとは別メッセージで返すこと（対処方法が異なるため）。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "Tu cuenta no está en la lista de profesores autorizados.",
		Category: "auth",
		Action:   "Contacta con dirección para que te den de alta.",
	}
}

// NewInvalidSecretError はPIN/管理者ログインの資格情報が不正な場合のエラーを生成する。
func NewInvalidSecretError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSecret,
		Message:  "Usuario o contraseña incorrectos.",
		Category: "auth",
		Action:   "Comprueba las credenciales e inténtalo de nuevo.",
	}
}

// NewNoSessionError はセッションCookieが存在しない場合のエラーを生成する。
func NewNoSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeNoSession,
		Message:  "No hay sesión activa.",
		Category: "auth",
		Action:   "Inicia sesión de nuevo.",
	}
}

// NewInvalidSessionError はセッショントークンが無効または期限切れの場合のエラーを生成する。
func NewInvalidSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSession,
		Message:  "La sesión ha caducado.",
		Category: "auth",
		Action:   "Inicia sesión de nuevo.",
	}
}

// NewInvalidKeyError は許可リスト外のデータキーが指定された場合のエラーを生成する。
func NewInvalidKeyError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKey,
		Message:  fmt.Sprintf("Clave de datos no permitida: %s", key),
		Category: "validation",
		Action:   "Usa una de las claves de datos definidas por la aplicación.",
	}
}

// NewInvalidPathError はアップロードルート外へのパスが解決された場合のエラーを生成する。
func NewInvalidPathError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPath,
		Message:  "Ruta de archivo no válida.",
		Category: "validation",
		Action:   "Comprueba el nombre del archivo e inténtalo de nuevo.",
	}
}

// NewUpstreamUnavailableError は上流サービスに到達できない場合のエラーを生成する。
func NewUpstreamUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  "Error técnico al contactar con el servidor de autenticación.",
		Category: "system",
		Action:   "Espera unos minutos y vuelve a intentarlo.",
	}
}

// NewIOError はディスク読み書きに失敗した場合のエラーを生成する。
func NewIOError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeIOError,
		Message:  fmt.Sprintf("Error al guardar el archivo: %s", reason),
		Category: "system",
		Action:   "Vuelve a subir el archivo.",
	}
}
