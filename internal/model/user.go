// Package model はドメインモデルを定義する。
package model

// Role はユーザーの権限ロールを表す。
type Role string

const (
	// RoleAdmin は管理者（dirección）ロール。
	RoleAdmin Role = "admin"
	// RoleTeacher は教員ロール。
	RoleTeacher Role = "teacher"
)

// Valid はロールが定義済みのものかを判定する。
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher
}

// User は名簿（Prisma roster）に登録された認可済みユーザーを表す。
// Emailは小文字に正規化され、名簿インデックスの一意キーとなる。
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Avatar string `json:"avatar,omitempty"`
}
