package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bibliohispa/hispanet/internal/model"
)

// tokenIssuer はセッショントークンのiss値。
const tokenIssuer = "hispanet"

// SessionClaims は署名付きセッショントークンのペイロード。
// サーバー側の失効リストは持たず、署名と有効期限のみでステートレスに検証する。
type SessionClaims struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	ProfileID string     `json:"profile_id"`
	Name      string     `json:"name,omitempty"`
	Avatar    string     `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// TokenCodec はセッショントークンのHMAC署名と検証を行う。
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenCodec はTokenCodecを生成する。maxAgeSecondsはトークンの有効期間（秒）。
func NewTokenCodec(secret string, maxAgeSeconds int) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		ttl:    time.Duration(maxAgeSeconds) * time.Second,
	}
}

// Mint はユーザーのセッショントークンを発行する。
func (c *TokenCodec) Mint(user *model.User) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ProfileID: user.ID,
		Name:      user.Name,
		Avatar:    user.Avatar,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Email,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Parse はセッショントークンの署名と有効期限を検証し、クレームを返す。
func (c *TokenCodec) Parse(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse session token: %w", err)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
