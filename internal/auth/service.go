package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bibliohispa/hispanet/internal/model"
)

// RosterDirectory は名簿キャッシュの検索インターフェース。
// roster.Cacheの部分集合として定義する。
type RosterDirectory interface {
	// Lookup はメールアドレスでユーザーを検索する。
	Lookup(email string) (*model.User, bool)
	// FetchNow は上流から名簿を同期的に再取得する。
	FetchNow(ctx context.Context) error
}

// CredentialChecker は管理者PIN認証の上流チェックインターフェース。
// roster.Clientの部分集合として定義する。
type CredentialChecker interface {
	CheckCredentials(ctx context.Context, username, password string) (bool, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// AllowedEmailDomain はログインを許可するメールドメイン。
	AllowedEmailDomain string
	// SuperAdminEmail は名簿の内容に関わらず常にadminロールを強制するメール。
	SuperAdminEmail string
}

// Service はログインのゲート処理とセッション確立を提供する。
type Service struct {
	verifier IdentityVerifier
	roster   RosterDirectory
	checker  CredentialChecker
	codec    *TokenCodec
	config   ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	verifier IdentityVerifier,
	roster RosterDirectory,
	checker CredentialChecker,
	codec *TokenCodec,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier: verifier,
		roster:   roster,
		checker:  checker,
		codec:    codec,
		config:   config,
	}
}

// Login はGoogleの身元トークンを検証し、名簿照合のうえセッショントークンを発行する。
//
//  1. 身元検証に失敗した場合はInvalidCredential。
//  2. メールが許可ドメイン外の場合はDomainNotAllowed。
//  3. 名簿インデックスを検索し、ミスした場合は1回だけ再取得して再検索する。
//  4. それでも見つからない場合はNotAuthorized。
//
// SuperAdminEmailだけは名簿のロールに関わらずadminを強制する。
func (s *Service) Login(ctx context.Context, credential string) (*model.User, string, error) {
	claims, err := s.verifier.Verify(ctx, credential)
	if err != nil {
		slog.Warn("identity verification failed", slog.String("error", err.Error()))
		return nil, "", model.NewInvalidCredentialError()
	}

	email := strings.ToLower(strings.TrimSpace(claims.Email))
	if !strings.HasSuffix(email, "@"+s.config.AllowedEmailDomain) {
		slog.Warn("login rejected: email outside allowed domain",
			slog.String("email", email),
		)
		return nil, "", model.NewDomainNotAllowedError(s.config.AllowedEmailDomain)
	}

	entry, ok := s.roster.Lookup(email)
	if !ok {
		// キャッシュミス: コールドスタート等に備えて1回だけ再取得する
		if fetchErr := s.roster.FetchNow(ctx); fetchErr != nil {
			slog.Error("roster refetch during login failed",
				slog.String("error", fetchErr.Error()),
			)
			return nil, "", model.NewUpstreamUnavailableError()
		}
		entry, ok = s.roster.Lookup(email)
	}
	if !ok {
		slog.Warn("login rejected: email not on roster", slog.String("email", email))
		return nil, "", model.NewNotAuthorizedError()
	}

	user := &model.User{
		ID:     entry.ID,
		Name:   entry.Name,
		Email:  email,
		Role:   entry.Role,
		Avatar: entry.Avatar,
	}

	if email == s.config.SuperAdminEmail {
		user.Role = model.RoleAdmin
	}
	if claims.Picture != "" {
		user.Avatar = claims.Picture
	}
	if user.Name == "" {
		user.Name = claims.Name
	}

	token, err := s.codec.Mint(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint session token: %w", err)
	}

	slog.Info("user logged in",
		slog.String("email", user.Email),
		slog.String("role", string(user.Role)),
	)

	return user, token, nil
}

// LoginWithSecret は上流の外部認証チェックによる管理者ログインを処理する。
// 成功時は固定の管理者アイデンティティにadminロールを強制してセッションを発行する。
func (s *Service) LoginWithSecret(ctx context.Context, username, password string) (*model.User, string, error) {
	if username == "" || password == "" {
		return nil, "", model.NewInvalidSecretError()
	}

	ok, err := s.checker.CheckCredentials(ctx, username, password)
	if err != nil {
		slog.Error("external credential check failed", slog.String("error", err.Error()))
		return nil, "", model.NewUpstreamUnavailableError()
	}
	if !ok {
		slog.Warn("pin login rejected", slog.String("username", username))
		return nil, "", model.NewInvalidSecretError()
	}

	user := &model.User{
		ID:    "direccion",
		Name:  "Dirección",
		Email: s.config.SuperAdminEmail,
		Role:  model.RoleAdmin,
	}
	// 名簿に管理者レコードがあればIDと表示情報はそちらを使う
	if entry, found := s.roster.Lookup(s.config.SuperAdminEmail); found {
		user.ID = entry.ID
		user.Name = entry.Name
		user.Avatar = entry.Avatar
	}

	token, err := s.codec.Mint(user)
	if err != nil {
		return nil, "", fmt.Errorf("failed to mint session token: %w", err)
	}

	slog.Info("admin logged in via external check", slog.String("username", username))

	return user, token, nil
}

// CurrentUser はセッショントークンを検証し、埋め込まれたアイデンティティを返す。
// トークンが無い場合はNoSession、無効・期限切れの場合はInvalidSession。
func (s *Service) CurrentUser(tokenString string) (*SessionClaims, error) {
	if tokenString == "" {
		return nil, model.NewNoSessionError()
	}

	claims, err := s.codec.Parse(tokenString)
	if err != nil {
		return nil, model.NewInvalidSessionError()
	}
	return claims, nil
}
