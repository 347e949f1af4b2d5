package roster

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bibliohispa/hispanet/internal/model"
)

// roleSynonyms は上流のロール表記をアプリのロールに解決する同義語テーブル。
// キーは大文字で照合する。
var roleSynonyms = map[string]model.Role{
	"ADMIN":         model.RoleAdmin,
	"ADMINISTRADOR": model.RoleAdmin,
	"DIRECCION":     model.RoleAdmin,
	"DIRECTOR":      model.RoleAdmin,
	"DIRECTORA":     model.RoleAdmin,
	"TUTOR":         model.RoleTeacher,
	"TUTORA":        model.RoleTeacher,
	"PROFESOR":      model.RoleTeacher,
	"PROFESORA":     model.RoleTeacher,
	"DOCENTE":       model.RoleTeacher,
	"TEACHER":       model.RoleTeacher,
	"MAESTRO":       model.RoleTeacher,
	"MAESTRA":       model.RoleTeacher,
}

// resolveRole は上流のロール文字列をアプリのロールに解決する。
// 同義語テーブルに一致しない場合は部分一致でフォールバックする:
// "ADMIN"か"DIRECTOR"を含めばadmin、"TUTOR"と完全一致すればteacher。
func resolveRole(raw string) (model.Role, bool) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return "", false
	}

	if role, ok := roleSynonyms[upper]; ok {
		return role, true
	}

	if strings.Contains(upper, "ADMIN") || strings.Contains(upper, "DIRECTOR") {
		return model.RoleAdmin, true
	}
	if upper == "TUTOR" {
		return model.RoleTeacher, true
	}

	return "", false
}

// Fetcher は名簿のオンデマンド取得のインターフェース。
// Clientの部分集合として定義する。
type Fetcher interface {
	FetchUsers(ctx context.Context) ([]RawUser, error)
}

// Cache は認可済みユーザーのインメモリキャッシュ。
// Syncによる全置換（単一ライター）と、email→userインデックスの
// 並行読み取りを提供する。プロセス内のみに保持され、コールドスタート時は
// 最初の同期まで空となる。
type Cache struct {
	fetcher       Fetcher
	allowedDomain string

	mu      sync.RWMutex
	users   []*model.User
	byEmail map[string]*model.User
	raw     []RawUser
}

// NewCache はCacheを生成する。
// allowedDomainはメール欠落レコードのメール合成（<id>@<domain>）に使用する。
func NewCache(fetcher Fetcher, allowedDomain string) *Cache {
	return &Cache{
		fetcher:       fetcher,
		allowedDomain: allowedDomain,
		byEmail:       make(map[string]*model.User),
	}
}

// Sync は上流レコード群を正規化し、キャッシュを全置換する。
// 正規化結果が空の場合は既存キャッシュを維持する（失敗した同期で
// 動作中のキャッシュを消してはならない）。採用したユーザー数を返す。
func (c *Cache) Sync(records []RawUser) int {
	users := make([]*model.User, 0, len(records))
	index := make(map[string]*model.User, len(records))

	for _, rec := range records {
		user, ok := normalizeUser(rec, c.allowedDomain)
		if !ok {
			continue
		}
		// 同一メールの重複は先勝ち
		if _, exists := index[user.Email]; exists {
			continue
		}
		users = append(users, user)
		index[user.Email] = user
	}

	if len(users) == 0 {
		slog.Warn("roster sync produced no users, keeping previous cache",
			slog.Int("raw_records", len(records)),
		)
		return 0
	}

	c.mu.Lock()
	c.users = users
	c.byEmail = index
	c.raw = records
	c.mu.Unlock()

	slog.Info("roster cache replaced",
		slog.Int("raw_records", len(records)),
		slog.Int("users", len(users)),
	)

	return len(users)
}

// Lookup はメールアドレスでユーザーを検索する。メールは小文字で照合する。
func (c *Cache) Lookup(email string) (*model.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	user, ok := c.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return user, ok
}

// Len はキャッシュ中のユーザー数を返す。
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.users)
}

// All は上流レコードのスナップショットを返す。
// レガシーな /api/prisma-users パススルー用。
func (c *Cache) All() []RawUser {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]RawUser, len(c.raw))
	copy(snapshot, c.raw)
	return snapshot
}

// FetchNow は上流から名簿を同期的に取得してSyncを実行する。
// ログイン時のキャッシュミスやコールドスタートのフォールバックとして使う。
func (c *Cache) FetchNow(ctx context.Context) error {
	records, err := c.fetcher.FetchUsers(ctx)
	if err != nil {
		return fmt.Errorf("roster fetch failed: %w", err)
	}
	c.Sync(records)
	return nil
}

// normalizeUser は上流レコードをmodel.Userに正規化する。
// ロールもメールも解決できないレコードは破棄する。
func normalizeUser(rec RawUser, allowedDomain string) (*model.User, bool) {
	role, ok := resolveRole(rec.stringField("role", "rol", "perfil", "tipo", "type"))
	if !ok {
		return nil, false
	}

	id := rec.stringField("id", "uuid", "user_id", "userId")

	email := strings.ToLower(strings.TrimSpace(rec.stringField("email", "correo", "mail")))
	if !strings.Contains(email, "@") {
		// メールが無くてもIDがあれば許可ドメインで合成する
		if id == "" {
			return nil, false
		}
		email = strings.ToLower(id) + "@" + allowedDomain
	}

	if id == "" {
		id = email
	}

	name := rec.stringField("name", "nombre", "full_name", "fullName", "displayName")
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}

	return &model.User{
		ID:     id,
		Name:   name,
		Email:  email,
		Role:   role,
		Avatar: rec.stringField("avatar", "avatarUrl", "avatar_url", "picture", "photo", "image"),
	}, true
}
