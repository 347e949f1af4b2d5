package roster

import (
	"context"
	"errors"
	"testing"

	"github.com/bibliohispa/hispanet/internal/model"
)

type fakeFetcher struct {
	records []RawUser
	err     error
}

func (f *fakeFetcher) FetchUsers(ctx context.Context) ([]RawUser, error) {
	return f.records, f.err
}

func TestResolveRole(t *testing.T) {
	tests := []struct {
		raw    string
		want   model.Role
		wantOK bool
	}{
		{"ADMIN", model.RoleAdmin, true},
		{"admin", model.RoleAdmin, true},
		{"Administrador", model.RoleAdmin, true},
		{"DIRECCION", model.RoleAdmin, true},
		{"Directora", model.RoleAdmin, true},
		{"PROFESOR", model.RoleTeacher, true},
		{"profesora", model.RoleTeacher, true},
		{"Tutor", model.RoleTeacher, true},
		{"TUTORA", model.RoleTeacher, true},
		{"docente", model.RoleTeacher, true},
		{"maestra", model.RoleTeacher, true},
		// 部分一致フォールバック
		{"SUPER_ADMIN", model.RoleAdmin, true},
		{"director adjunto", model.RoleAdmin, true},
		// 解決不能
		{"alumno", "", false},
		{"padre", "", false},
		{"", "", false},
		{"  ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := resolveRole(tt.raw)
			if ok != tt.wantOK {
				t.Fatalf("resolveRole(%q) ok = %v, want %v", tt.raw, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("resolveRole(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCache_Sync_NormalizesAndIndexes(t *testing.T) {
	cache := NewCache(&fakeFetcher{}, "colegiolahispanidad.es")

	n := cache.Sync([]RawUser{
		{"id": "u-1", "email": "Marta@ColegioLaHispanidad.es", "nombre": "Marta", "rol": "PROFESORA"},
		{"id": "u-2", "correo": "luis@colegiolahispanidad.es", "name": "Luis", "role": "TUTOR"},
		{"id": "u-3", "email": "alumno@colegiolahispanidad.es", "role": "alumno"}, // 解決不能ロールは破棄
	})

	if n != 2 {
		t.Fatalf("Sync() = %d, want 2", n)
	}
	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}

	// メールは小文字化され、大文字小文字を問わず検索できること
	user, ok := cache.Lookup("MARTA@colegiolahispanidad.es")
	if !ok {
		t.Fatal("Lookup() should find marta")
	}
	if user.Email != "marta@colegiolahispanidad.es" {
		t.Errorf("Email = %q, want lowercased", user.Email)
	}
	if user.Role != model.RoleTeacher {
		t.Errorf("Role = %q", user.Role)
	}

	if _, ok := cache.Lookup("alumno@colegiolahispanidad.es"); ok {
		t.Error("record with unresolvable role should be discarded")
	}
}

func TestCache_Sync_SynthesizesEmailFromID(t *testing.T) {
	cache := NewCache(&fakeFetcher{}, "colegiolahispanidad.es")

	n := cache.Sync([]RawUser{
		{"id": "U-77", "role": "PROFESOR", "name": "Sin Correo"},
	})
	if n != 1 {
		t.Fatalf("Sync() = %d, want 1", n)
	}

	user, ok := cache.Lookup("u-77@colegiolahispanidad.es")
	if !ok {
		t.Fatal("synthesized email should be indexed")
	}
	if user.Name != "Sin Correo" {
		t.Errorf("Name = %q", user.Name)
	}
}

func TestCache_Sync_DuplicateEmailFirstWins(t *testing.T) {
	cache := NewCache(&fakeFetcher{}, "colegiolahispanidad.es")

	cache.Sync([]RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA", "name": "Primera"},
		{"id": "u-2", "email": "marta@colegiolahispanidad.es", "role": "TUTORA", "name": "Segunda"},
	})

	user, ok := cache.Lookup("marta@colegiolahispanidad.es")
	if !ok {
		t.Fatal("Lookup() should find marta")
	}
	if user.Name != "Primera" {
		t.Errorf("Name = %q, want first record to win", user.Name)
	}
}

func TestCache_Sync_EmptyResultKeepsPreviousCache(t *testing.T) {
	cache := NewCache(&fakeFetcher{}, "colegiolahispanidad.es")

	cache.Sync([]RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	})

	// 全レコードが破棄される同期は既存キャッシュを消さないこと
	n := cache.Sync([]RawUser{
		{"id": "x", "email": "alumno@colegiolahispanidad.es", "role": "alumno"},
	})
	if n != 0 {
		t.Errorf("Sync() = %d, want 0", n)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want previous cache kept", cache.Len())
	}
	if _, ok := cache.Lookup("marta@colegiolahispanidad.es"); !ok {
		t.Error("previous entry should survive empty sync")
	}
}

func TestCache_Sync_NameFallsBackToEmailLocalPart(t *testing.T) {
	cache := NewCache(&fakeFetcher{}, "colegiolahispanidad.es")

	cache.Sync([]RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	})

	user, _ := cache.Lookup("marta@colegiolahispanidad.es")
	if user.Name != "marta" {
		t.Errorf("Name = %q, want local part fallback", user.Name)
	}
}

func TestCache_All_ReturnsSnapshot(t *testing.T) {
	cache := NewCache(&fakeFetcher{}, "colegiolahispanidad.es")

	records := []RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA", "extra": "kept-verbatim"},
	}
	cache.Sync(records)

	all := cache.All()
	if len(all) != 1 {
		t.Fatalf("All() len = %d, want 1", len(all))
	}
	// 正規化前のレコードがそのまま返ること
	if all[0]["extra"] != "kept-verbatim" {
		t.Errorf("raw record fields should pass through, got %v", all[0])
	}

	// スナップショットの変更が内部状態に影響しないこと
	all[0] = RawUser{"tampered": true}
	if cache.All()[0]["extra"] != "kept-verbatim" {
		t.Error("All() should return a copy")
	}
}

func TestCache_FetchNow(t *testing.T) {
	fetcher := &fakeFetcher{records: []RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	}}
	cache := NewCache(fetcher, "colegiolahispanidad.es")

	if err := cache.FetchNow(context.Background()); err != nil {
		t.Fatalf("FetchNow() error = %v", err)
	}
	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestCache_FetchNow_PropagatesError(t *testing.T) {
	cache := NewCache(&fakeFetcher{err: errors.New("upstream down")}, "colegiolahispanidad.es")

	if err := cache.FetchNow(context.Background()); err == nil {
		t.Error("FetchNow() should propagate fetch error")
	}
}
