package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bibliohispa/hispanet/internal/model"
)

func newTestUploads(t *testing.T) *Uploads {
	t.Helper()
	u, err := NewUploads(t.TempDir())
	if err != nil {
		t.Fatalf("NewUploads() error = %v", err)
	}
	return u
}

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name", "fiesta2026", "fiesta2026"},
		{"allowed punctuation", "foto_01-v2.jpg", "foto_01-v2.jpg"},
		{"spaces replaced", "dia del libro", "dia-del-libro"},
		{"slashes replaced", "a/b\\c", "a-b-c"},
		{"leading dots stripped", "..secret", "secret"},
		{"accents replaced", "añó", "a--"},
		{"only punctuation rejected", "../..", ""},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeSegment(tt.input); got != tt.want {
				t.Errorf("SanitizeSegment(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeSegment_CapsLength(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := SanitizeSegment(long)
	if len(got) != 80 {
		t.Errorf("len = %d, want 80", len(got))
	}
}

func TestResolveExtension(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		contentType string
		want        string
	}{
		{"filename extension wins", "photo.png", "image/jpeg", ".png"},
		{"content type fallback", "photo", "image/jpeg", ".jpg"},
		{"content type with params", "photo", "image/png; charset=binary", ".png"},
		{"generic fallback", "photo", "application/x-unknown", ".bin"},
		{"no filename no type", "", "", ".bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveExtension(tt.filename, tt.contentType); got != tt.want {
				t.Errorf("ResolveExtension(%q, %q) = %q, want %q", tt.filename, tt.contentType, got, tt.want)
			}
		})
	}
}

func TestUploads_Save_Photo(t *testing.T) {
	u := newTestUploads(t)

	url, err := u.Save(UploadParams{
		Kind:     KindPhoto,
		Event:    "fiesta2026",
		Class:    "3a",
		Filename: "foto_001.jpg",
	}, strings.NewReader("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if url != "/uploads/events/fiesta2026/3a/foto_001.jpg" {
		t.Errorf("url = %q", url)
	}

	data, err := os.ReadFile(filepath.Join(u.Root(), "events", "fiesta2026", "3a", "foto_001.jpg"))
	if err != nil {
		t.Fatalf("saved file unreadable: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("file content = %q", data)
	}
}

func TestUploads_Save_DashboardOverwritesSlot(t *testing.T) {
	u := newTestUploads(t)

	params := UploadParams{
		Kind:        KindDashboard,
		Slot:        "hero",
		Filename:    "first.png",
		ContentType: "image/png",
	}

	url1, err := u.Save(params, strings.NewReader("v1"))
	if err != nil {
		t.Fatalf("first Save() error = %v", err)
	}

	params.Filename = "second.png"
	url2, err := u.Save(params, strings.NewReader("v2"))
	if err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	// 同じスロットは同じURLに解決され、内容が置き換わること
	if url1 != url2 {
		t.Errorf("slot URLs differ: %q vs %q", url1, url2)
	}
	if url1 != "/uploads/dashboard/hero.png" {
		t.Errorf("url = %q", url1)
	}

	data, err := os.ReadFile(filepath.Join(u.Root(), "dashboard", "hero.png"))
	if err != nil {
		t.Fatalf("saved file unreadable: %v", err)
	}
	if string(data) != "v2" {
		t.Errorf("content = %q, want overwritten v2", data)
	}

	// 旧ファイルが孤児として残っていないこと
	entries, err := os.ReadDir(filepath.Join(u.Root(), "dashboard"))
	if err != nil {
		t.Fatalf("ReadDir error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("dashboard dir has %d entries, want 1", len(entries))
	}
}

func TestUploads_Save_ResourceAppendsExtension(t *testing.T) {
	u := newTestUploads(t)

	url, err := u.Save(UploadParams{
		Kind:        KindResource,
		Category:    "circulares",
		Filename:    "circular-marzo",
		ContentType: "application/pdf",
	}, strings.NewReader("%PDF-"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if url != "/uploads/resources/circulares/circular-marzo.pdf" {
		t.Errorf("url = %q", url)
	}
}

func TestUploads_Save_TraversalAttemptsRejected(t *testing.T) {
	u := newTestUploads(t)

	// 書き込み先がルート外に出るような入力の組み合わせ
	tests := []struct {
		name   string
		params UploadParams
	}{
		{"event traversal", UploadParams{Kind: KindPhoto, Event: "../..", Class: "3a", Filename: "x.jpg"}},
		{"class traversal", UploadParams{Kind: KindPhoto, Event: "fiesta", Class: "..", Filename: "x.jpg"}},
		{"filename traversal", UploadParams{Kind: KindResource, Category: "docs", Filename: "../../../etc/passwd"}},
		{"empty slot", UploadParams{Kind: KindDashboard, Slot: "..", Filename: "x.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := u.Save(tt.params, strings.NewReader("data"))
			if err == nil {
				t.Fatal("expected error for traversal attempt")
			}

			var apiErr *model.APIError
			if errors.As(err, &apiErr) {
				if apiErr.Code != model.ErrCodeInvalidPath {
					t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidPath)
				}
			}
		})
	}

	// ルート外に何も書かれていないこと
	var files []string
	filepath.WalkDir(u.Root(), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if len(files) != 0 {
		t.Errorf("unexpected files written: %v", files)
	}
}

func TestUploads_Save_TraversalFilenameNeutralized(t *testing.T) {
	u := newTestUploads(t)

	// サニタイズで無害化されるがセグメント自体は有効な名前になるケース
	url, err := u.Save(UploadParams{
		Kind:     KindPhoto,
		Event:    "fiesta",
		Class:    "3a",
		Filename: "..evil.jpg",
	}, strings.NewReader("data"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if strings.Contains(url, "..") {
		t.Errorf("url should not contain dot-dot: %q", url)
	}
}

func TestUploads_Save_UnknownKind(t *testing.T) {
	u := newTestUploads(t)

	_, err := u.Save(UploadParams{Kind: "banner", Filename: "x.png"}, strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestUploads_Delete(t *testing.T) {
	u := newTestUploads(t)

	url, err := u.Save(UploadParams{
		Kind:     KindResource,
		Category: "docs",
		Filename: "a.pdf",
	}, strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := u.Delete(url); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// 2回目はErrNotFound
	if err := u.Delete(url); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestUploads_Delete_RejectsEscapes(t *testing.T) {
	u := newTestUploads(t)

	// ルート外のファイルを用意し、トラバーサルで消せないことを確認する
	outside := filepath.Join(filepath.Dir(u.Root()), "outside.txt")
	if err := os.WriteFile(outside, []byte("keep"), 0o644); err != nil {
		t.Fatalf("failed to write outside file: %v", err)
	}

	tests := []string{
		"/uploads/../outside.txt",
		"/uploads/",
		"/etc/passwd",
		"",
	}

	for _, p := range tests {
		err := u.Delete(p)
		if err == nil {
			t.Errorf("Delete(%q) should fail", p)
			continue
		}

		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code != model.ErrCodeInvalidPath {
			t.Errorf("Delete(%q) code = %q, want %q", p, apiErr.Code, model.ErrCodeInvalidPath)
		}
	}

	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file should still exist: %v", err)
	}
}

func TestUploads_Resolve(t *testing.T) {
	u := newTestUploads(t)

	if _, err := u.Save(UploadParams{
		Kind:     KindResource,
		Category: "docs",
		Filename: "a.pdf",
	}, strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	abs, err := u.Resolve("resources/docs/a.pdf")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !strings.HasPrefix(abs, u.Root()) {
		t.Errorf("resolved path %q outside root %q", abs, u.Root())
	}

	if _, err := u.Resolve("../outside.txt"); err == nil {
		t.Error("Resolve should reject traversal")
	}
	if _, err := u.Resolve("resources/docs/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(missing) error = %v, want ErrNotFound", err)
	}
	// ディレクトリは配信対象外
	if _, err := u.Resolve("resources/docs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Resolve(dir) error = %v, want ErrNotFound", err)
	}
}

func TestUploads_Save_NoTempFilesLeftBehind(t *testing.T) {
	u := newTestUploads(t)

	if _, err := u.Save(UploadParams{
		Kind:     KindResource,
		Category: "docs",
		Filename: "a.pdf",
	}, strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	var tmps []string
	filepath.WalkDir(u.Root(), func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() && strings.HasPrefix(d.Name(), ".tmp-") {
			tmps = append(tmps, path)
		}
		return nil
	})
	if len(tmps) != 0 {
		t.Errorf("temp files left behind: %v", tmps)
	}
}
