// Package storage はアップロードファイルの永続化と
// JSONドキュメントストアのファイルシステム実装を提供する。
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bibliohispa/hispanet/internal/model"
)

// ErrNotFound は対象のファイルまたはドキュメントが存在しないことを表す。
var ErrNotFound = errors.New("not found")

// maxSegmentLen はパスセグメントに許容する最大長。
const maxSegmentLen = 80

// UploadKind はアップロードの用途を表す閉じた集合。
// 用途によって保存先サブディレクトリと上書きポリシーが決まる。
type UploadKind string

const (
	// KindPhoto はイベント写真。events/<event>/<class>/ に保存する。
	KindPhoto UploadKind = "photo"
	// KindDashboard はダッシュボード画像。スロットキー固定名で上書き保存する。
	KindDashboard UploadKind = "dashboard"
	// KindResource は汎用リソースファイル。resources/<category>/ に保存する。
	KindResource UploadKind = "resource"
)

// UploadParams はアップロード1件の保存先を決めるパラメータ。
type UploadParams struct {
	Kind     UploadKind
	Event    string // Kind=photo: イベントのスラッグ
	Class    string // Kind=photo: クラスのスラッグ
	Slot     string // Kind=dashboard: スロットキー
	Category string // Kind=resource: カテゴリ

	Filename    string // クライアント宣言のファイル名（URLデコード済み）
	ContentType string
}

// SanitizeSegment はパスセグメントに使う文字列を無害化する。
// 英数字、ドット、アンダースコア、ハイフン以外は"-"に置換し、
// 先頭のドットを除去したうえで80文字に切り詰める。
// 結果が空になる場合は空文字列を返す（呼び出し側で拒否する）。
func SanitizeSegment(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	out := strings.TrimLeft(b.String(), ".")
	if len(out) > maxSegmentLen {
		out = out[:maxSegmentLen]
	}
	if strings.Trim(out, ".-_") == "" {
		return ""
	}
	return out
}

// contentTypeExts はContent-Type→拡張子の対応表。
var contentTypeExts = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"image/svg+xml":   ".svg",
	"application/pdf": ".pdf",
	"video/mp4":       ".mp4",
	"video/webm":      ".webm",
	"audio/mpeg":      ".mp3",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/vnd.ms-powerpoint": ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"application/zip": ".zip",
}

// ResolveExtension は拡張子を順序付きフォールバックで決定する:
// 宣言ファイル名の拡張子 → Content-Type対応表 → 汎用バイナリ拡張子。
func ResolveExtension(sanitizedFilename, contentType string) string {
	if ext := path.Ext(sanitizedFilename); len(ext) > 1 {
		return ext
	}

	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ext, ok := contentTypeExts[ct]; ok {
		return ext
	}

	return ".bin"
}

// Uploads はアップロードルート配下へのファイル永続化を提供する。
// 解決済み絶対パスがルート配下に収まることを保存・削除・配信の
// すべてで再検証する（入力の無害化だけに頼らない）。
type Uploads struct {
	root string
}

// NewUploads はUploadsを生成する。rootディレクトリが無ければ作成する。
func NewUploads(root string) (*Uploads, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload root: %w", err)
	}
	return &Uploads{root: abs}, nil
}

// Root はアップロードルートの絶対パスを返す。
func (u *Uploads) Root() string {
	return u.root
}

// resolve は相対パスをルート配下の絶対パスに解決する。
// 解決結果がルートの外に出る場合はInvalidPathを返す。
func (u *Uploads) resolve(rel string) (string, error) {
	abs := filepath.Join(u.root, filepath.FromSlash(rel))

	inside, err := filepath.Rel(u.root, abs)
	if err != nil || inside == ".." || strings.HasPrefix(inside, ".."+string(filepath.Separator)) {
		return "", model.NewInvalidPathError()
	}
	return abs, nil
}

// subdirFor はアップロード用途ごとの保存サブディレクトリを組み立てる。
func subdirFor(params UploadParams) (string, error) {
	switch params.Kind {
	case KindPhoto:
		event := SanitizeSegment(params.Event)
		class := SanitizeSegment(params.Class)
		if event == "" || class == "" {
			return "", model.NewInvalidPathError()
		}
		return path.Join("events", event, class), nil
	case KindDashboard:
		return "dashboard", nil
	case KindResource:
		category := SanitizeSegment(params.Category)
		if category == "" {
			return "", model.NewInvalidPathError()
		}
		return path.Join("resources", category), nil
	default:
		return "", fmt.Errorf("unknown upload kind: %q", params.Kind)
	}
}

// finalName はアップロード用途ごとの最終ファイル名を決定する。
// dashboardはスロットキー固定名で上書き、それ以外は宣言ファイル名をそのまま使う
// （一意性はシーケンス番号等を焼き込む呼び出し側の責任）。
func finalName(params UploadParams) (string, error) {
	sanitized := SanitizeSegment(params.Filename)
	ext := ResolveExtension(sanitized, params.ContentType)

	if params.Kind == KindDashboard {
		slot := SanitizeSegment(params.Slot)
		if slot == "" {
			return "", model.NewInvalidPathError()
		}
		slot = strings.TrimSuffix(slot, path.Ext(slot))
		return slot + ext, nil
	}

	if sanitized == "" {
		return "", model.NewInvalidPathError()
	}
	if path.Ext(sanitized) == "" {
		sanitized += ext
	}
	return sanitized, nil
}

// Save はリクエストボディをアップロード用途に応じたパスへ永続化し、
// 公開相対URL（/uploads/...）を返す。
// 一時ファイルに書いてからrenameで確定するため、最終パスが
// 書きかけの状態で並行リーダーから観測されることはない。
func (u *Uploads) Save(params UploadParams, body io.Reader) (string, error) {
	subdir, err := subdirFor(params)
	if err != nil {
		return "", err
	}

	name, err := finalName(params)
	if err != nil {
		return "", err
	}

	rel := path.Join(subdir, name)
	abs, err := u.resolve(rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload directory: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(abs), ".tmp-"+uuid.New().String())
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write upload body: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to commit upload: %w", err)
	}

	return "/uploads/" + rel, nil
}

// Delete は公開URL（/uploads/...）で指定されたファイルを削除する。
// ルート外への解決はInvalidPath、存在しない場合はErrNotFoundを返す。
func (u *Uploads) Delete(publicPath string) error {
	rel, ok := strings.CutPrefix(publicPath, "/uploads/")
	if !ok || rel == "" {
		return model.NewInvalidPathError()
	}

	abs, err := u.resolve(rel)
	if err != nil {
		return err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return ErrNotFound
	}

	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Resolve は配信用に相対パスをルート配下の絶対パスへ解決する。
// 通常ファイルでない場合やルート外の場合はエラーを返す。
func (u *Uploads) Resolve(rel string) (string, error) {
	abs, err := u.resolve(rel)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}

	return abs, nil
}
