package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/bibliohispa/hispanet/internal/model"
)

// allowedKeys はデータストアで許可される論理キーの閉じた集合。
// 規約ではなく明示的な集合としてファイルシステム操作の前に検査する。
var allowedKeys = map[string]struct{}{
	"hispa_resources":        {}, // リソース一覧
	"hispa_events":           {}, // イベント（写真アルバム）一覧
	"hispa_nav_items":        {}, // サイドバーのナビゲーションツリー
	"hispa_sections":         {}, // セクションのメタデータ
	"hispa_dashboard_images": {}, // ダッシュボード画像のスロットマップ
}

// AllowedKey はキーが許可リストに含まれるかを返す。
func AllowedKey(key string) bool {
	_, ok := allowedKeys[key]
	return ok
}

// AllowedKeys は許可キーの一覧をソート済みで返す。テストおよび診断用。
func AllowedKeys() []string {
	keys := make([]string, 0, len(allowedKeys))
	for k := range allowedKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DataStore は許可リスト済みキーごとに1つのJSONドキュメントを
// ファイルとして保持するストア。ドキュメントは常に全体で読み書きし、
// 部分更新は行わない。同一キーへの並行書き込みはlast-write-wins
// （ドキュメント化された制限であり、修正対象ではない）。
type DataStore struct {
	dir string
}

// NewDataStore はDataStoreを生成する。dirが無ければ作成する。
func NewDataStore(dir string) (*DataStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	return &DataStore{dir: abs}, nil
}

// Read はキーのドキュメント全体を返す。
// キーが許可リスト外の場合はInvalidKey、未書き込みの場合はErrNotFoundを返す
// （呼び出し側はErrNotFoundを「組み込みデフォルトを使え」のシグナルとして扱う）。
func (s *DataStore) Read(key string) ([]byte, error) {
	if !AllowedKey(key) {
		return nil, model.NewInvalidKeyError(key)
	}

	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document %q: %w", key, err)
	}
	return data, nil
}

// Write はキーのドキュメント全体を置き換える。
// 一時ファイルに書いてからrenameで確定するため、リーダーが
// 書きかけのドキュメントを観測することはない。
func (s *DataStore) Write(key string, data []byte) error {
	if !AllowedKey(key) {
		return model.NewInvalidKeyError(key)
	}

	tmp := filepath.Join(s.dir, ".tmp-"+uuid.New().String())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write document %q: %w", key, err)
	}
	if err := os.Rename(tmp, s.pathFor(key)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit document %q: %w", key, err)
	}
	return nil
}

// pathFor はキーに対応するファイルパスを返す。
// キーは許可リスト検査済みであることが前提。
func (s *DataStore) pathFor(key string) string {
	return filepath.Join(s.dir, key+".json")
}
