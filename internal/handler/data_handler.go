package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/bibliohispa/hispanet/internal/storage"
)

// DocumentStore はJSONドキュメントストアのインターフェース。
// storage.DataStoreの部分集合として定義する。
type DocumentStore interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
}

// DataHandler は許可リスト済みキーのJSONドキュメント読み書きハンドラー。
type DataHandler struct {
	store DocumentStore
}

// NewDataHandler はDataHandlerを生成する。
func NewDataHandler(store DocumentStore) *DataHandler {
	return &DataHandler{store: store}
}

// Get はキーのドキュメント全体を生のJSONとして返す。
// GET /api/data?key=<allow-listed>
// 未書き込みのキーは404（クライアントは組み込みデフォルトにフォールバックする）。
func (h *DataHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	data, err := h.store.Read(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Put はキーのドキュメント全体をリクエストボディで置き換える。
// POST /api/data?key=<allow-listed>
func (h *DataHandler) Put(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")

	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "No se ha podido leer el cuerpo de la petición.")
		return
	}

	if err := h.store.Write(key, data); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
