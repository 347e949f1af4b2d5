package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bibliohispa/hispanet/internal/model"
	"github.com/bibliohispa/hispanet/internal/storage"
)

// FileStore はアップロード済みファイルの削除・解決インターフェース。
// storage.Uploadsの部分集合として定義する。
type FileStore interface {
	Delete(publicPath string) error
	Resolve(rel string) (string, error)
}

// FileHandler はアップロード済みファイルの削除と静的配信のハンドラー。
type FileHandler struct {
	files FileStore
}

// NewFileHandler はFileHandlerを生成する。
func NewFileHandler(files FileStore) *FileHandler {
	return &FileHandler{files: files}
}

// uploadedCacheControl はアップロード済みファイルのキャッシュヘッダー。
// ファイルは命名後イミュータブルとして扱う。ダッシュボード画像の上書きだけは
// 例外で、クライアント側のキャッシュバスティングに依存する（既知の制限）。
const uploadedCacheControl = "public, max-age=31536000, immutable"

// Delete は公開URLで指定されたアップロード済みファイルを削除する。
// DELETE /api/file?path=/uploads/...
// ルート外への解決は403、存在しないファイルは404。
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	publicPath := r.URL.Query().Get("path")
	if publicPath == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "falta el parámetro path"})
		return
	}

	err := h.files.Delete(publicPath)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, storage.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "el archivo no existe"})
	case isPathViolation(err):
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "ruta fuera del directorio de subidas"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
	}
}

// Serve はアップロード済みファイルをストリーム配信する。
// GET /uploads/*
// ルート外への解決は403、存在しない・通常ファイルでない場合は404。
func (h *FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")

	abs, err := h.files.Resolve(rel)
	switch {
	case err == nil:
		w.Header().Set("Cache-Control", uploadedCacheControl)
		http.ServeFile(w, r, abs)
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	case isPathViolation(err):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// isPathViolation はエラーがパス封じ込め違反かを判定する。
func isPathViolation(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeInvalidPath
}
