package handler

import (
	"io"
	"net/http"
	"net/url"

	"github.com/bibliohispa/hispanet/internal/storage"
)

// Uploader はアップロード永続化のインターフェース。
// storage.Uploadsの部分集合として定義する。
type Uploader interface {
	Save(params storage.UploadParams, body io.Reader) (string, error)
}

// UploadRecorder はアップロードのメトリクス記録インターフェース。
type UploadRecorder interface {
	RecordUpload(kind string, bytes int64)
}

// UploadHandler は生のリクエストボディをディスクに永続化するハンドラー。
type UploadHandler struct {
	uploads Uploader
	metrics UploadRecorder
}

// NewUploadHandler はUploadHandlerを生成する。
func NewUploadHandler(uploads Uploader, metrics UploadRecorder) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
		metrics: metrics,
	}
}

// countingReader は読み取ったバイト数を数えるio.Readerラッパー。
type countingReader struct {
	r io.Reader
	n int64
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	cr.n += int64(n)
	return n, err
}

// Upload はクエリパラメータからアップロード用途を解決し、ボディを保存する。
// POST /api/upload?type={photo|dashboard|resource}&... ヘッダー X-Filename（URLエンコード済み）
// レスポンス: {success:true, url:"/uploads/..."}
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	kind := storage.UploadKind(q.Get("type"))
	switch kind {
	case storage.KindPhoto, storage.KindDashboard, storage.KindResource:
	default:
		writeBadRequest(w, "Tipo de subida no válido.")
		return
	}

	// X-FilenameはURLエンコード済み。デコード失敗時は生の値を使う。
	filename := r.Header.Get("X-Filename")
	if decoded, err := url.QueryUnescape(filename); err == nil {
		filename = decoded
	}

	params := storage.UploadParams{
		Kind:        kind,
		Event:       q.Get("event"),
		Class:       q.Get("class"),
		Slot:        q.Get("slot"),
		Category:    q.Get("category"),
		Filename:    filename,
		ContentType: r.Header.Get("Content-Type"),
	}

	body := &countingReader{r: r.Body}
	publicURL, err := h.uploads.Save(params, body)
	if err != nil {
		writeError(w, err)
		return
	}

	h.metrics.RecordUpload(string(kind), body.n)

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     publicURL,
	})
}
