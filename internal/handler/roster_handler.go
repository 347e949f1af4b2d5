package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/bibliohispa/hispanet/internal/roster"
)

// RosterSource は名簿パススルーのインターフェース。
// roster.Cacheの部分集合として定義する。
type RosterSource interface {
	All() []roster.RawUser
	FetchNow(ctx context.Context) error
}

// RosterHandler はレガシー互換の名簿パススルーハンドラー。
type RosterHandler struct {
	source RosterSource
}

// NewRosterHandler はRosterHandlerを生成する。
func NewRosterHandler(source RosterSource) *RosterHandler {
	return &RosterHandler{source: source}
}

// List は上流レコードの配列をそのまま返す。
// GET /api/prisma-users
// キャッシュが空の場合（コールドスタート）は1回だけオンデマンド取得し、
// それでも空で上流にも到達できない場合は502を返す。
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	records := h.source.All()

	if len(records) == 0 {
		if err := h.source.FetchNow(r.Context()); err != nil {
			slog.Error("roster passthrough fetch failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
			return
		}
		records = h.source.All()
	}

	if records == nil {
		records = []roster.RawUser{}
	}
	writeJSON(w, http.StatusOK, records)
}
