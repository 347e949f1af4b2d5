package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bibliohispa/hispanet/internal/roster"
)

type fakeRosterSource struct {
	records  []roster.RawUser
	fetchErr error
	onFetch  func()
	fetched  int
}

func (f *fakeRosterSource) All() []roster.RawUser {
	return f.records
}

func (f *fakeRosterSource) FetchNow(ctx context.Context) error {
	f.fetched++
	if f.onFetch != nil {
		f.onFetch()
	}
	return f.fetchErr
}

func TestRosterHandler_List_ServesCachedRecords(t *testing.T) {
	source := &fakeRosterSource{records: []roster.RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA", "extra": "verbatim"},
	}}
	h := NewRosterHandler(source)

	req := httptest.NewRequest(http.MethodGet, "/api/prisma-users", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got []map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	// 正規化前のレコードがそのまま返ること
	if got[0]["extra"] != "verbatim" {
		t.Errorf("record = %v", got[0])
	}

	// キャッシュが温かいうちは上流を呼ばないこと
	if source.fetched != 0 {
		t.Errorf("FetchNow called %d times, want 0", source.fetched)
	}
}

func TestRosterHandler_List_ColdStartFetchesOnDemand(t *testing.T) {
	source := &fakeRosterSource{}
	source.onFetch = func() {
		source.records = []roster.RawUser{{"id": "u-1"}}
	}
	h := NewRosterHandler(source)

	req := httptest.NewRequest(http.MethodGet, "/api/prisma-users", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if source.fetched != 1 {
		t.Errorf("FetchNow called %d times, want 1", source.fetched)
	}
}

func TestRosterHandler_List_UpstreamDownReturns502(t *testing.T) {
	source := &fakeRosterSource{fetchErr: errors.New("upstream down")}
	h := NewRosterHandler(source)

	req := httptest.NewRequest(http.MethodGet, "/api/prisma-users", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := body["error"]; !ok {
		t.Error("502 body should carry an error field")
	}
}

func TestRosterHandler_List_EmptyIsJSONArrayNotNull(t *testing.T) {
	source := &fakeRosterSource{} // 取得しても空のまま
	h := NewRosterHandler(source)

	req := httptest.NewRequest(http.MethodGet, "/api/prisma-users", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got == "null\n" {
		t.Errorf("body = %q, want JSON array", got)
	}
}
