package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

type recordingSyncRecorder struct {
	calls []int
}

func (r *recordingSyncRecorder) RecordRosterSync(users int) {
	r.calls = append(r.calls, users)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestScheduler_RunOnce_RecordsMetricsOnSuccess(t *testing.T) {
	fetcher := &fakeFetcher{records: []RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	}}
	cache := NewCache(fetcher, "colegiolahispanidad.es")
	recorder := &recordingSyncRecorder{}

	s := NewScheduler(cache, discardLogger(), recorder)
	s.RunOnce(context.Background())

	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
	if len(recorder.calls) != 1 || recorder.calls[0] != 1 {
		t.Errorf("recorder calls = %v, want [1]", recorder.calls)
	}
}

func TestScheduler_RunOnce_FailureKeepsStaleCache(t *testing.T) {
	fetcher := &fakeFetcher{records: []RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	}}
	cache := NewCache(fetcher, "colegiolahispanidad.es")
	recorder := &recordingSyncRecorder{}
	s := NewScheduler(cache, discardLogger(), recorder)

	s.RunOnce(context.Background())

	// 2回目は上流が落ちる
	fetcher.err = errors.New("upstream down")
	s.RunOnce(context.Background())

	if cache.Len() != 1 {
		t.Errorf("Len() = %d, stale cache should survive failed sync", cache.Len())
	}
	if len(recorder.calls) != 1 {
		t.Errorf("recorder calls = %v, failure should not record", recorder.calls)
	}
}

func TestScheduler_RunOnce_NilRecorder(t *testing.T) {
	fetcher := &fakeFetcher{records: []RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	}}
	cache := NewCache(fetcher, "colegiolahispanidad.es")

	s := NewScheduler(cache, discardLogger(), nil)
	s.RunOnce(context.Background()) // panicしないこと

	if cache.Len() != 1 {
		t.Errorf("Len() = %d, want 1", cache.Len())
	}
}

func TestScheduler_Start_RunsImmediatelyAndStopsOnCancel(t *testing.T) {
	fetcher := &fakeFetcher{records: []RawUser{
		{"id": "u-1", "email": "marta@colegiolahispanidad.es", "role": "PROFESORA"},
	}}
	cache := NewCache(fetcher, "colegiolahispanidad.es")
	s := NewScheduler(cache, discardLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx, time.Hour)
		close(done)
	}()

	// 起動直後の1回目の同期を待つ
	deadline := time.After(2 * time.Second)
	for cache.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sync did not run")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
