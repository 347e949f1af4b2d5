package roster

import (
	"context"
	"log/slog"
	"time"
)

// SyncRecorder は同期成功のメトリクス記録インターフェース。
// metrics.Recorderの部分集合として定義する。
type SyncRecorder interface {
	RecordRosterSync(users int)
}

// Scheduler は名簿キャッシュの定期リフレッシュを行う。
// 上流が落ちている間は古いキャッシュを維持し、エラーはログに記録して
// 呼び出し元へは伝播させない。
type Scheduler struct {
	cache    *Cache
	logger   *slog.Logger
	recorder SyncRecorder
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// recorderはnilでもよい。
func NewScheduler(cache *Cache, logger *slog.Logger, recorder SyncRecorder) *Scheduler {
	return &Scheduler{
		cache:    cache,
		logger:   logger,
		recorder: recorder,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("roster sync scheduler started",
		slog.Duration("interval", interval),
	)

	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("roster sync scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は名簿同期を1回実行する。
// 失敗してもキャッシュは劣化しない（FetchNowが全置換しないため）。
func (s *Scheduler) RunOnce(ctx context.Context) {
	start := time.Now()

	if err := s.cache.FetchNow(ctx); err != nil {
		s.logger.Error("roster sync failed, serving stale cache",
			slog.String("error", err.Error()),
			slog.Int("cached_users", s.cache.Len()),
		)
		return
	}

	if s.recorder != nil {
		s.recorder.RecordRosterSync(s.cache.Len())
	}

	s.logger.Info("roster sync completed",
		slog.Int("users", s.cache.Len()),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
