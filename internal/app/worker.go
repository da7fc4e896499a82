package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/schedly/internal/config"
	"github.com/hitoshi/schedly/internal/database"
	"github.com/hitoshi/schedly/internal/metrics"
	"github.com/hitoshi/schedly/internal/notify"
	"github.com/hitoshi/schedly/internal/worker/cleanup"
)

// ErrRedisRequired はワーカーの起動にREDIS_URLが必要であることを表す。
var ErrRedisRequired = errors.New("REDIS_URL is required to run the worker")

// runWorker はワーカーモードで起動する。
// 通知キューを購読してメールを配送する。CLEANUP_RETENTION_DAYSが設定されていれば
// 解決済みミーティングリクエストの定期削除も行う。
// メトリクスは別ポートで公開する。SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.RedisURL == "" {
		return ErrRedisRequired
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Redis接続
	rdb, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	slog.Info("redis connection established (worker)")

	// 2. タスクハンドラーの初期化
	reg, collector := newRegistry()

	deliverer, err := newDeliverer(cfg, collector)
	if err != nil {
		return err
	}

	mux := asynq.NewServeMux()
	notify.NewProcessor(deliverer, collector).Register(mux)

	// 3. 定期削除ジョブ（CLEANUP_RETENTION_DAYS設定時のみ。DB接続もこのときだけ行う）
	if cleanup.Enabled(cfg.CleanupRetentionDays) {
		db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established (worker)")

		cleanup.NewCleanupJob(db, slog.Default(), cfg.CleanupRetentionDays).Register(mux)
	}

	server := asynq.NewServer(notify.RedisConnOpt(rdb), asynq.Config{
		Concurrency:     cfg.NotifyConcurrency,
		Queues:          map[string]int{cfg.NotifyQueue: 1},
		Logger:          notify.AsynqLogger{},
		RetryDelayFunc:  notify.RetryDelay,
		ShutdownTimeout: cfg.NotifyTimeout,
	})

	// Scheduler.Shutdownは接続を閉じるため、共有クライアントとは別の接続を使う
	schedulerOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	loc, err := cfg.SlotLocation()
	if err != nil {
		return err
	}
	scheduler := asynq.NewScheduler(schedulerOpt, &asynq.SchedulerOpts{
		Logger:   notify.AsynqLogger{},
		Location: loc,
	})
	if _, err := cleanup.Schedule(scheduler, cfg.CleanupSchedule, cfg.NotifyQueue, cfg.CleanupRetentionDays); err != nil {
		return err
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("worker starting",
		slog.String("queue", cfg.NotifyQueue),
		slog.Int("concurrency", cfg.NotifyConcurrency),
		slog.String("cleanup_schedule", cfg.CleanupSchedule),
		slog.Int("cleanup_retention_days", cfg.CleanupRetentionDays),
		slog.String("metrics_addr", metricsServer.Addr),
	)

	// 4. キューサーバー、スケジューラー、メトリクスサーバーを並行して動かす
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(mux); err != nil {
			return fmt.Errorf("failed to start queue server: %w", err)
		}
		<-gctx.Done()
		server.Shutdown()
		return nil
	})

	g.Go(func() error {
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gctx.Done()
		scheduler.Shutdown()
		return nil
	})

	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}
