package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/schedly/internal/config"
	"github.com/hitoshi/schedly/internal/metrics"
	"github.com/hitoshi/schedly/internal/middleware"
	"github.com/hitoshi/schedly/internal/notify"
	"github.com/hitoshi/schedly/internal/security"
)

// newRegistry はプロセス共通のメトリクスレジストリとCollectorを生成する。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newRedisClient はREDIS_URLからRedisクライアントを生成し、疎通を確認する。
func newRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// newMailer はEMAIL_ENABLEDに応じてSMTP送信またはログ出力のMailerを返す。
func newMailer(cfg *config.Config, recorder notify.EmailRecorder) notify.Mailer {
	if !cfg.EmailEnabled {
		return notify.LogMailer{}
	}
	return notify.NewSMTPMailer(notify.SMTPConfig{
		Host:          cfg.SMTPHost,
		Port:          cfg.SMTPPort,
		Username:      cfg.SMTPUsername,
		Password:      cfg.SMTPPassword,
		From:          cfg.EmailFrom,
		RatePerMinute: cfg.EmailRatePerMinute,
		Timeout:       cfg.NotifyTimeout,
	}, recorder)
}

// newDeliverer はメール通知のDelivererを組み立てる。
// APIプロセス（インライン配送）とワーカーの両方で使う。
func newDeliverer(cfg *config.Config, collector *metrics.Collector) (*notify.EmailDeliverer, error) {
	loc, err := cfg.SlotLocation()
	if err != nil {
		return nil, err
	}
	return notify.NewEmailDeliverer(
		newMailer(cfg, collector),
		security.NewEmailSanitizer(),
		loc,
		cfg.BaseURL,
	), nil
}

// newRateLimiter は1分あたりの設定値からRateLimiterを生成する。
// どちらも0以下の場合はnilを返し、レート制限を無効にする。
func newRateLimiter(cfg *config.Config) *middleware.RateLimiter {
	if cfg.RateLimitGeneral <= 0 && cfg.RateLimitWrite <= 0 {
		return nil
	}
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitWrite > 0 {
		rlCfg.WriteRate = rate.Limit(float64(cfg.RateLimitWrite) / 60)
		rlCfg.WriteBurst = cfg.RateLimitWrite
	}
	return middleware.NewRateLimiter(rlCfg)
}

// Pinger は疎通確認ができる依存先。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// IdentityChecker はIDトークン検証器が利用可能かを確認できる依存先。
type IdentityChecker interface {
	Ready(ctx context.Context) error
}

// readiness はDB、Redis（設定時のみ）、IDトークン検証器の状態をまとめて確認する。/healthで使う。
type readiness struct {
	db       Pinger
	redis    *redis.Client
	identity IdentityChecker
}

// PingContext は全ての依存先に疎通を確認し、失敗をまとめて返す。
func (r readiness) PingContext(ctx context.Context) error {
	var errs []error
	if r.db != nil {
		if err := r.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if r.redis != nil {
		if err := r.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if r.identity != nil {
		if err := r.identity.Ready(ctx); err != nil {
			errs = append(errs, fmt.Errorf("identity: %w", err))
		}
	}
	return errors.Join(errs...)
}

// newPublisher はREDIS_URLが設定されていればasynqのキューに、
// 未設定ならその場で配送するPublisherを返す。返すcloseは終了時に呼ぶ。
func newPublisher(cfg *config.Config, rdb *redis.Client, deliverer notify.Deliverer) (notify.Publisher, func() error) {
	if rdb == nil {
		return notify.NewInlinePublisher(deliverer), func() error { return nil }
	}
	client := asynq.NewClient(notify.RedisConnOpt(rdb))
	return notify.NewQueuePublisher(client, notify.QueueOptions{
		Queue:    cfg.NotifyQueue,
		MaxRetry: cfg.NotifyMaxRetry,
		Timeout:  cfg.NotifyTimeout,
	}), client.Close
}
