package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/schedly/internal/auth"
	"github.com/hitoshi/schedly/internal/availability"
	"github.com/hitoshi/schedly/internal/booking"
	"github.com/hitoshi/schedly/internal/calendar"
	"github.com/hitoshi/schedly/internal/config"
	"github.com/hitoshi/schedly/internal/connection"
	"github.com/hitoshi/schedly/internal/database"
	"github.com/hitoshi/schedly/internal/event"
	"github.com/hitoshi/schedly/internal/handler"
	"github.com/hitoshi/schedly/internal/meeting"
	"github.com/hitoshi/schedly/internal/notify"
	"github.com/hitoshi/schedly/internal/repository"
	"github.com/hitoshi/schedly/internal/security"
	"github.com/hitoshi/schedly/internal/user"
)

// identityHTTPTimeout はFirebaseの公開鍵取得に使うHTTPクライアントのタイムアウト。
const identityHTTPTimeout = 10 * time.Second

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL, database.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: 30 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis（任意）
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = newRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		slog.Info("redis connection established")
	} else {
		slog.Warn("REDIS_URLが未設定のため通知をインラインで配送します")
	}

	// 3. メトリクスと通知
	reg, collector := newRegistry()

	deliverer, err := newDeliverer(cfg, collector)
	if err != nil {
		return err
	}
	publisher, closePublisher := newPublisher(cfg, rdb, deliverer)
	defer func() {
		if err := closePublisher(); err != nil {
			slog.Warn("通知キュークライアントの終了に失敗しました", slog.String("error", err.Error()))
		}
	}()
	dispatcher := notify.NewDispatcher(publisher, collector, notify.DefaultPublishTimeout)

	// 4. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	eventRepo := repository.NewPostgresEventRepo(db)
	availRepo := repository.NewPostgresAvailabilityRepo(db)
	bookingRepo := repository.NewPostgresBookingRepo(db)
	connRepo := repository.NewPostgresConnectionRepo(db)
	meetingRepo := repository.NewPostgresMeetingRequestRepo(db)

	// 5. 外部連携の初期化
	guard := security.NewURLGuard()
	googleClient := guard.NewSafeClient(cfg.CalendarTimeout)

	oauthCfg := calendar.NewOAuth2Config(calendar.OAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	provisioner := calendar.NewGoogleProvisioner(oauthCfg, googleClient)
	linker := calendar.NewLinker(provisioner, userRepo, collector, cfg.CalendarTimeout)
	connector := calendar.NewConnector(
		oauthCfg, googleClient,
		calendar.NewStateSigner(cfg.OAuthStateSecret, cfg.OAuthStateTTL),
		userRepo,
	)

	verifier := auth.NewFirebaseVerifier(auth.FirebaseConfig{
		ProjectID:  cfg.FirebaseProjectID,
		HTTPClient: guard.NewSafeClient(identityHTTPTimeout),
	})

	// 6. ドメインサービスの初期化
	loc, err := cfg.SlotLocation()
	if err != nil {
		return err
	}

	userService := user.NewService(userRepo, guard)
	authService := auth.NewService(verifier, userService)
	availService := availability.NewService(availRepo, userRepo, availability.NewEngine(loc, cfg.SlotHorizonDays))
	eventService := event.NewService(eventRepo, userRepo, linker)
	bookingService := booking.NewService(bookingRepo, eventRepo, userRepo, dispatcher, collector)
	connService := connection.NewService(connRepo, userRepo, dispatcher, collector)
	meetingService := meeting.NewService(meetingRepo, userRepo, connService, linker, dispatcher, collector)

	// 7. ルーターの構築
	rateLimiter := newRateLimiter(cfg)
	if rateLimiter != nil {
		defer rateLimiter.Stop()
	}
	slog.Info("レート制限の設定",
		slog.Bool("enabled", rateLimiter != nil),
		slog.Int("general_per_minute", cfg.RateLimitGeneral),
		slog.Int("write_per_minute", cfg.RateLimitWrite),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     authService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,

		HealthChecker: readiness{db: db, redis: rdb, identity: verifier},
		Gatherer:      reg,

		TokenVerifier:       authService,
		RegistrationService: userService,
		UserService:         userService,
		AvailabilityService: availService,
		EventService:        eventService,
		BookingService:      bookingService,
		ConnectionService:   connService,
		MeetingService:      meetingService,
		CalendarConnector:   connector,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// 発行中の通知を待ってからキュー接続を閉じる
	dispatcher.Wait()

	slog.Info("API server stopped gracefully")
	return nil
}
