package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/schedly/internal/metrics"
	"github.com/hitoshi/schedly/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// HealthChecker は/healthで依存先の疎通を確認するためのインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Authenticator     middleware.Authenticator
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter // nilならレート制限をかけない
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder

	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer

	// ドメインサービス
	TokenVerifier       TokenVerifier
	RegistrationService RegistrationService
	UserService         UserServiceInterface
	AvailabilityService AvailabilityServiceInterface
	EventService        EventServiceInterface
	BookingService      BookingServiceInterface
	ConnectionService   ConnectionServiceInterface
	MeetingService      MeetingServiceInterface
	CalendarConnector   CalendarConnector
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Auth → RateLimit(General)
//
// /health、/metrics、/api/auth/verify は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.TokenVerifier, deps.RegistrationService)
	userHandler := NewUserHandler(deps.UserService)
	availHandler := NewAvailabilityHandler(deps.AvailabilityService)
	eventHandler := NewEventHandler(deps.EventService)
	bookingHandler := NewBookingHandler(deps.BookingService)
	connHandler := NewConnectionHandler(deps.ConnectionService)
	meetingHandler := NewMeetingHandler(deps.MeetingService)
	calendarHandler := NewCalendarHandler(deps.CalendarConnector)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}
	r.Post("/api/auth/verify", authHandler.Verify)

	// 登録前のユーザーはIDトークンの検証のみで通す
	r.With(middleware.NewIdentityMiddleware(deps.Authenticator)).Post("/api/auth/register", authHandler.Register)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General、設定時のみ)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.Authenticator))
		write := func(next http.Handler) http.Handler { return next }
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
			write = deps.RateLimiter.WriteMiddleware()
		}

		r.Get("/api/auth/me", authHandler.Me)

		// ユーザー
		r.Route("/api/users", func(r chi.Router) {
			r.Put("/me", userHandler.UpdateProfile)
			r.Delete("/me", userHandler.Withdraw)
			r.Get("/username/{username}", userHandler.GetByUsername)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", userHandler.Get)
				r.Get("/availability", availHandler.GetForUser)
				r.Get("/slots", availHandler.Slots)
				r.Get("/events", eventHandler.ListPublic)
			})
		})

		// 空き時間
		r.Route("/api/availability", func(r chi.Router) {
			r.Get("/", availHandler.GetMine)
			r.Post("/", availHandler.Create)
			r.Put("/", availHandler.Update)
			r.Delete("/", availHandler.Delete)
		})

		// イベント
		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", eventHandler.ListMine)
			r.Post("/", eventHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", eventHandler.Get)
				r.Put("/", eventHandler.Update)
				r.Delete("/", eventHandler.Delete)
				r.Get("/bookings", bookingHandler.ListByEvent)
			})
		})

		// 予約（作成系レート制限を追加）
		r.Route("/api/bookings", func(r chi.Router) {
			r.Get("/", bookingHandler.ListMine)
			r.With(write).Post("/", bookingHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", bookingHandler.Get)
				r.Put("/", bookingHandler.Update)
				r.Delete("/", bookingHandler.Delete)
			})
		})

		// つながり
		r.Route("/api/connections", func(r chi.Router) {
			r.Get("/", connHandler.ListAccepted)
			r.With(write).Post("/", connHandler.Send)
			r.Get("/pending/sent", connHandler.ListPendingSent)
			r.Get("/pending/received", connHandler.ListPendingReceived)
			r.Get("/blocked", connHandler.ListBlocked)
			r.Get("/check/{userId}", connHandler.Check)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", connHandler.Remove)
				r.Post("/accept", connHandler.Accept)
				r.Post("/reject", connHandler.Reject)
				r.Post("/block", connHandler.Block)
			})
		})

		// ミーティングリクエスト
		r.Route("/api/meeting-requests", func(r chi.Router) {
			r.With(write).Post("/", meetingHandler.Create)
			r.Get("/pending", meetingHandler.ListPending)
			r.Get("/sent", meetingHandler.ListSent)
			r.Get("/received", meetingHandler.ListReceived)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", meetingHandler.Get)
				r.Post("/approve", meetingHandler.Approve)
				r.Post("/reject", meetingHandler.Reject)
			})
		})

		// Googleカレンダー連携
		r.Route("/api/google-calendar", func(r chi.Router) {
			r.Get("/auth-url", calendarHandler.AuthURL)
			r.Post("/exchange-token", calendarHandler.ExchangeToken)
			r.Delete("/", calendarHandler.Disconnect)
		})
	})

	return r
}

// healthHandler はDBへの疎通を確認し、結果を返すハンドラーを生成する。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Error("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
