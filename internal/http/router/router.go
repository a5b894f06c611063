package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/health"
	"github.com/sehyun-p/clubsync/internal/http/handler"
	"github.com/sehyun-p/clubsync/internal/http/middleware"
	"github.com/sehyun-p/clubsync/internal/http/response"
	"github.com/sehyun-p/clubsync/internal/security"
)

type Dependencies struct {
	AuthHandler       *handler.AuthHandler
	MemberHandler     *handler.MemberHandler
	SessionHandler    *handler.SessionHandler
	CheckInHandler    *handler.CheckInHandler
	AttendanceHandler *handler.AttendanceHandler
	ExcuseHandler     *handler.ExcuseHandler
	NoticeHandler     *handler.NoticeHandler
	PointHandler      *handler.PointHandler

	JWTManager *security.JWTManager

	CORSOrigins      []string
	AuthRateLimitRPM int
	ScanRateLimitRPM int
	APIRateLimitRPM  int

	GlobalRateLimiter func(http.Handler) http.Handler
	AuthRateLimiter   func(http.Handler) http.Handler
	ScanRateLimiter   func(http.Handler) http.Handler
	Idempotency       func(scope string) func(http.Handler) http.Handler

	Readiness      *health.ProbeRunner
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))
	if dep.GlobalRateLimiter != nil {
		r.Use(dep.GlobalRateLimiter)
	} else {
		r.Use(middleware.NewRateLimiter(dep.APIRateLimitRPM, time.Minute).Middleware())
	}

	authLimiter := dep.AuthRateLimiter
	if authLimiter == nil {
		authLimiter = middleware.NewRateLimiter(dep.AuthRateLimitRPM, time.Minute).Middleware()
	}
	scanLimiter := dep.ScanRateLimiter
	if scanLimiter == nil {
		scanLimiter = middleware.NewRateLimiterWithKey(dep.ScanRateLimitRPM, time.Minute,
			middleware.SubjectOrIPKeyFunc(dep.JWTManager)).Middleware()
	}
	requireAuth := middleware.AuthMiddleware(dep.JWTManager)
	requireOperator := middleware.RequireRole(string(domain.RoleOperator), string(domain.RoleAdmin))
	requireAdmin := middleware.RequireRole(string(domain.RoleAdmin))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			registerChain := []func(http.Handler) http.Handler{authLimiter}
			if dep.Idempotency != nil {
				registerChain = append(registerChain, dep.Idempotency("auth.register"))
			}
			r.With(registerChain...).Post("/register", dep.AuthHandler.Register)
			r.With(authLimiter).Post("/login", dep.AuthHandler.Login)
			r.With(requireAuth).Post("/logout", dep.AuthHandler.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/me", dep.MemberHandler.Me)
			r.Patch("/me", dep.MemberHandler.UpdateProfile)
			r.Post("/me/onboarding", dep.MemberHandler.CompleteOnboarding)
			r.Get("/me/attendance", dep.AttendanceHandler.MyAttendance)
			r.Get("/me/points", dep.PointHandler.MySummary)
			r.Get("/me/points/history", dep.PointHandler.MyHistory)
		})

		r.Route("/checkin", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(scanLimiter).Post("/token", dep.CheckInHandler.IssueToken)
			r.With(requireOperator, scanLimiter).Post("/scan", dep.CheckInHandler.Scan)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", dep.SessionHandler.List)
			r.Get("/{id}", dep.SessionHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireOperator)
				r.Post("/", dep.SessionHandler.Create)
				r.Patch("/{id}/timing", dep.SessionHandler.UpdateTiming)
				r.Get("/{id}/attendance", dep.AttendanceHandler.ListBySession)
				r.Get("/{id}/excuses", dep.ExcuseHandler.ListBySession)
			})
			r.With(requireAdmin).Post("/{id}/finalize", dep.SessionHandler.Finalize)
		})

		r.Route("/excuses", func(r chi.Router) {
			r.Use(requireAuth)
			submitChain := []func(http.Handler) http.Handler{}
			if dep.Idempotency != nil {
				submitChain = append(submitChain, dep.Idempotency("excuse.submit"))
			}
			r.With(submitChain...).Post("/", dep.ExcuseHandler.Submit)
			r.With(requireOperator).Post("/{id}/approve", dep.ExcuseHandler.Approve)
		})

		r.Route("/notices", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", dep.NoticeHandler.List)
			r.Get("/{id}", dep.NoticeHandler.Get)
			r.Group(func(r chi.Router) {
				r.Use(requireOperator)
				r.Post("/", dep.NoticeHandler.Create)
				r.Patch("/{id}", dep.NoticeHandler.Update)
				r.Delete("/{id}", dep.NoticeHandler.Delete)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(requireOperator).Get("/members", dep.MemberHandler.List)
			r.With(requireAdmin).Post("/members/{id}/approve", dep.MemberHandler.Approve)
			r.With(requireOperator).Get("/members/{id}/points", dep.PointHandler.MemberSummary)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
