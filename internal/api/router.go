// Package api exposes the attendance service over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iancossa/attendance-fullstack/internal/alert"
	"github.com/iancossa/attendance-fullstack/internal/attendance"
	"github.com/iancossa/attendance-fullstack/internal/auth"
	"github.com/iancossa/attendance-fullstack/internal/catalog"
	"github.com/iancossa/attendance-fullstack/internal/httpmiddleware"
	"github.com/iancossa/attendance-fullstack/internal/justification"
	"github.com/iancossa/attendance-fullstack/internal/logging"
	"github.com/iancossa/attendance-fullstack/internal/notify"
	"github.com/iancossa/attendance-fullstack/internal/queue"
)

// Attendance is the service surface the handlers call.
type Attendance interface {
	Justifications(ctx context.Context, f attendance.Filter) ([]attendance.Justification, error)
	ReviewJustification(ctx context.Context, id string, approve bool, note, reviewer string) (*attendance.Justification, error)
	StudentRisk(ctx context.Context, key string) (attendance.Risk, error)
	AlertStudent(ctx context.Context, key string) (alert.Student, error)
}

type Catalog interface {
	Create(ctx context.Context, rec catalog.Record) (catalog.Record, error)
	List(ctx context.Context, kind catalog.Kind, limit, offset int) ([]catalog.Record, error)
}

// Feed is the readable side of the notification sink.
type Feed interface {
	Recent(ctx context.Context, limit int) ([]notify.Event, error)
}

type AlertSender interface {
	Send(ctx context.Context, msg alert.Message) error
}

// HealthCheck reports named dependency health.
type HealthCheck func(ctx context.Context) map[string]bool

type Deps struct {
	Attendance Attendance
	Forms      *justification.Registry
	Composer   *alert.Composer
	Alerts     AlertSender
	Queue      queue.Queue
	Catalog    Catalog
	Feed       Feed
	Issuer     *auth.Issuer
	Logger     logging.Logger
	Health     HealthCheck

	// DevTokens enables POST /auth/token; never in production.
	DevTokens      bool
	CORSOrigins    []string
	RateLimiter    *httpmiddleware.TokenBucket
	MaxUploadBytes int64
}

// NewRouter wires middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 32 << 20
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(securityHeaders())

	// limit runs after Authenticate so callers are bucketed by subject
	var limit gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if d.RateLimiter != nil {
		limit = d.RateLimiter.Middleware(rateKey)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", healthz(d.Health))
	if d.DevTokens {
		r.POST("/auth/token", limit, devToken(d.Issuer))
	}
	r.POST("/auth/refresh", limit, refreshToken(d.Issuer))

	v1 := r.Group("/v1", auth.Authenticate(d.Issuer), limit)
	registerJustificationRoutes(v1, d)
	registerRiskRoutes(v1, d)
	registerAlertRoutes(v1.Group("", auth.RequireRole(auth.RoleFaculty, auth.RoleAdmin)), d)
	registerCatalogRoutes(v1.Group("/catalog", auth.RequireRole(auth.RoleAdmin)), d)
	v1.GET("/notifications", notifications(d))
	return r
}

// rateKey buckets authenticated callers by subject and everyone else by IP.
func rateKey(c *gin.Context) string {
	if claims, ok := auth.ClaimsFrom(c); ok {
		return "sub:" + claims.Subject
	}
	return httpmiddleware.ByClientIP(c)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func healthz(check HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		deps := map[string]bool{}
		if check != nil {
			deps = check(c.Request.Context())
		}
		status := http.StatusOK
		for _, ok := range deps {
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "deps": deps})
	}
}

func devToken(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Subject   string    `json:"subject" binding:"required"`
			Role      auth.Role `json:"role" binding:"required"`
			StudentID string    `json:"student_id"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		if req.Role == auth.RoleStudent && req.StudentID == "" {
			badRequest(c, "student_id is required for student tokens")
			return
		}
		pair, err := iss.Issue(auth.Identity{Subject: req.Subject, Role: req.Role, StudentID: req.StudentID})
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusCreated, pair)
	}
}

// refreshToken trades a refresh token for a new pair. Access tokens are refused.
func refreshToken(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		pair, err := iss.Refresh(req.RefreshToken)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		c.JSON(http.StatusOK, pair)
	}
}

func notifications(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Feed == nil {
			c.JSON(http.StatusOK, gin.H{"notifications": []notify.Event{}})
			return
		}
		events, err := d.Feed.Recent(c.Request.Context(), queryInt(c, "limit", 20))
		if err != nil {
			respondError(c, d.Logger, err)
			return
		}
		if events == nil {
			events = []notify.Event{}
		}
		c.JSON(http.StatusOK, gin.H{"notifications": events})
	}
}
