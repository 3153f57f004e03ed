package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rollcall/internal/auth"
	"rollcall/internal/httpmiddleware"
	"rollcall/internal/user"
)

// Router builds the gin engine with all middleware and routes.
func (h *Handler) Router() *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewTokenBucket(h.cfg.RateLimitPerMin, h.cfg.RateLimitPerMin).Gin())

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.Refresh)

	authed := api.Group("", auth.Require(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	staff := auth.RequireRole(string(user.RoleTeacher), string(user.RoleAdmin))

	authed.POST("/users", staff, h.CreateUser)
	authed.GET("/users", staff, h.ListUsers)
	authed.GET("/users/:id", h.GetUser)
	authed.DELETE("/users/:id", staff, h.DeactivateUser)

	authed.POST("/courses", staff, h.CreateCourse)
	authed.GET("/courses", h.ListCourses)
	authed.GET("/courses/:id", h.GetCourse)
	authed.DELETE("/courses/:id", staff, h.DeactivateCourse)

	authed.POST("/sessions", staff, h.CreateSession)
	authed.GET("/sessions", h.ListSessions)
	authed.GET("/sessions/:id", h.GetSession)
	authed.POST("/sessions/:id/start", staff, h.StartSession)
	authed.POST("/sessions/:id/complete", staff, h.CompleteSession)
	authed.POST("/sessions/:id/cancel", staff, h.CancelSession)
	authed.GET("/sessions/:id/qr", staff, h.SessionToken)
	authed.GET("/sessions/:id/qr.png", staff, h.SessionQRImage)
	authed.GET("/sessions/:id/feed", staff, h.SessionFeed)

	authed.POST("/attendance/scan", h.Scan)
	authed.GET("/attendance/check", h.AttendanceCheck)
	authed.GET("/attendance/session/:id", staff, h.AttendanceBySession)
	authed.GET("/attendance/session/:id/export.csv", staff, h.ExportSessionCSV)
	authed.GET("/attendance/student/:id", h.AttendanceByStudent)
	authed.GET("/attendance/student/:id/course/:courseId", h.AttendanceByStudentAndCourse)
	authed.GET("/attendance/student/:id/percentage", h.AttendancePercentage)
	authed.GET("/attendance/student/:id/export.csv", h.ExportStudentCSV)
	authed.PATCH("/attendance/:id/status", staff, h.CorrectAttendance)

	return r
}

// corsMiddleware answers preflight requests and reflects the origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
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
