package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/middleware"
	"github.com/noah-isme/smart-attendance-api/internal/models"
)

// Router groups the handlers and the auth middleware mounted under the API prefix.
type Router struct {
	Auth         gin.HandlerFunc
	RateLimit    gin.HandlerFunc
	AuditLogger  *zap.Logger
	Sessions     *SessionHandler
	Verification *VerificationHandler
	Attendance   *AttendanceHandler
	Faces        *FaceHandler
	Teachers     *TeacherHandler
	Metrics      *MetricsHandler
}

// Register mounts every attendance route on api.
func (rt *Router) Register(api gin.IRouter) {
	teacher := middleware.RequireRoles(models.RoleTeacher)
	staff := middleware.RequireRoles(models.RoleTeacher, models.RoleAdmin)
	anyone := middleware.RequireRoles(models.RoleStudent, models.RoleTeacher, models.RoleAdmin)

	secured := api.Group("", middleware.WithResponseMeta(), rt.Auth)
	if rt.RateLimit != nil {
		// Keyed by user, so it must follow auth.
		secured.Use(rt.RateLimit)
	}

	sessions := secured.Group("/sessions")
	sessions.POST("", teacher, middleware.Audit(rt.AuditLogger, "session.create"), rt.Sessions.Create)
	sessions.GET("/active", anyone, rt.Sessions.Active)
	sessions.POST("/:id/stop", teacher, middleware.Audit(rt.AuditLogger, "session.stop"), rt.Sessions.Stop)
	sessions.GET("/:id/stage", anyone, rt.Sessions.Stage)
	sessions.GET("/:id/attendance", staff, rt.Attendance.Session)
	sessions.POST("/:id/verify/qr", anyone, rt.Verification.QR)
	sessions.POST("/:id/verify/location", anyone, rt.Verification.Location)
	sessions.POST("/:id/verify/face", anyone, middleware.Audit(rt.AuditLogger, "verification.face"), rt.Verification.Face)

	secured.GET("/students/:id/attendance",
		middleware.RBAC(string(models.RoleTeacher), string(models.RoleAdmin), middleware.RoleSelf),
		rt.Attendance.Student)
	secured.POST("/overrides", teacher, middleware.Audit(rt.AuditLogger, "attendance.override"), rt.Attendance.Override)

	secured.POST("/faces/templates", anyone, middleware.Audit(rt.AuditLogger, "face.enrol"), rt.Faces.Register)
	secured.GET("/faces/templates/:id", anyone, rt.Faces.Status)

	secured.GET("/teachers/me/subjects", teacher, rt.Teachers.Subjects)
	secured.GET("/subjects/:subject/students", teacher, rt.Teachers.Students)
	secured.GET("/classrooms/:id", anyone, rt.Teachers.Classroom)

	if rt.Metrics != nil {
		secured.GET("/system/metrics", middleware.RequireRoles(models.RoleAdmin), rt.Metrics.Summary)
	}
}

// RegisterProbes mounts unauthenticated health, readiness and scrape endpoints.
func (rt *Router) RegisterProbes(r gin.IRouter) {
	if rt.Metrics == nil {
		return
	}
	r.GET("/health", rt.Metrics.Health)
	r.GET("/ready", rt.Metrics.Ready)
	r.GET("/metrics", rt.Metrics.Prometheus)
}
