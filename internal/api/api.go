// Package api exposes the HTTP surface: auth, teacher and student
// endpoints, and the verifier webhook. Handlers stay thin; decisions live
// in the service layer and errors are mapped to status codes here.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/config"
	"rollcall/internal/directory"
	"rollcall/internal/service"
	"rollcall/internal/webhook"
)

// Sessions is the user-session slice of the ephemeral store used by login
// and logout.
type Sessions interface {
	auth.SessionReader
	PutUserSession(ctx context.Context, us attendance.UserSession, ttl time.Duration) error
	DeleteUserSession(ctx context.Context, schoolNumber string) error
}

// Directory authenticates credentials against the campus directory.
type Directory interface {
	Login(ctx context.Context, schoolNumber, password string) (directory.Profile, error)
}

// Deps carries the constructed collaborators the handlers need.
type Deps struct {
	Cfg        config.App
	Sessions   Sessions
	Directory  Directory
	Teacher    *service.TeacherService
	Student    *service.StudentService
	Correlator *webhook.Correlator
}

// Register mounts all routes under /api/v1.
func Register(r *gin.Engine, d Deps) {
	v1 := r.Group("/api/v1")

	v1.POST("/auth/login", d.login)
	v1.POST("/webhooks/verification-result/:verification_id", d.verificationResult)

	authed := v1.Group("", auth.RequireSession(d.Cfg.JWTSigningKey, d.Cfg.JWTIssuer, d.Sessions))
	authed.POST("/auth/logout", d.logout)

	teacher := authed.Group("/teacher", auth.RequireRole(attendance.RoleTeacher))
	teacher.POST("/attendances", d.startAttendance)
	teacher.POST("/attendances/:attendance_id/finish", d.finishAttendance)
	teacher.GET("/attendances/live", d.liveAttendance)
	teacher.GET("/attendances/historical", d.historicalAttendances)
	teacher.DELETE("/attendances/:attendance_id", d.deleteAttendance)
	teacher.GET("/attendances/:attendance_id/records", d.attendanceRecords)
	teacher.POST("/attendances/:attendance_id/live/records/:student_school_number/accept", d.acceptLiveStudent)
	teacher.POST("/attendances/:attendance_id/live/records/:student_school_number/fail", d.failLiveStudent)
	teacher.POST("/attendances/:attendance_id/historical/records", d.addHistoricalRecord)
	teacher.POST("/attendances/:attendance_id/historical/records/:student_school_number/accept", d.acceptHistoricalStudent)
	teacher.POST("/attendances/:attendance_id/historical/records/:student_school_number/fail", d.failHistoricalStudent)
	teacher.DELETE("/attendances/:attendance_id/records/:student_school_number", d.deleteAttendanceRecord)

	student := authed.Group("/student", auth.RequireRole(attendance.RoleStudent))
	student.GET("/sessions/find", d.findSessions)
	student.POST("/attendances/:attendance_id/attend", d.attend)
	student.GET("/attendances/:attendance_id/me", d.myStatus)
}

// fail writes the error with the status its sentinel maps to.
func fail(c *gin.Context, err error) {
	c.JSON(statusFromErr(err), gin.H{"error": err.Error()})
}

func statusFromErr(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound),
		errors.Is(err, service.ErrRecordNotFound),
		errors.Is(err, service.ErrNotAuthorized):
		// Ownership failures read as not-found so other teachers' session
		// ids never leak.
		return http.StatusNotFound
	case errors.Is(err, service.ErrActiveSessionExists),
		errors.Is(err, service.ErrAlreadyAttended),
		errors.Is(err, service.ErrVerificationPending):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionEnded):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
