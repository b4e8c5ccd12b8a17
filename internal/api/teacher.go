package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/service"
)

type startAttendanceRequest struct {
	LessonName   string    `json:"lesson_name" binding:"required"`
	StartTime    time.Time `json:"start_time" binding:"required"`
	EndTime      time.Time `json:"end_time" binding:"required"`
	SecurityTier int       `json:"security_option" binding:"required"`
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required,min=5"`
}

type addHistoricalRecordRequest struct {
	StudentSchoolNumber string `json:"student_school_number" binding:"required"`
	StudentFullName     string `json:"student_full_name" binding:"required,min=3"`
	IsAttended          bool   `json:"is_attended"`
	Reason              string `json:"reason"`
}

func attendanceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("attendance_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attendance id"})
		return uuid.Nil, false
	}
	return id, true
}

// resolveOwned loads the session and enforces ownership before any
// per-session teacher operation.
func (d Deps) resolveOwned(c *gin.Context) (service.ResolvedSession, bool) {
	id, ok := attendanceID(c)
	if !ok {
		return service.ResolvedSession{}, false
	}
	user, _ := auth.CurrentUser(c)
	resolved, err := d.Teacher.ResolveOwnedSession(c.Request.Context(), id, user)
	if err != nil {
		fail(c, err)
		return service.ResolvedSession{}, false
	}
	return resolved, true
}

func (d Deps) startAttendance(c *gin.Context) {
	var req startAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, _ := auth.CurrentUser(c)
	sess, err := d.Teacher.StartSession(c.Request.Context(), user, req.LessonName, c.ClientIP(), req.StartTime, req.EndTime, req.SecurityTier)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (d Deps) finishAttendance(c *gin.Context) {
	id, ok := attendanceID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)
	if err := d.Teacher.FinishSession(c.Request.Context(), user, id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (d Deps) liveAttendance(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	sess, err := d.Teacher.LiveSession(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (d Deps) historicalAttendances(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	sessions, err := d.Teacher.HistoricalSessions(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []attendance.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (d Deps) deleteAttendance(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	if err := d.Teacher.DeleteSession(c.Request.Context(), resolved.Session.AttendanceID, req.Reason); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (d Deps) attendanceRecords(c *gin.Context) {
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	var records []service.EnrichedRecord
	var err error
	if resolved.Source == service.SourceLive {
		records, err = d.Teacher.LiveRecords(c.Request.Context(), resolved.Session.AttendanceID)
	} else {
		records, err = d.Teacher.HistoricalRecords(c.Request.Context(), resolved.Session.AttendanceID)
	}
	if err != nil {
		fail(c, err)
		return
	}
	if records == nil {
		records = []service.EnrichedRecord{}
	}
	c.JSON(http.StatusOK, records)
}

func (d Deps) acceptLiveStudent(c *gin.Context) {
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	record, err := d.Teacher.AcceptLiveStudent(c.Request.Context(), resolved.Session.AttendanceID, c.Param("student_school_number"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (d Deps) failLiveStudent(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	record, err := d.Teacher.FailLiveStudent(c.Request.Context(), resolved.Session.AttendanceID, c.Param("student_school_number"), req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (d Deps) addHistoricalRecord(c *gin.Context) {
	var req addHistoricalRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	student := attendance.User{
		SchoolNumber: req.StudentSchoolNumber,
		FullName:     req.StudentFullName,
		Role:         attendance.RoleStudent,
	}
	if err := d.Teacher.AddHistoricalRecord(c.Request.Context(), resolved.Session.AttendanceID, student, req.IsAttended, req.Reason); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (d Deps) acceptHistoricalStudent(c *gin.Context) {
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	if err := d.Teacher.AcceptHistoricalStudent(c.Request.Context(), resolved.Session.AttendanceID, c.Param("student_school_number")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (d Deps) failHistoricalStudent(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	if err := d.Teacher.FailHistoricalStudent(c.Request.Context(), resolved.Session.AttendanceID, c.Param("student_school_number"), req.Reason); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (d Deps) deleteAttendanceRecord(c *gin.Context) {
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	resolved, ok := d.resolveOwned(c)
	if !ok {
		return
	}
	if err := d.Teacher.DeleteRecord(c.Request.Context(), resolved.Session.AttendanceID, c.Param("student_school_number"), req.Reason); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
