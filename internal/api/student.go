package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/auth"
)

func (d Deps) findSessions(c *gin.Context) {
	lessonName := c.Query("lesson_name")
	teacherName := c.Query("teacher_name")
	if lessonName == "" || teacherName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lesson_name and teacher_name are required"})
		return
	}
	sessions, err := d.Student.FindSessions(c.Request.Context(), lessonName, teacherName)
	if err != nil {
		fail(c, err)
		return
	}
	// An empty result is not an error; there is simply no matching session.
	c.JSON(http.StatusOK, sessions)
}

func (d Deps) attend(c *gin.Context) {
	id, ok := attendanceID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)

	// The photo is optional: tiers 1 and 2 never need one, and tier 3
	// rejects its absence inside the pipeline rather than here.
	var photo []byte
	if file, _, err := c.Request.FormFile("picture"); err == nil {
		defer file.Close()
		photo, err = io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "reading picture failed"})
			return
		}
	}

	record, err := d.Student.Attend(c.Request.Context(), user, id, c.ClientIP(), photo)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (d Deps) myStatus(c *gin.Context) {
	id, ok := attendanceID(c)
	if !ok {
		return
	}
	user, _ := auth.CurrentUser(c)
	record, err := d.Student.Status(c.Request.Context(), user, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}
