package api

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/directory"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

type loginResponse struct {
	Token tokenResponse   `json:"token"`
	User  attendance.User `json:"user"`
}

func (d Deps) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	profile, ok := demoProfile(req.Username, req.Password)
	if !ok {
		var err error
		profile, err = d.Directory.Login(c.Request.Context(), req.Username, req.Password)
		if errors.Is(err, directory.ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		if err != nil {
			log.Printf("directory login failed for %s: %v", req.Username, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory service unavailable"})
			return
		}
	}
	if profile.Role != attendance.RoleTeacher && profile.Role != attendance.RoleStudent {
		c.JSON(http.StatusForbidden, gin.H{"error": "unknown role from directory"})
		return
	}

	ttl := d.Cfg.StudentSessionTTL
	if profile.Role == attendance.RoleTeacher {
		ttl = d.Cfg.TeacherSessionTTL
	}
	user := attendance.User{
		SchoolNumber: profile.SchoolNumber,
		FullName:     profile.FullName,
		Role:         profile.Role,
	}
	now := time.Now().UTC()
	session := attendance.UserSession{
		User:      user,
		SessionID: uuid.New(),
		StartTime: now,
		EndTime:   now.Add(ttl),
		ImageURL:  profile.ImageURL,
	}
	if err := d.Sessions.PutUserSession(c.Request.Context(), session, ttl); err != nil {
		log.Printf("saving user session for %s failed: %v", user.SchoolNumber, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, expiresAt, err := auth.Issue(user.SchoolNumber, d.Cfg.JWTIssuer, d.Cfg.JWTSigningKey, ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token: tokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: expiresAt.Unix()},
		User:  user,
	})
}

func (d Deps) logout(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	if err := d.Sessions.DeleteUserSession(c.Request.Context(), user.SchoolNumber); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// demoProfile resolves the built-in demo accounts (demo_teacher_1..10 and
// demo_student_1..10, password "password") without touching the directory.
func demoProfile(username, password string) (directory.Profile, bool) {
	if password != "password" {
		return directory.Profile{}, false
	}
	var role, label string
	switch {
	case strings.HasPrefix(username, "demo_teacher_"):
		role, label = attendance.RoleTeacher, "Demo Teacher"
	case strings.HasPrefix(username, "demo_student_"):
		role, label = attendance.RoleStudent, "Demo Student"
	default:
		return directory.Profile{}, false
	}
	n, err := strconv.Atoi(username[strings.LastIndex(username, "_")+1:])
	if err != nil || n < 1 || n > 10 {
		return directory.Profile{}, false
	}
	profile := directory.Profile{
		SchoolNumber: username,
		FullName:     fmt.Sprintf("%s %d", label, n),
		Role:         role,
	}
	if role == attendance.RoleStudent {
		profile.ImageURL = fmt.Sprintf("https://placehold.co/150x150/EFEFEF/333?text=DS%d", n)
	}
	return profile, true
}
