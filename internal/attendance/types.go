package attendance

import (
	"time"

	"github.com/google/uuid"
)

// Role of a user within the campus directory.
const (
	RoleTeacher = "Teacher"
	RoleStudent = "Student"
)

// Fail reasons recorded on an attendance record. The pending marker doubles
// as the record state while an external verification verdict is outstanding.
const (
	FailWifi             = "WIFI_FAILED"
	FailPhotoMissing     = "FACE_VERIFICATION_REQUIRED_BUT_IMAGE_MISSING"
	FailReferenceMissing = "REFERENCE_IMAGE_NOT_FOUND"
	FailVerificationPend = "FACE_RECOGNITION_PENDING"
	FailSubmission       = "FACE_VERIFICATION_SUBMISSION_FAILED"
	FailVerificationTag  = "FACE_VERIFICATION_FAILED: "
)

// User is a directory identity. Persisted rows live in the Users table;
// transient copies are embedded in ephemeral user sessions.
type User struct {
	SchoolNumber string `json:"user_school_number"`
	FullName     string `json:"user_full_name"`
	Role         string `json:"role"`
}

// UserSession wraps a User with login session metadata. Ephemeral only;
// expiry is enforced by the store TTL.
type UserSession struct {
	User      User      `json:"user_data"`
	SessionID uuid.UUID `json:"session_id"`
	StartTime time.Time `json:"session_start_time"`
	EndTime   time.Time `json:"session_end_time"`
	ImageURL  string    `json:"image_url,omitempty"`
}

// Session is a single class meeting. The live representation carries the
// teacher's denormalized full name so the sweep and the name index never
// need a directory lookup; the durable representation drops it.
type Session struct {
	AttendanceID        uuid.UUID  `json:"attendance_id"`
	TeacherSchoolNumber string     `json:"teacher_school_number"`
	TeacherFullName     string     `json:"teacher_full_name,omitempty"`
	LessonName          string     `json:"lesson_name"`
	IPAddress           string     `json:"ip_address,omitempty"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	SecurityTier        int        `json:"security_option"`
	IsDeleted           bool       `json:"is_deleted"`
	DeletionReason      string     `json:"deletion_reason,omitempty"`
	DeletionTime        *time.Time `json:"deletion_time,omitempty"`
}

// Expired reports whether the session's end time has passed.
func (s Session) Expired(now time.Time) bool {
	return !s.EndTime.After(now)
}

// Record is one student's standing within one session. StudentFullName is
// denormalized so the sweep can upsert the User row without a lookup.
type Record struct {
	AttendanceID    uuid.UUID  `json:"attendance_id"`
	StudentNumber   string     `json:"student_number"`
	StudentFullName string     `json:"student_full_name,omitempty"`
	IsAttended      bool       `json:"is_attended"`
	AttendanceTime  *time.Time `json:"attendance_time,omitempty"`
	FailReason      string     `json:"fail_reason,omitempty"`
	IsDeleted       bool       `json:"is_deleted"`
	DeletionReason  string     `json:"deletion_reason,omitempty"`
	DeletionTime    *time.Time `json:"deletion_time,omitempty"`
}

// Pending reports whether the record is waiting on an external verification
// verdict.
func (r Record) Pending() bool {
	return !r.IsAttended && r.FailReason == FailVerificationPend
}
