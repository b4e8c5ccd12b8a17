package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/verify"
)

// Evaluator is the verification pipeline surface.
type Evaluator interface {
	Evaluate(ctx context.Context, in verify.Input) (verify.Verdict, error)
}

// ProfileImages fetches a student's reference photo from the campus
// directory by the URL stored on the user session.
type ProfileImages interface {
	ProfileImage(ctx context.Context, url string) ([]byte, error)
}

// StudentService runs the student-side lifecycle operations.
type StudentService struct {
	live     LiveStore
	pipeline Evaluator
	images   ProfileImages
	now      func() time.Time
}

// NewStudentService creates the service.
func NewStudentService(live LiveStore, pipeline Evaluator, images ProfileImages) *StudentService {
	return &StudentService{
		live:     live,
		pipeline: pipeline,
		images:   images,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// FindSessions returns the live, unexpired sessions matching a lesson and
// teacher name. Expired-but-unswept sessions are filtered out here.
func (s *StudentService) FindSessions(ctx context.Context, lessonName, teacherFullName string) ([]attendance.Session, error) {
	sessions, err := s.live.SessionsByName(ctx, lessonName, teacherFullName)
	if err != nil {
		return nil, fmt.Errorf("searching sessions: %w", err)
	}
	now := s.now()
	active := sessions[:0]
	for _, sess := range sessions {
		if !sess.Expired(now) {
			active = append(active, sess)
		}
	}
	return active, nil
}

// Attend processes one attendance attempt. The attempt is rejected outright
// when the student already attended or is pending verification; otherwise
// the verdict comes from the security pipeline and is written as the
// student's record.
func (s *StudentService) Attend(ctx context.Context, student attendance.User, attendanceID uuid.UUID, callerAddr string, photo []byte) (attendance.Record, error) {
	sess, err := s.live.GetSession(ctx, attendanceID)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return attendance.Record{}, ErrNotFound
	}
	if sess.Expired(s.now()) {
		return attendance.Record{}, ErrSessionEnded
	}

	existing, err := s.live.GetRecord(ctx, attendanceID, student.SchoolNumber)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("loading record: %w", err)
	}
	if existing != nil {
		if existing.IsAttended {
			return attendance.Record{}, ErrAlreadyAttended
		}
		if existing.Pending() {
			return attendance.Record{}, ErrVerificationPending
		}
	}

	in := verify.Input{
		Session:    *sess,
		Student:    student,
		CallerAddr: callerAddr,
		Photo:      photo,
	}
	if sess.SecurityTier == 3 && len(photo) > 0 {
		in.ReferencePhoto = s.referencePhoto(ctx, student)
	}

	verdict, err := s.pipeline.Evaluate(ctx, in)
	if err != nil {
		return attendance.Record{}, fmt.Errorf("evaluating attempt: %w", err)
	}

	record := attendance.Record{
		AttendanceID:    attendanceID,
		StudentNumber:   student.SchoolNumber,
		StudentFullName: student.FullName,
		IsAttended:      verdict.Attended,
		FailReason:      verdict.FailReason,
	}
	if verdict.Attended {
		now := s.now()
		record.AttendanceTime = &now
	}
	if err := s.live.PutRecord(ctx, record); err != nil {
		return attendance.Record{}, fmt.Errorf("saving record: %w", err)
	}
	return record, nil
}

// referencePhoto resolves the student's reference image through the login
// session. Any failure yields nil, which the pipeline treats as reference
// not found: never pass on ambiguity.
func (s *StudentService) referencePhoto(ctx context.Context, student attendance.User) []byte {
	us, err := s.live.GetUserSession(ctx, student.SchoolNumber)
	if err != nil || us == nil || us.ImageURL == "" {
		return nil
	}
	photo, err := s.images.ProfileImage(ctx, us.ImageURL)
	if err != nil {
		log.Printf("fetching reference photo for %s failed: %v", student.SchoolNumber, err)
		return nil
	}
	return photo
}

// Status returns the student's own record within a live session. An ended
// session reports an error; an unknown session or absent record is nil.
func (s *StudentService) Status(ctx context.Context, student attendance.User, attendanceID uuid.UUID) (*attendance.Record, error) {
	sess, err := s.live.GetSession(ctx, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Expired(s.now()) {
		return nil, ErrSessionEnded
	}
	return s.live.GetRecord(ctx, attendanceID, student.SchoolNumber)
}
