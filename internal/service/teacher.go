package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

// LiveStore is the ephemeral-store surface the services mutate.
type LiveStore interface {
	SaveSession(ctx context.Context, sess attendance.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (*attendance.Session, error)
	SessionsByName(ctx context.Context, lessonName, teacherFullName string) ([]attendance.Session, error)
	SessionOfTeacher(ctx context.Context, teacherSchoolNumber string) (*attendance.Session, error)
	PutRecord(ctx context.Context, r attendance.Record) error
	GetRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) (*attendance.Record, error)
	ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]attendance.Record, error)
	GetUserSession(ctx context.Context, schoolNumber string) (*attendance.UserSession, error)
}

// Archive is the durable-store surface the services read and correct.
type Archive interface {
	UpsertUsers(ctx context.Context, users []attendance.User) error
	GetUsers(ctx context.Context, schoolNumbers []string) ([]attendance.User, error)
	SessionByID(ctx context.Context, id uuid.UUID) (*attendance.Session, error)
	SessionsByTeacher(ctx context.Context, teacherSchoolNumber string) ([]attendance.Session, error)
	UpsertRecords(ctx context.Context, records []attendance.Record) error
	ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]attendance.Record, error)
	AcceptRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) error
	FailRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error
	SoftDeleteSession(ctx context.Context, attendanceID uuid.UUID, reason string) error
	SoftDeleteRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error
}

// Source tags which store a resolved session came from.
type Source int

const (
	SourceLive Source = iota
	SourceDurable
)

// ResolvedSession is a session together with the store it resolved from. A
// given id exists in exactly one of the two stores at any instant.
type ResolvedSession struct {
	Session attendance.Session
	Source  Source
}

// EnrichedRecord pairs a record with the student it belongs to, so API
// responses never expose a bare school number.
type EnrichedRecord struct {
	attendance.Record
	Student attendance.User `json:"student"`
}

// TeacherService runs the teacher-side lifecycle operations.
type TeacherService struct {
	live    LiveStore
	archive Archive
	now     func() time.Time
}

// NewTeacherService creates the service.
func NewTeacherService(live LiveStore, archive Archive) *TeacherService {
	return &TeacherService{live: live, archive: archive, now: func() time.Time { return time.Now().UTC() }}
}

// StartSession opens a live attendance session. A teacher may hold at most
// one; the check against the teacher index is best-effort check-then-act,
// a concurrent second create wins last-write.
func (s *TeacherService) StartSession(ctx context.Context, teacher attendance.User, lessonName, ipAddress string, startTime, endTime time.Time, tier int) (attendance.Session, error) {
	if lessonName == "" {
		return attendance.Session{}, fmt.Errorf("%w: lesson name required", ErrInvalidInput)
	}
	if tier < 1 || tier > 3 {
		return attendance.Session{}, fmt.Errorf("%w: security tier must be 1-3", ErrInvalidInput)
	}
	if !endTime.After(startTime) {
		return attendance.Session{}, fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}

	existing, err := s.live.SessionOfTeacher(ctx, teacher.SchoolNumber)
	if err != nil {
		return attendance.Session{}, fmt.Errorf("checking active session: %w", err)
	}
	if existing != nil {
		return attendance.Session{}, ErrActiveSessionExists
	}

	sess := attendance.Session{
		AttendanceID:        uuid.New(),
		TeacherSchoolNumber: teacher.SchoolNumber,
		TeacherFullName:     teacher.FullName,
		LessonName:          lessonName,
		IPAddress:           ipAddress,
		StartTime:           startTime,
		EndTime:             endTime,
		SecurityTier:        tier,
	}
	if err := s.live.SaveSession(ctx, sess); err != nil {
		return attendance.Session{}, fmt.Errorf("saving session: %w", err)
	}
	log.Printf("teacher %s started session %s (%s, tier %d)", teacher.SchoolNumber, sess.AttendanceID, lessonName, tier)
	return sess, nil
}

// FinishSession sets the session's end time to now, making it eligible for
// the next sweep pass. It never deletes the live copy: the sweep is the
// single writer of the live-to-durable transition.
func (s *TeacherService) FinishSession(ctx context.Context, teacher attendance.User, attendanceID uuid.UUID) error {
	sess, err := s.live.GetSession(ctx, attendanceID)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	if sess == nil {
		return ErrNotFound
	}
	if sess.TeacherSchoolNumber != teacher.SchoolNumber {
		return ErrNotAuthorized
	}
	sess.EndTime = s.now()
	if err := s.live.SaveSession(ctx, *sess); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}
	log.Printf("session %s finished, sweep will persist it", attendanceID)
	return nil
}

// LiveSession returns the teacher's single active session, or nil.
func (s *TeacherService) LiveSession(ctx context.Context, teacher attendance.User) (*attendance.Session, error) {
	return s.live.SessionOfTeacher(ctx, teacher.SchoolNumber)
}

// ResolveOwnedSession finds a session by id, trying the live store first
// and the durable store second, and verifies the requesting teacher owns
// it. Ownership failures are reported as not-found so the existence of
// other teachers' sessions never leaks.
func (s *TeacherService) ResolveOwnedSession(ctx context.Context, attendanceID uuid.UUID, teacher attendance.User) (ResolvedSession, error) {
	live, err := s.live.GetSession(ctx, attendanceID)
	if err != nil {
		return ResolvedSession{}, fmt.Errorf("loading live session: %w", err)
	}
	if live != nil {
		if live.TeacherSchoolNumber != teacher.SchoolNumber {
			return ResolvedSession{}, ErrNotAuthorized
		}
		return ResolvedSession{Session: *live, Source: SourceLive}, nil
	}

	durable, err := s.archive.SessionByID(ctx, attendanceID)
	if err != nil {
		return ResolvedSession{}, fmt.Errorf("loading historical session: %w", err)
	}
	if durable == nil || durable.TeacherSchoolNumber != teacher.SchoolNumber {
		return ResolvedSession{}, ErrNotAuthorized
	}
	return ResolvedSession{Session: *durable, Source: SourceDurable}, nil
}

// LiveRecords lists the in-progress records of a live session.
func (s *TeacherService) LiveRecords(ctx context.Context, attendanceID uuid.UUID) ([]EnrichedRecord, error) {
	records, err := s.live.ListRecords(ctx, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("listing live records: %w", err)
	}
	enriched := make([]EnrichedRecord, 0, len(records))
	for _, r := range records {
		enriched = append(enriched, EnrichedRecord{
			Record: r,
			Student: attendance.User{
				SchoolNumber: r.StudentNumber,
				FullName:     r.StudentFullName,
				Role:         attendance.RoleStudent,
			},
		})
	}
	return enriched, nil
}

// AcceptLiveStudent is a manual teacher override marking a student attended
// in a live session, clearing any failure or pending state.
func (s *TeacherService) AcceptLiveStudent(ctx context.Context, attendanceID uuid.UUID, studentNumber string) (*EnrichedRecord, error) {
	record, err := s.live.GetRecord(ctx, attendanceID, studentNumber)
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	now := s.now()
	record.IsAttended = true
	record.AttendanceTime = &now
	record.FailReason = ""
	if err := s.live.PutRecord(ctx, *record); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return s.enrichOne(*record), nil
}

// FailLiveStudent is a manual teacher override marking a student failed.
func (s *TeacherService) FailLiveStudent(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) (*EnrichedRecord, error) {
	record, err := s.live.GetRecord(ctx, attendanceID, studentNumber)
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}
	record.IsAttended = false
	record.AttendanceTime = nil
	record.FailReason = reason
	if err := s.live.PutRecord(ctx, *record); err != nil {
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return s.enrichOne(*record), nil
}

func (s *TeacherService) enrichOne(r attendance.Record) *EnrichedRecord {
	return &EnrichedRecord{
		Record: r,
		Student: attendance.User{
			SchoolNumber: r.StudentNumber,
			FullName:     r.StudentFullName,
			Role:         attendance.RoleStudent,
		},
	}
}

// HistoricalSessions lists the teacher's swept sessions.
func (s *TeacherService) HistoricalSessions(ctx context.Context, teacher attendance.User) ([]attendance.Session, error) {
	sessions, err := s.archive.SessionsByTeacher(ctx, teacher.SchoolNumber)
	if err != nil {
		return nil, fmt.Errorf("listing historical sessions: %w", err)
	}
	// The durable representation drops the denormalized name; put it back
	// for the response since the caller is the owner.
	for i := range sessions {
		sessions[i].TeacherFullName = teacher.FullName
	}
	return sessions, nil
}

// HistoricalRecords lists a swept session's records, enriched with the
// student users resolved from the durable store.
func (s *TeacherService) HistoricalRecords(ctx context.Context, attendanceID uuid.UUID) ([]EnrichedRecord, error) {
	records, err := s.archive.ListRecords(ctx, attendanceID)
	if err != nil {
		return nil, fmt.Errorf("listing historical records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	numbers := make([]string, 0, len(records))
	for _, r := range records {
		numbers = append(numbers, r.StudentNumber)
	}
	users, err := s.archive.GetUsers(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("resolving students: %w", err)
	}
	byNumber := make(map[string]attendance.User, len(users))
	for _, u := range users {
		byNumber[u.SchoolNumber] = u
	}
	enriched := make([]EnrichedRecord, 0, len(records))
	for _, r := range records {
		student, ok := byNumber[r.StudentNumber]
		if !ok {
			log.Printf("no user row for student %s in historical session %s", r.StudentNumber, attendanceID)
			continue
		}
		enriched = append(enriched, EnrichedRecord{Record: r, Student: student})
	}
	return enriched, nil
}

// AddHistoricalRecord inserts a student into a swept session, upserting the
// student's user row first.
func (s *TeacherService) AddHistoricalRecord(ctx context.Context, attendanceID uuid.UUID, student attendance.User, isAttended bool, reason string) error {
	sess, err := s.archive.SessionByID(ctx, attendanceID)
	if err != nil {
		return fmt.Errorf("loading historical session: %w", err)
	}
	if sess == nil {
		return ErrNotFound
	}
	if err := s.archive.UpsertUsers(ctx, []attendance.User{student}); err != nil {
		return fmt.Errorf("upserting student: %w", err)
	}
	record := attendance.Record{
		AttendanceID:  attendanceID,
		StudentNumber: student.SchoolNumber,
		IsAttended:    isAttended,
		FailReason:    reason,
	}
	if isAttended {
		now := s.now()
		record.AttendanceTime = &now
		record.FailReason = ""
	}
	if err := s.archive.UpsertRecords(ctx, []attendance.Record{record}); err != nil {
		return fmt.Errorf("upserting record: %w", err)
	}
	return nil
}

// AcceptHistoricalStudent marks a historical record attended.
func (s *TeacherService) AcceptHistoricalStudent(ctx context.Context, attendanceID uuid.UUID, studentNumber string) error {
	if err := s.archive.AcceptRecord(ctx, attendanceID, studentNumber); err != nil {
		if errors.Is(err, attendance.ErrNoRow) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("updating historical record: %w", err)
	}
	return nil
}

// FailHistoricalStudent marks a historical record failed with a reason.
func (s *TeacherService) FailHistoricalStudent(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error {
	if err := s.archive.FailRecord(ctx, attendanceID, studentNumber, reason); err != nil {
		if errors.Is(err, attendance.ErrNoRow) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("updating historical record: %w", err)
	}
	return nil
}

// DeleteSession soft-deletes a historical session with a reason.
func (s *TeacherService) DeleteSession(ctx context.Context, attendanceID uuid.UUID, reason string) error {
	if err := s.archive.SoftDeleteSession(ctx, attendanceID, reason); err != nil {
		if errors.Is(err, attendance.ErrNoRow) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteRecord soft-deletes a single historical student record.
func (s *TeacherService) DeleteRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error {
	if err := s.archive.SoftDeleteRecord(ctx, attendanceID, studentNumber, reason); err != nil {
		if errors.Is(err, attendance.ErrNoRow) {
			return ErrRecordNotFound
		}
		return fmt.Errorf("deleting record: %w", err)
	}
	return nil
}
