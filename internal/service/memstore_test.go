package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

// Shared in-memory doubles for the two store surfaces. They mirror the real
// stores' nil-for-absent contract.

type memLive struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]attendance.Session
	records      map[string]attendance.Record
	userSessions map[string]attendance.UserSession
}

func newMemLive() *memLive {
	return &memLive{
		sessions:     make(map[uuid.UUID]attendance.Session),
		records:      make(map[string]attendance.Record),
		userSessions: make(map[string]attendance.UserSession),
	}
}

func recordKey(attendanceID uuid.UUID, studentNumber string) string {
	return attendanceID.String() + ":" + studentNumber
}

func (m *memLive) SaveSession(ctx context.Context, sess attendance.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.AttendanceID] = sess
	return nil
}

func (m *memLive) GetSession(ctx context.Context, id uuid.UUID) (*attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memLive) SessionsByName(ctx context.Context, lessonName, teacherFullName string) ([]attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.Session
	for _, s := range m.sessions {
		if s.LessonName == lessonName && s.TeacherFullName == teacherFullName {
			out = append(out, s)
		}
	}
	return out, nil
}

// SessionOfTeacher mirrors the real store's freshness re-check: an expired
// session still present in the store reports as absent.
func (m *memLive) SessionOfTeacher(ctx context.Context, teacherSchoolNumber string) (*attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.TeacherSchoolNumber == teacherSchoolNumber && !s.Expired(time.Now().UTC()) {
			out := s
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memLive) PutRecord(ctx context.Context, r attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recordKey(r.AttendanceID, r.StudentNumber)] = r
	return nil
}

func (m *memLive) GetRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(attendanceID, studentNumber)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memLive) ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.Record
	for _, r := range m.records {
		if r.AttendanceID == attendanceID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memLive) GetUserSession(ctx context.Context, schoolNumber string) (*attendance.UserSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	us, ok := m.userSessions[schoolNumber]
	if !ok {
		return nil, nil
	}
	return &us, nil
}

type memArchive struct {
	mu       sync.Mutex
	users    map[string]attendance.User
	sessions map[uuid.UUID]attendance.Session
	records  map[string]attendance.Record
}

func newMemArchive() *memArchive {
	return &memArchive{
		users:    make(map[string]attendance.User),
		sessions: make(map[uuid.UUID]attendance.Session),
		records:  make(map[string]attendance.Record),
	}
}

func (m *memArchive) UpsertUsers(ctx context.Context, users []attendance.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range users {
		if _, ok := m.users[u.SchoolNumber]; !ok {
			m.users[u.SchoolNumber] = u
		}
	}
	return nil
}

func (m *memArchive) GetUsers(ctx context.Context, schoolNumbers []string) ([]attendance.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.User
	for _, n := range schoolNumbers {
		if u, ok := m.users[n]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memArchive) SessionByID(ctx context.Context, id uuid.UUID) (*attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.IsDeleted {
		return nil, nil
	}
	return &s, nil
}

func (m *memArchive) SessionsByTeacher(ctx context.Context, teacherSchoolNumber string) ([]attendance.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.Session
	for _, s := range m.sessions {
		if s.TeacherSchoolNumber == teacherSchoolNumber && !s.IsDeleted {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memArchive) UpsertRecords(ctx context.Context, records []attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[recordKey(r.AttendanceID, r.StudentNumber)] = r
	}
	return nil
}

func (m *memArchive) ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []attendance.Record
	for _, r := range m.records {
		if r.AttendanceID == attendanceID && !r.IsDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memArchive) AcceptRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(attendanceID, studentNumber)]
	if !ok {
		return attendance.ErrNoRow
	}
	now := time.Now().UTC()
	r.IsAttended = true
	r.AttendanceTime = &now
	r.FailReason = ""
	m.records[recordKey(attendanceID, studentNumber)] = r
	return nil
}

func (m *memArchive) FailRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(attendanceID, studentNumber)]
	if !ok {
		return attendance.ErrNoRow
	}
	r.IsAttended = false
	r.AttendanceTime = nil
	r.FailReason = reason
	m.records[recordKey(attendanceID, studentNumber)] = r
	return nil
}

func (m *memArchive) SoftDeleteSession(ctx context.Context, attendanceID uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[attendanceID]
	if !ok || s.IsDeleted {
		return attendance.ErrNoRow
	}
	now := time.Now().UTC()
	s.IsDeleted = true
	s.DeletionReason = reason
	s.DeletionTime = &now
	m.sessions[attendanceID] = s
	return nil
}

func (m *memArchive) SoftDeleteRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordKey(attendanceID, studentNumber)]
	if !ok || r.IsDeleted {
		return attendance.ErrNoRow
	}
	now := time.Now().UTC()
	r.IsDeleted = true
	r.DeletionReason = reason
	r.DeletionTime = &now
	m.records[recordKey(attendanceID, studentNumber)] = r
	return nil
}
