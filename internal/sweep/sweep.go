// Package sweep migrates expired live attendance sessions into the durable
// store. It is the only path that deletes live-session ephemeral state.
package sweep

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rollcall/internal/attendance"
)

var (
	sessionsMigrated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sweep_sessions_migrated_total",
		Help: "Expired live sessions migrated into the durable store.",
	})
	sweepFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sweep_failures_total",
		Help: "Sessions whose migration failed and will be retried.",
	})
)

// LiveStore is the ephemeral-store surface the sweep reads and cleans.
type LiveStore interface {
	Sessions(ctx context.Context) ([]attendance.Session, error)
	ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]attendance.Record, error)
	DeleteSession(ctx context.Context, sess attendance.Session) error
	DeleteRecords(ctx context.Context, attendanceID uuid.UUID, studentNumbers []string) error
}

// Archive is the durable-store surface the sweep writes. All three are
// idempotent upserts, which is what makes a retried migration safe.
type Archive interface {
	UpsertUsers(ctx context.Context, users []attendance.User) error
	UpsertSession(ctx context.Context, s attendance.Session) error
	UpsertRecords(ctx context.Context, records []attendance.Record) error
}

// Sweeper runs the recurring migration pass.
type Sweeper struct {
	live     LiveStore
	archive  Archive
	interval time.Duration
	now      func() time.Time
}

// New creates a sweeper. Interval defaults to five minutes.
func New(live LiveStore, archive Archive, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{
		live:     live,
		archive:  archive,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run executes RunOnce on a fixed interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	log.Printf("sweep started, interval %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("sweep stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce scans all live sessions and migrates every expired one. A failure
// migrating one session is logged and does not abort the rest; the next
// interval retries it. Returns the number of sessions migrated.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	sessions, err := s.live.Sessions(ctx)
	if err != nil {
		log.Printf("sweep: scanning live sessions failed: %v", err)
		return 0
	}

	now := s.now()
	migrated := 0
	for _, sess := range sessions {
		if !sess.Expired(now) {
			continue
		}
		if err := s.migrate(ctx, sess); err != nil {
			sweepFailures.Inc()
			log.Printf("sweep: migrating session %s failed: %v", sess.AttendanceID, err)
			continue
		}
		sessionsMigrated.Inc()
		migrated++
	}
	return migrated
}

// migrate moves one expired session into the durable store in strict order:
// owning teacher, referenced students, the session, its records, and only
// after every durable write succeeds, the ephemeral copies. Each durable
// step is an idempotent upsert, so a crash mid-migration retries cleanly
// and the live copy is never lost.
func (s *Sweeper) migrate(ctx context.Context, sess attendance.Session) error {
	log.Printf("sweep: migrating expired session %s (%s)", sess.AttendanceID, sess.LessonName)

	teacher := attendance.User{
		SchoolNumber: sess.TeacherSchoolNumber,
		FullName:     sess.TeacherFullName,
		Role:         attendance.RoleTeacher,
	}
	if err := s.archive.UpsertUsers(ctx, []attendance.User{teacher}); err != nil {
		return err
	}

	records, err := s.live.ListRecords(ctx, sess.AttendanceID)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		students := make([]attendance.User, 0, len(records))
		for _, r := range records {
			students = append(students, attendance.User{
				SchoolNumber: r.StudentNumber,
				FullName:     r.StudentFullName,
				Role:         attendance.RoleStudent,
			})
		}
		if err := s.archive.UpsertUsers(ctx, students); err != nil {
			return err
		}
	}

	if err := s.archive.UpsertSession(ctx, sess); err != nil {
		return err
	}
	if len(records) > 0 {
		if err := s.archive.UpsertRecords(ctx, records); err != nil {
			return err
		}
	}

	if err := s.live.DeleteSession(ctx, sess); err != nil {
		return err
	}
	studentNumbers := make([]string, 0, len(records))
	for _, r := range records {
		studentNumbers = append(studentNumbers, r.StudentNumber)
	}
	if err := s.live.DeleteRecords(ctx, sess.AttendanceID, studentNumbers); err != nil {
		return err
	}
	log.Printf("sweep: session %s migrated with %d records", sess.AttendanceID, len(records))
	return nil
}
