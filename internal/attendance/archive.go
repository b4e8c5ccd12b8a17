package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Archive persists finished attendance data in Postgres. It carries no
// business logic: append/upsert plus soft deletes, nothing else.
type Archive struct {
	db *sql.DB
}

// NewArchive creates an archive over an open database handle.
func NewArchive(db *sql.DB) *Archive {
	return &Archive{db: db}
}

// UpsertUsers inserts users, doing nothing on conflict. Safe to call with
// users that already exist; the sweep relies on that.
func (a *Archive) UpsertUsers(ctx context.Context, users []User) error {
	for _, u := range users {
		if _, err := a.db.ExecContext(ctx, `
			INSERT INTO users (user_school_number, user_full_name, role)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_school_number) DO NOTHING
		`, u.SchoolNumber, u.FullName, u.Role); err != nil {
			return err
		}
	}
	return nil
}

// GetUsers returns the users matching the given school numbers.
func (a *Archive) GetUsers(ctx context.Context, schoolNumbers []string) ([]User, error) {
	if len(schoolNumbers) == 0 {
		return nil, nil
	}
	rows, err := a.db.QueryContext(ctx, `
		SELECT user_school_number, user_full_name, role
		FROM users WHERE user_school_number = ANY($1)
	`, schoolNumbers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.SchoolNumber, &u.FullName, &u.Role); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// UpsertSession inserts a finished session, doing nothing on conflict so a
// re-swept session never clobbers an earlier migration.
func (a *Archive) UpsertSession(ctx context.Context, s Session) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO attendances (attendance_id, teacher_school_number, lesson_name, ip_address, start_time, end_time, security_option)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (attendance_id) DO NOTHING
	`, s.AttendanceID, s.TeacherSchoolNumber, s.LessonName, nullString(s.IPAddress), s.StartTime, s.EndTime, s.SecurityTier)
	return err
}

// SessionByID returns a single non-deleted session, or nil when absent.
func (a *Archive) SessionByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT attendance_id, teacher_school_number, lesson_name, ip_address, start_time, end_time, security_option, is_deleted, deletion_reason, deletion_time
		FROM attendances WHERE attendance_id = $1 AND is_deleted = FALSE
	`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// SessionsByTeacher returns all non-deleted historical sessions of a teacher.
func (a *Archive) SessionsByTeacher(ctx context.Context, teacherSchoolNumber string) ([]Session, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT attendance_id, teacher_school_number, lesson_name, ip_address, start_time, end_time, security_option, is_deleted, deletion_reason, deletion_time
		FROM attendances
		WHERE teacher_school_number = $1 AND is_deleted = FALSE
		ORDER BY start_time DESC
	`, teacherSchoolNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// UpsertRecords inserts student records, updating the attendance outcome on
// conflict. Re-sweeping a partially migrated session converges.
func (a *Archive) UpsertRecords(ctx context.Context, records []Record) error {
	for _, r := range records {
		if _, err := a.db.ExecContext(ctx, `
			INSERT INTO attendance_records (attendance_id, student_number, is_attended, attendance_time, fail_reason)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (attendance_id, student_number) DO UPDATE SET
				is_attended = EXCLUDED.is_attended,
				attendance_time = EXCLUDED.attendance_time,
				fail_reason = EXCLUDED.fail_reason,
				is_deleted = FALSE,
				deletion_reason = NULL,
				deletion_time = NULL
		`, r.AttendanceID, r.StudentNumber, r.IsAttended, r.AttendanceTime, nullString(r.FailReason)); err != nil {
			return err
		}
	}
	return nil
}

// ListRecords returns all non-deleted records of a session.
func (a *Archive) ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]Record, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT attendance_id, student_number, is_attended, attendance_time, fail_reason, is_deleted, deletion_reason, deletion_time
		FROM attendance_records
		WHERE attendance_id = $1 AND is_deleted = FALSE
	`, attendanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var r Record
		var failReason, delReason sql.NullString
		if err := rows.Scan(&r.AttendanceID, &r.StudentNumber, &r.IsAttended, &r.AttendanceTime, &failReason, &r.IsDeleted, &delReason, &r.DeletionTime); err != nil {
			return nil, err
		}
		r.FailReason = failReason.String
		r.DeletionReason = delReason.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// AcceptRecord marks a historical record attended, clearing any failure and
// soft-delete state.
func (a *Archive) AcceptRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET is_attended = TRUE, attendance_time = $3, fail_reason = NULL,
		    is_deleted = FALSE, deletion_reason = NULL, deletion_time = NULL
		WHERE attendance_id = $1 AND student_number = $2
	`, attendanceID, studentNumber, time.Now().UTC())
	return checkAffected(res, err)
}

// FailRecord marks a historical record failed with the given reason.
func (a *Archive) FailRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET is_attended = FALSE, attendance_time = NULL, fail_reason = $3,
		    is_deleted = FALSE, deletion_reason = NULL, deletion_time = NULL
		WHERE attendance_id = $1 AND student_number = $2
	`, attendanceID, studentNumber, reason)
	return checkAffected(res, err)
}

// SoftDeleteSession flags a session deleted. Readers filter on the flag;
// the row stays.
func (a *Archive) SoftDeleteSession(ctx context.Context, attendanceID uuid.UUID, reason string) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE attendances
		SET is_deleted = TRUE, deletion_reason = $2, deletion_time = $3
		WHERE attendance_id = $1
	`, attendanceID, reason, time.Now().UTC())
	return checkAffected(res, err)
}

// SoftDeleteRecord flags a single student record deleted.
func (a *Archive) SoftDeleteRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber, reason string) error {
	res, err := a.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET is_deleted = TRUE, deletion_reason = $3, deletion_time = $4
		WHERE attendance_id = $1 AND student_number = $2
	`, attendanceID, studentNumber, reason, time.Now().UTC())
	return checkAffected(res, err)
}

// ErrNoRow indicates an update targeted a row that does not exist.
var ErrNoRow = errors.New("no matching row")

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRow
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var s Session
	var ip, delReason sql.NullString
	if err := row.Scan(&s.AttendanceID, &s.TeacherSchoolNumber, &s.LessonName, &ip, &s.StartTime, &s.EndTime, &s.SecurityTier, &s.IsDeleted, &delReason, &s.DeletionTime); err != nil {
		return nil, err
	}
	s.IPAddress = ip.String
	s.DeletionReason = delReason.String
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
