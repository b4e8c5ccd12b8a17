// Package livestore is the client for the ephemeral side of the attendance
// lifecycle: user sessions, live attendance sessions with their two lookup
// indexes, in-progress student records, and short-lived verification
// correlation entries. Values are JSON blobs under structured keys; indexed
// writes and deletes go through a transactional pipeline so an index entry
// is never observed without its primary blob.
package livestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rollcall/internal/attendance"
)

// VerificationTTL bounds how long an unconsumed correlation entry survives.
const VerificationTTL = 5 * time.Minute

// Store wraps the redis client behind the attendance key scheme.
type Store struct {
	rdb redis.Cmdable
}

// New creates a store over a connected redis client.
func New(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

func userSessionKey(schoolNumber string) string {
	return "users:" + schoolNumber
}

func sessionKey(id uuid.UUID) string {
	return "attendance_session:" + id.String()
}

func nameIndexKey(lessonName, teacherFullName string) string {
	return "attendance_index:name:" + lessonName + ":" + teacherFullName
}

func teacherIndexKey(teacherSchoolNumber string) string {
	return "attendance_index:teacher:" + teacherSchoolNumber
}

func recordKey(attendanceID uuid.UUID, studentNumber string) string {
	return "attendance_records:" + attendanceID.String() + ":" + studentNumber
}

func verificationKey(verificationID string) string {
	return "verification:" + verificationID
}

// PutUserSession stores a login session under the user's school number with
// the given TTL. Re-login overwrites: at most one live session per user.
func (s *Store) PutUserSession(ctx context.Context, us attendance.UserSession, ttl time.Duration) error {
	blob, err := json.Marshal(us)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, userSessionKey(us.User.SchoolNumber), blob, ttl).Err()
}

// GetUserSession returns the login session for a user, or nil when absent
// or expired.
func (s *Store) GetUserSession(ctx context.Context, schoolNumber string) (*attendance.UserSession, error) {
	blob, err := s.rdb.Get(ctx, userSessionKey(schoolNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var us attendance.UserSession
	if err := json.Unmarshal(blob, &us); err != nil {
		return nil, err
	}
	return &us, nil
}

// DeleteUserSession removes a login session (logout).
func (s *Store) DeleteUserSession(ctx context.Context, schoolNumber string) error {
	return s.rdb.Del(ctx, userSessionKey(schoolNumber)).Err()
}

// SaveSession writes the live session blob and both secondary index entries
// in one batch. Also used to update a session in place (finish), since SADD
// on an already-indexed id is a no-op.
func (s *Store) SaveSession(ctx context.Context, sess attendance.Session) error {
	blob, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	id := sess.AttendanceID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.AttendanceID), blob, 0)
	pipe.SAdd(ctx, nameIndexKey(sess.LessonName, sess.TeacherFullName), id)
	pipe.SAdd(ctx, teacherIndexKey(sess.TeacherSchoolNumber), id)
	_, err = pipe.Exec(ctx)
	return err
}

// GetSession returns a live session by id, or nil when absent.
func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*attendance.Session, error) {
	return s.getSessionByKey(ctx, sessionKey(id))
}

func (s *Store) getSessionByKey(ctx context.Context, key string) (*attendance.Session, error) {
	blob, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess attendance.Session
	if err := json.Unmarshal(blob, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// SessionsByName fans out from the name index to the session blobs. Index
// entries that no longer resolve are silently skipped; the index heals when
// the sweep deletes the session.
func (s *Store) SessionsByName(ctx context.Context, lessonName, teacherFullName string) ([]attendance.Session, error) {
	ids, err := s.rdb.SMembers(ctx, nameIndexKey(lessonName, teacherFullName)).Result()
	if err != nil {
		return nil, err
	}
	var sessions []attendance.Session
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil {
			sessions = append(sessions, *sess)
		}
	}
	return sessions, nil
}

// SessionOfTeacher resolves the teacher index to the teacher's single live
// session. A resolved session whose end time has already passed is reported
// as absent: the sweep owns its deletion, readers only re-check freshness.
func (s *Store) SessionOfTeacher(ctx context.Context, teacherSchoolNumber string) (*attendance.Session, error) {
	ids, err := s.rdb.SMembers(ctx, teacherIndexKey(teacherSchoolNumber)).Result()
	if err != nil {
		return nil, err
	}
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		sess, err := s.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil && !sess.Expired(time.Now().UTC()) {
			return sess, nil
		}
	}
	return nil, nil
}

// DeleteSession removes the session blob and this session's id from both
// index sets in one batch.
func (s *Store) DeleteSession(ctx context.Context, sess attendance.Session) error {
	id := sess.AttendanceID.String()
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, sessionKey(sess.AttendanceID))
	pipe.SRem(ctx, nameIndexKey(sess.LessonName, sess.TeacherFullName), id)
	pipe.SRem(ctx, teacherIndexKey(sess.TeacherSchoolNumber), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Sessions returns every live session via a full key scan. Only the sweep
// walks this path.
func (s *Store) Sessions(ctx context.Context) ([]attendance.Session, error) {
	var sessions []attendance.Session
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, "attendance_session:*", 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			sess, err := s.getSessionByKey(ctx, key)
			if err != nil {
				return nil, err
			}
			if sess != nil {
				sessions = append(sessions, *sess)
			}
		}
		cursor = next
		if cursor == 0 {
			return sessions, nil
		}
	}
}

// PutRecord stores a student's record for a live session. Updates reuse the
// same write.
func (s *Store) PutRecord(ctx context.Context, r attendance.Record) error {
	blob, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, recordKey(r.AttendanceID, r.StudentNumber), blob, 0).Err()
}

// GetRecord returns one student's record, or nil when absent.
func (s *Store) GetRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) (*attendance.Record, error) {
	blob, err := s.rdb.Get(ctx, recordKey(attendanceID, studentNumber)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var r attendance.Record
	if err := json.Unmarshal(blob, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRecords returns every live record of a session via a prefix scan.
func (s *Store) ListRecords(ctx context.Context, attendanceID uuid.UUID) ([]attendance.Record, error) {
	var records []attendance.Record
	var cursor uint64
	match := fmt.Sprintf("attendance_records:%s:*", attendanceID)
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			blob, err := s.rdb.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, err
			}
			var r attendance.Record
			if err := json.Unmarshal(blob, &r); err != nil {
				return nil, err
			}
			records = append(records, r)
		}
		cursor = next
		if cursor == 0 {
			return records, nil
		}
	}
}

// DeleteRecords removes the live record keys of the given students in one
// batch. The sweep calls this after the durable writes succeed.
func (s *Store) DeleteRecords(ctx context.Context, attendanceID uuid.UUID, studentNumbers []string) error {
	if len(studentNumbers) == 0 {
		return nil
	}
	keys := make([]string, 0, len(studentNumbers))
	for _, sn := range studentNumbers {
		keys = append(keys, recordKey(attendanceID, sn))
	}
	return s.rdb.Del(ctx, keys...).Err()
}

// MapVerification binds an outbound verification id to the student and
// session it belongs to. The entry expires unconsumed after VerificationTTL.
func (s *Store) MapVerification(ctx context.Context, verificationID, studentNumber string, attendanceID uuid.UUID) error {
	value := studentNumber + ":" + attendanceID.String()
	return s.rdb.Set(ctx, verificationKey(verificationID), value, VerificationTTL).Err()
}

// ResolveVerification returns the student and session bound to a
// verification id. Absent or malformed entries resolve to empty values.
func (s *Store) ResolveVerification(ctx context.Context, verificationID string) (string, uuid.UUID, error) {
	value, err := s.rdb.Get(ctx, verificationKey(verificationID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", uuid.Nil, nil
	}
	if err != nil {
		return "", uuid.Nil, err
	}
	sep := strings.LastIndex(value, ":")
	if sep < 0 {
		return "", uuid.Nil, nil
	}
	id, err := uuid.Parse(value[sep+1:])
	if err != nil {
		return "", uuid.Nil, nil
	}
	return value[:sep], id, nil
}

// DeleteVerification removes a correlation entry once consumed.
func (s *Store) DeleteVerification(ctx context.Context, verificationID string) error {
	return s.rdb.Del(ctx, verificationKey(verificationID)).Err()
}
