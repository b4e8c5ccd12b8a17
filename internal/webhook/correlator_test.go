package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

type memStore struct {
	mu          sync.Mutex
	corr        map[string]string // verification id -> student:attendance
	records     map[string]attendance.Record
	corrDeletes int
}

func newMemStore() *memStore {
	return &memStore{
		corr:    make(map[string]string),
		records: make(map[string]attendance.Record),
	}
}

func recKey(attendanceID uuid.UUID, studentNumber string) string {
	return attendanceID.String() + ":" + studentNumber
}

func (m *memStore) ResolveVerification(ctx context.Context, verificationID string) (string, uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.corr[verificationID]
	if !ok {
		return "", uuid.Nil, nil
	}
	sep := strings.LastIndex(value, ":")
	id, err := uuid.Parse(value[sep+1:])
	if err != nil {
		return "", uuid.Nil, nil
	}
	return value[:sep], id, nil
}

func (m *memStore) DeleteVerification(ctx context.Context, verificationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.corr, verificationID)
	m.corrDeletes++
	return nil
}

func (m *memStore) GetRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) (*attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recKey(attendanceID, studentNumber)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) PutRecord(ctx context.Context, r attendance.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[recKey(r.AttendanceID, r.StudentNumber)] = r
	return nil
}

func pendingFixture(store *memStore) (string, attendance.Record) {
	verificationID := uuid.NewString()
	record := attendance.Record{
		AttendanceID:    uuid.New(),
		StudentNumber:   "s1",
		StudentFullName: "Student One",
		FailReason:      attendance.FailVerificationPend,
	}
	store.corr[verificationID] = record.StudentNumber + ":" + record.AttendanceID.String()
	store.records[recKey(record.AttendanceID, record.StudentNumber)] = record
	return verificationID, record
}

func TestValidSignature(t *testing.T) {
	c := New(newMemStore(), []byte("secret"))
	body := []byte(`{"overall_result":{"verification_passed":true,"reason":""}}`)

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	good := hex.EncodeToString(mac.Sum(nil))

	if !c.ValidSignature(body, good) {
		t.Error("valid signature rejected")
	}
	if c.ValidSignature(body, "deadbeef") {
		t.Error("bad signature accepted")
	}
	if c.ValidSignature([]byte("tampered"), good) {
		t.Error("signature over different body accepted")
	}
}

func TestApplyPassedVerdict(t *testing.T) {
	store := newMemStore()
	verificationID, record := pendingFixture(store)
	c := New(store, []byte("secret"))
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	result, err := c.Apply(context.Background(), verificationID, true, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result != Applied {
		t.Fatalf("result = %v, want Applied", result)
	}

	got, _ := store.GetRecord(context.Background(), record.AttendanceID, record.StudentNumber)
	if !got.IsAttended || got.FailReason != "" || got.AttendanceTime == nil {
		t.Errorf("record after verdict = %+v", got)
	}
	if len(store.corr) != 0 {
		t.Error("correlation entry not deleted")
	}
}

func TestApplyFailedVerdict(t *testing.T) {
	store := newMemStore()
	verificationID, record := pendingFixture(store)
	c := New(store, []byte("secret"))

	result, err := c.Apply(context.Background(), verificationID, false, "faces do not match")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result != Applied {
		t.Fatalf("result = %v, want Applied", result)
	}

	got, _ := store.GetRecord(context.Background(), record.AttendanceID, record.StudentNumber)
	if got.IsAttended {
		t.Error("record marked attended on failed verdict")
	}
	want := attendance.FailVerificationTag + "faces do not match"
	if got.FailReason != want {
		t.Errorf("fail reason = %q, want %q", got.FailReason, want)
	}
}

func TestApplyDuplicateDeliveryIsNoOp(t *testing.T) {
	store := newMemStore()
	verificationID, record := pendingFixture(store)
	c := New(store, []byte("secret"))

	if _, err := c.Apply(context.Background(), verificationID, true, ""); err != nil {
		t.Fatalf("first Apply: %v", err)
	}
	before, _ := store.GetRecord(context.Background(), record.AttendanceID, record.StudentNumber)

	result, err := c.Apply(context.Background(), verificationID, false, "late duplicate")
	if err != nil {
		t.Fatalf("second Apply: %v", err)
	}
	if result != Unknown {
		t.Fatalf("result = %v, want Unknown", result)
	}
	after, _ := store.GetRecord(context.Background(), record.AttendanceID, record.StudentNumber)
	if after.IsAttended != before.IsAttended || after.FailReason != before.FailReason {
		t.Errorf("duplicate delivery mutated the record: %+v -> %+v", before, after)
	}
}

func TestApplyRecordGoneCleansUpCorrelation(t *testing.T) {
	store := newMemStore()
	verificationID := uuid.NewString()
	store.corr[verificationID] = "s1:" + uuid.NewString()
	c := New(store, []byte("secret"))

	result, err := c.Apply(context.Background(), verificationID, true, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if result != RecordGone {
		t.Fatalf("result = %v, want RecordGone", result)
	}
	if len(store.corr) != 0 {
		t.Error("dangling correlation entry not deleted")
	}
}
