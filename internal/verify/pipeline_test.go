package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

type fakeSubmitter struct {
	jobs []Job
	err  error
}

func (f *fakeSubmitter) Submit(ctx context.Context, job Job) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeCorrelationMap struct {
	mapped  map[string]string
	deleted []string
}

func newFakeCorrelationMap() *fakeCorrelationMap {
	return &fakeCorrelationMap{mapped: make(map[string]string)}
}

func (f *fakeCorrelationMap) MapVerification(ctx context.Context, verificationID, studentNumber string, attendanceID uuid.UUID) error {
	f.mapped[verificationID] = studentNumber + ":" + attendanceID.String()
	return nil
}

func (f *fakeCorrelationMap) DeleteVerification(ctx context.Context, verificationID string) error {
	delete(f.mapped, verificationID)
	f.deleted = append(f.deleted, verificationID)
	return nil
}

func testInput(tier int) Input {
	return Input{
		Session: attendance.Session{
			AttendanceID: uuid.New(),
			IPAddress:    "192.168.1.10",
			SecurityTier: tier,
		},
		Student:    attendance.User{SchoolNumber: "s1", FullName: "Student One", Role: attendance.RoleStudent},
		CallerAddr: "192.168.1.55",
	}
}

func TestEvaluateTierOneAlwaysPasses(t *testing.T) {
	p := New(&fakeSubmitter{}, newFakeCorrelationMap())
	in := testInput(1)
	in.CallerAddr = "203.0.113.9" // would fail the wifi check on tier 2

	verdict, err := p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Attended || verdict.FailReason != "" {
		t.Errorf("tier 1 verdict = %+v, want attended", verdict)
	}
}

func TestEvaluateTierTwoWifi(t *testing.T) {
	p := New(&fakeSubmitter{}, newFakeCorrelationMap())

	verdict, err := p.Evaluate(context.Background(), testInput(2))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Attended {
		t.Errorf("same /24 should pass, got %+v", verdict)
	}

	in := testInput(2)
	in.CallerAddr = "10.0.0.1"
	verdict, err = p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Attended || verdict.FailReason != attendance.FailWifi {
		t.Errorf("different network verdict = %+v, want %s", verdict, attendance.FailWifi)
	}
}

func TestEvaluateTierThreeGatesOnWifi(t *testing.T) {
	sub := &fakeSubmitter{}
	p := New(sub, newFakeCorrelationMap())
	in := testInput(3)
	in.CallerAddr = "10.0.0.1"
	in.Photo = []byte("photo")
	in.ReferencePhoto = []byte("ref")

	verdict, err := p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.FailReason != attendance.FailWifi {
		t.Errorf("verdict = %+v, want wifi failure before any dispatch", verdict)
	}
	if len(sub.jobs) != 0 {
		t.Errorf("verifier contacted despite failed network check")
	}
}

func TestEvaluateTierThreeMissingInputs(t *testing.T) {
	sub := &fakeSubmitter{}
	p := New(sub, newFakeCorrelationMap())

	in := testInput(3)
	verdict, err := p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.FailReason != attendance.FailPhotoMissing {
		t.Errorf("no photo verdict = %+v, want %s", verdict, attendance.FailPhotoMissing)
	}

	in.Photo = []byte("photo")
	verdict, err = p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.FailReason != attendance.FailReferenceMissing {
		t.Errorf("no reference verdict = %+v, want %s", verdict, attendance.FailReferenceMissing)
	}
	if len(sub.jobs) != 0 {
		t.Errorf("verifier contacted despite missing inputs")
	}
}

func TestEvaluateTierThreeDispatches(t *testing.T) {
	sub := &fakeSubmitter{}
	corr := newFakeCorrelationMap()
	p := New(sub, corr)
	in := testInput(3)
	in.Photo = []byte("photo")
	in.ReferencePhoto = []byte("ref")

	verdict, err := p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !verdict.Pending || verdict.FailReason != attendance.FailVerificationPend {
		t.Errorf("verdict = %+v, want pending", verdict)
	}
	if len(sub.jobs) != 1 {
		t.Fatalf("submitted %d jobs, want 1", len(sub.jobs))
	}
	job := sub.jobs[0]
	if job.VerificationID == "" || job.StudentNumber != "s1" {
		t.Errorf("job = %+v", job)
	}
	if _, ok := corr.mapped[job.VerificationID]; !ok {
		t.Errorf("correlation entry missing for dispatched job")
	}
}

func TestEvaluateTierThreeSubmitFailureRollsBack(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("verifier down")}
	corr := newFakeCorrelationMap()
	p := New(sub, corr)
	in := testInput(3)
	in.Photo = []byte("photo")
	in.ReferencePhoto = []byte("ref")

	verdict, err := p.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if verdict.Pending || verdict.FailReason != attendance.FailSubmission {
		t.Errorf("verdict = %+v, want submission failure", verdict)
	}
	if len(corr.mapped) != 0 {
		t.Errorf("correlation entry not rolled back: %v", corr.mapped)
	}
	if len(corr.deleted) != 1 {
		t.Errorf("expected one rollback delete, got %v", corr.deleted)
	}
}
