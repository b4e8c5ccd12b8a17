package verify

import (
	"context"
	"log"

	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

// Job is one outbound verification: the student's submitted photo matched
// against the reference photo on file, correlated by VerificationID.
type Job struct {
	VerificationID string
	StudentNumber  string
	Photo          []byte
	ReferencePhoto []byte
}

// Submitter hands a job to the external verifier. It returns once the job
// is accepted; the verdict arrives later through the webhook.
type Submitter interface {
	Submit(ctx context.Context, job Job) error
}

// CorrelationMap is the slice of the ephemeral store the pipeline needs to
// bind and roll back verification ids.
type CorrelationMap interface {
	MapVerification(ctx context.Context, verificationID, studentNumber string, attendanceID uuid.UUID) error
	DeleteVerification(ctx context.Context, verificationID string) error
}

// Input carries the per-attempt facts the pipeline decides on.
type Input struct {
	Session        attendance.Session
	Student        attendance.User
	CallerAddr     string
	Photo          []byte
	ReferencePhoto []byte
}

// Verdict is the pipeline's decision for one attendance attempt. Pending
// means the outcome is delegated to the external verifier.
type Verdict struct {
	Attended   bool
	FailReason string
	Pending    bool
}

// Pipeline applies the security-tier decision logic. Tiers 1 and 2 decide
// locally; tier 3 gates on tier 2 and then dispatches to the verifier.
type Pipeline struct {
	submitter Submitter
	corr      CorrelationMap
}

// New creates a pipeline.
func New(submitter Submitter, corr CorrelationMap) *Pipeline {
	return &Pipeline{submitter: submitter, corr: corr}
}

// Evaluate decides an attendance attempt. It never returns an error for a
// security failure; those surface as a failed verdict. Errors are reserved
// for store trouble while binding the correlation entry.
func (p *Pipeline) Evaluate(ctx context.Context, in Input) (Verdict, error) {
	tier := in.Session.SecurityTier

	if tier >= 2 && !SameNetwork(in.Session.IPAddress, in.CallerAddr) {
		log.Printf("wifi check failed for student %s on session %s: caller %q, on file %q",
			in.Student.SchoolNumber, in.Session.AttendanceID, in.CallerAddr, in.Session.IPAddress)
		return Verdict{FailReason: attendance.FailWifi}, nil
	}

	if tier < 3 {
		return Verdict{Attended: true}, nil
	}

	if len(in.Photo) == 0 {
		return Verdict{FailReason: attendance.FailPhotoMissing}, nil
	}
	if len(in.ReferencePhoto) == 0 {
		return Verdict{FailReason: attendance.FailReferenceMissing}, nil
	}

	verificationID := uuid.NewString()
	if err := p.corr.MapVerification(ctx, verificationID, in.Student.SchoolNumber, in.Session.AttendanceID); err != nil {
		return Verdict{}, err
	}
	if err := p.submitter.Submit(ctx, Job{
		VerificationID: verificationID,
		StudentNumber:  in.Student.SchoolNumber,
		Photo:          in.Photo,
		ReferencePhoto: in.ReferencePhoto,
	}); err != nil {
		// Roll back the binding so no orphaned pending entry survives a
		// failed dispatch.
		if derr := p.corr.DeleteVerification(ctx, verificationID); derr != nil {
			log.Printf("rollback of verification %s failed: %v", verificationID, derr)
		}
		log.Printf("verification submit failed for student %s: %v", in.Student.SchoolNumber, err)
		return Verdict{FailReason: attendance.FailSubmission}, nil
	}
	return Verdict{FailReason: attendance.FailVerificationPend, Pending: true}, nil
}
