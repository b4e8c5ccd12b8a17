// Package webhook matches asynchronous verifier callbacks back to pending
// attendance records and applies the verdict exactly once.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"rollcall/internal/attendance"
)

var (
	verdictsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_webhook_verdicts_applied_total",
		Help: "Verification verdicts applied to attendance records.",
	}, []string{"passed"})
	duplicateDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_webhook_duplicate_deliveries_total",
		Help: "Callback deliveries whose correlation entry was already consumed.",
	})
)

// Store is the slice of the ephemeral store the correlator touches: the
// correlation map and per-student record state, nothing else.
type Store interface {
	ResolveVerification(ctx context.Context, verificationID string) (string, uuid.UUID, error)
	DeleteVerification(ctx context.Context, verificationID string) error
	GetRecord(ctx context.Context, attendanceID uuid.UUID, studentNumber string) (*attendance.Record, error)
	PutRecord(ctx context.Context, r attendance.Record) error
}

// Result classifies the outcome of a callback delivery.
type Result int

const (
	// Applied means the verdict was written to the record.
	Applied Result = iota
	// Unknown means the correlation entry was absent: the delivery is a
	// duplicate or the entry expired. Treated as a successful no-op so a
	// retrying caller never sees an error.
	Unknown
	// RecordGone means the correlation resolved but the target record no
	// longer exists; the dangling entry was cleaned up.
	RecordGone
)

// Correlator resolves verifier callbacks and applies verdicts.
type Correlator struct {
	store  Store
	secret []byte
	now    func() time.Time
}

// New creates a correlator with the pre-shared webhook secret.
func New(store Store, secret []byte) *Correlator {
	return &Correlator{store: store, secret: secret, now: func() time.Time { return time.Now().UTC() }}
}

// ValidSignature verifies the HMAC-SHA256 hex signature over the raw
// payload bytes in constant time.
func (c *Correlator) ValidSignature(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Apply resolves the verification id and writes the verdict to the target
// record, then deletes the correlation entry so a repeat delivery is a
// no-op.
func (c *Correlator) Apply(ctx context.Context, verificationID string, passed bool, reason string) (Result, error) {
	studentNumber, attendanceID, err := c.store.ResolveVerification(ctx, verificationID)
	if err != nil {
		return Unknown, err
	}
	if studentNumber == "" {
		duplicateDeliveries.Inc()
		return Unknown, nil
	}

	record, err := c.store.GetRecord(ctx, attendanceID, studentNumber)
	if err != nil {
		return Unknown, err
	}
	if record == nil {
		if err := c.store.DeleteVerification(ctx, verificationID); err != nil {
			return RecordGone, err
		}
		return RecordGone, nil
	}

	if passed {
		now := c.now()
		record.IsAttended = true
		record.AttendanceTime = &now
		record.FailReason = ""
	} else {
		record.IsAttended = false
		record.AttendanceTime = nil
		record.FailReason = attendance.FailVerificationTag + reason
	}

	if err := c.store.PutRecord(ctx, *record); err != nil {
		return Unknown, err
	}
	// A crash between the record write and this delete leaves a consumable
	// entry that would double-apply on retry. Accepted as a rare, manually
	// recoverable case.
	if err := c.store.DeleteVerification(ctx, verificationID); err != nil {
		return Applied, err
	}
	verdictsApplied.WithLabelValues(boolLabel(passed)).Inc()
	return Applied, nil
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
