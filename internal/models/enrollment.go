package models

import "time"

// EnrollmentStatus represents the processing lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Pending is assigned at creation; approved and
// rejected are terminal; failed marks an errored attempt awaiting redelivery.
const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
	EnrollmentStatusFailed   EnrollmentStatus = "failed"
	// EnrollmentStatusRetrying is reserved. The processor never writes it;
	// retries are driven by broker dead-lettering instead.
	EnrollmentStatusRetrying EnrollmentStatus = "retrying"
)

// IsTerminal reports whether no further automated transition can occur.
func (s EnrollmentStatus) IsTerminal() bool {
	return s == EnrollmentStatusApproved || s == EnrollmentStatusRejected
}

// IsProcessable reports whether the processor may still decide the record.
func (s EnrollmentStatus) IsProcessable() bool {
	return s == EnrollmentStatusPending || s == EnrollmentStatusFailed
}

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected,
		EnrollmentStatusFailed, EnrollmentStatusRetrying:
		return true
	}
	return false
}

// MaxRejections is the number of rejected enrollments an owner may accumulate
// for one CPF before further submissions are refused.
const MaxRejections = 3

// Enrollment is one applicant's request tracked through processing.
type Enrollment struct {
	ID              string           `db:"id" bson:"_id" json:"id"`
	Name            string           `db:"name" bson:"name" json:"name"`
	CPF             string           `db:"cpf" bson:"cpf" json:"cpf"`
	Age             int              `db:"age" bson:"age" json:"age"`
	Owner           string           `db:"owner" bson:"owner" json:"-"`
	Status          EnrollmentStatus `db:"status" bson:"status" json:"status"`
	RejectionReason *string          `db:"rejection_reason" bson:"rejection_reason" json:"rejection_reason"`
	CreatedAt       time.Time        `db:"created_at" bson:"created_at" json:"created_at"`
	ProcessedAt     *time.Time       `db:"processed_at" bson:"processed_at" json:"processed_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	Owner    string
	CPF      string
	Status   EnrollmentStatus
	Page     int
	PageSize int
}

// StatusUpdate describes a processor decision to persist.
type StatusUpdate struct {
	Status          EnrollmentStatus
	RejectionReason *string
	ProcessedAt     time.Time
}
