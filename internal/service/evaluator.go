package service

import (
	"fmt"
	"strings"

	"github.com/enrollhub/enrollment-service/internal/models"
)

// Rule names attached to decisions and metrics.
const (
	RuleRejectionLimit  = "rejection_limit"
	RuleAgeRange        = "age_range"
	RuleAlreadyApproved = "already_approved"
	RuleOpenEnrollment  = "open_enrollment"
	RuleEligible        = "eligible"
	RuleFetchFailed     = "fetch_failed"
)

// Rejection reasons written to the store.
const (
	ReasonTooManyRejections = "Too many rejections; you cannot request again"
	ReasonAlreadyApproved   = "An enrollment is already approved for this CPF"
	ReasonOpenEnrollment    = "Another enrollment is open for this CPF"
)

// EvaluationInput is everything the rules look at. The counts are scoped to
// the enrollment's cpf and owner.
type EvaluationInput struct {
	Enrollment    models.Enrollment
	Groups        []models.AgeGroup
	RejectedCount int
	ApprovedCount int
}

// Decision is the evaluator's verdict.
type Decision struct {
	Status models.EnrollmentStatus
	Reason string
	Rule   string
}

// Approved reports whether the decision admits the enrollment.
func (d Decision) Approved() bool {
	return d.Status == models.EnrollmentStatusApproved
}

// Evaluate applies the admission rules in fixed order: rejection limit, age
// range, existing approval. It has no side effects.
func Evaluate(in EvaluationInput) Decision {
	if in.RejectedCount >= models.MaxRejections {
		return reject(RuleRejectionLimit, ReasonTooManyRejections)
	}
	if !ageAdmitted(in.Enrollment.Age, in.Groups) {
		return reject(RuleAgeRange, ageReason(in.Enrollment.Age, in.Groups))
	}
	if in.ApprovedCount > 0 {
		return reject(RuleAlreadyApproved, ReasonAlreadyApproved)
	}
	return Decision{Status: models.EnrollmentStatusApproved, Rule: RuleEligible}
}

func reject(rule, reason string) Decision {
	return Decision{Status: models.EnrollmentStatusRejected, Reason: reason, Rule: rule}
}

func ageAdmitted(age int, groups []models.AgeGroup) bool {
	for _, g := range groups {
		if g.Contains(age) {
			return true
		}
	}
	return false
}

func ageReason(age int, groups []models.AgeGroup) string {
	if len(groups) == 0 {
		return fmt.Sprintf("Age %d not in any group", age)
	}
	ranges := make([]string, len(groups))
	for i, g := range groups {
		ranges[i] = g.String()
	}
	return fmt.Sprintf("Age %d not in any group [%s]", age, strings.Join(ranges, ", "))
}
