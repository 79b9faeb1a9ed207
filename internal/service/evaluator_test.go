package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/enrollhub/enrollment-service/internal/models"
)

var defaultGroups = []models.AgeGroup{{MinAge: 0, MaxAge: 5}, {MinAge: 10, MaxAge: 20}}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name       string
		input      EvaluationInput
		wantStatus models.EnrollmentStatus
		wantRule   string
		wantReason string
	}{
		{
			name:       "age within second range",
			input:      EvaluationInput{Enrollment: models.Enrollment{CPF: "65253579001", Age: 12}, Groups: defaultGroups},
			wantStatus: models.EnrollmentStatusApproved,
			wantRule:   RuleEligible,
		},
		{
			name:       "inclusive upper bound",
			input:      EvaluationInput{Enrollment: models.Enrollment{Age: 20}, Groups: defaultGroups},
			wantStatus: models.EnrollmentStatusApproved,
			wantRule:   RuleEligible,
		},
		{
			name:       "three prior rejections",
			input:      EvaluationInput{Enrollment: models.Enrollment{CPF: "92010472071", Age: 5}, Groups: defaultGroups, RejectedCount: 3},
			wantStatus: models.EnrollmentStatusRejected,
			wantRule:   RuleRejectionLimit,
			wantReason: "Too many rejections",
		},
		{
			name:       "two prior rejections still approved",
			input:      EvaluationInput{Enrollment: models.Enrollment{Age: 5}, Groups: defaultGroups, RejectedCount: 2},
			wantStatus: models.EnrollmentStatusApproved,
			wantRule:   RuleEligible,
		},
		{
			name:       "rejection limit checked before age",
			input:      EvaluationInput{Enrollment: models.Enrollment{Age: 7}, Groups: defaultGroups, RejectedCount: 4},
			wantStatus: models.EnrollmentStatusRejected,
			wantRule:   RuleRejectionLimit,
			wantReason: "Too many rejections",
		},
		{
			name:       "age in the gap",
			input:      EvaluationInput{Enrollment: models.Enrollment{Age: 7}, Groups: defaultGroups},
			wantStatus: models.EnrollmentStatusRejected,
			wantRule:   RuleAgeRange,
			wantReason: "Age 7 not in any group [0-5, 10-20]",
		},
		{
			name:       "no ranges at all",
			input:      EvaluationInput{Enrollment: models.Enrollment{Age: 3}},
			wantStatus: models.EnrollmentStatusRejected,
			wantRule:   RuleAgeRange,
			wantReason: "Age 3 not in any group",
		},
		{
			name:       "already approved",
			input:      EvaluationInput{Enrollment: models.Enrollment{CPF: "95374011030", Age: 2}, Groups: defaultGroups, ApprovedCount: 1},
			wantStatus: models.EnrollmentStatusRejected,
			wantRule:   RuleAlreadyApproved,
			wantReason: "already approved",
		},
		{
			name:       "age checked before existing approval",
			input:      EvaluationInput{Enrollment: models.Enrollment{Age: 30}, Groups: defaultGroups, ApprovedCount: 1},
			wantStatus: models.EnrollmentStatusRejected,
			wantRule:   RuleAgeRange,
			wantReason: "Age 30",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.input)
			assert.Equal(t, tc.wantStatus, got.Status)
			assert.Equal(t, tc.wantRule, got.Rule)
			if tc.wantReason == "" {
				assert.Empty(t, got.Reason)
				assert.True(t, got.Approved())
			} else {
				assert.Contains(t, got.Reason, tc.wantReason)
			}
		})
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	in := EvaluationInput{Enrollment: models.Enrollment{Age: 7}, Groups: defaultGroups, RejectedCount: 1}
	first := Evaluate(in)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Evaluate(in))
	}
}
