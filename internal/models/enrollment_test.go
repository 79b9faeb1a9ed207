package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnrollmentStatusClassification(t *testing.T) {
	cases := []struct {
		status      EnrollmentStatus
		terminal    bool
		processable bool
	}{
		{EnrollmentStatusPending, false, true},
		{EnrollmentStatusFailed, false, true},
		{EnrollmentStatusApproved, true, false},
		{EnrollmentStatusRejected, true, false},
		{EnrollmentStatusRetrying, false, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.terminal, tc.status.IsTerminal(), string(tc.status))
		assert.Equal(t, tc.processable, tc.status.IsProcessable(), string(tc.status))
		assert.True(t, tc.status.Valid())
	}
	assert.False(t, EnrollmentStatus("PENDING").Valid())
}

func TestAgeGroupContainsIsInclusive(t *testing.T) {
	g := AgeGroup{MinAge: 10, MaxAge: 20}

	assert.True(t, g.Contains(10))
	assert.True(t, g.Contains(20))
	assert.False(t, g.Contains(9))
	assert.False(t, g.Contains(21))
	assert.Equal(t, "10-20", g.String())
}
