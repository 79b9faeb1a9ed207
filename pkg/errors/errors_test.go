package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrNotFound, "enrollment not found")

	assert.Equal(t, "enrollment not found", cloned.Message)
	assert.Equal(t, http.StatusNotFound, cloned.Status)
	assert.True(t, errors.Is(cloned, ErrNotFound))
	assert.False(t, errors.Is(cloned, ErrEnrollmentOpen))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(fmt.Errorf("boom"))

	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.Equal(t, "internal server error: boom", appErr.Error())
}

func TestFromErrorUnwrapsTyped(t *testing.T) {
	wrapped := fmt.Errorf("create: %w", Clone(ErrTooManyRejections, ""))

	appErr := FromError(wrapped)
	assert.Equal(t, ErrTooManyRejections.Code, appErr.Code)
	assert.Nil(t, FromError(nil))
}
