package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelChecks(t *testing.T) {
	err := NewValidationError("daily schedule requires hour in [0,23], got %d", 30)
	assert.True(t, IsValidation(err))
	assert.False(t, IsStructural(err))
	assert.Contains(t, err.Error(), "hour in [0,23]")

	structural := NewStructuralError("no entities resolved for schedule %s", "sched-1")
	assert.True(t, IsStructural(structural))
	assert.False(t, IsValidation(structural))
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := Wrap(ErrConsistency, "duplicate fingerprint for entity e-1")
	err = Wrap(err, "event creation")
	assert.True(t, IsConsistency(err))

	err = WithDetail(err, "fingerprint: abc123")
	assert.True(t, IsConsistency(err))
	assert.Contains(t, GetAllDetails(err), "fingerprint: abc123")
}

func TestWrapCollaborator(t *testing.T) {
	underlying := New("connection refused")
	err := WrapCollaborator(underlying, "news source search")
	assert.True(t, IsCollaborator(err))
	assert.Contains(t, err.Error(), "news source search")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapCollaboratorKeepsCause(t *testing.T) {
	err := WrapCollaborator(ErrNotFound, "preference lookup")
	assert.True(t, IsCollaborator(err))
	assert.True(t, Is(err, ErrNotFound))
}

func TestNilErrors(t *testing.T) {
	assert.False(t, IsValidation(nil))
	assert.False(t, IsCollaborator(nil))
	assert.False(t, IsStructural(nil))
	assert.False(t, IsConsistency(nil))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsConflict(nil))
}
