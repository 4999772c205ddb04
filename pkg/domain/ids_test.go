package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "attesta/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseDocumentID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseDocumentID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseReviewerID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseDocumentID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, DocumentID(validUUID), id)
	})

	t.Run("round trips through String", func(t *testing.T) {
		id := NewReviewerID()
		parsed, err := ParseReviewerID(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	})
}

func TestParseRole(t *testing.T) {
	t.Run("accepts every pipeline role", func(t *testing.T) {
		for _, role := range Roles() {
			parsed, err := ParseRole(role.String())
			require.NoError(t, err)
			assert.Equal(t, role, parsed)
		}
	})

	t.Run("rejects empty role", func(t *testing.T) {
		_, err := ParseRole("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		_, err := ParseRole("staff3")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestRolesOrder(t *testing.T) {
	// The pipeline order is part of the contract: clerk first, registrar last.
	roles := Roles()
	require.Len(t, roles, 5)
	assert.Equal(t, RoleClerk, roles[0])
	assert.Equal(t, RoleRegistrar, roles[4])
}
