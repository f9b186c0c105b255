package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbookd/server/internal/types"
)

func validHash(t *testing.T) string {
	t.Helper()
	h, err := HashPassword("a decent password")
	require.NoError(t, err)
	return h
}

func TestAuthenticateAssignsPermission(t *testing.T) {
	s := New()
	hash := validHash(t)
	require.NoError(t, s.AddPrivileged("alice", hash))
	require.NoError(t, s.AddNormal("bob", hash))

	res, ok := s.Authenticate("alice", hash)
	require.True(t, ok)
	assert.Equal(t, types.ReadWrite, res.Permission)

	res, ok = s.Authenticate("bob", hash)
	require.True(t, ok)
	assert.Equal(t, types.ReadOnly, res.Permission)
}

func TestAuthenticateRejectsWrongHash(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNormal("bob", validHash(t)))

	_, ok := s.Authenticate("bob", "wrong-hash-value-000000000000000000000000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestUsernameDisjointAcrossTables(t *testing.T) {
	s := New()
	require.NoError(t, s.AddNormal("carol", validHash(t)))

	err := s.AddPrivileged("carol", validHash(t))
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestPromoteMovesUserAtomically(t *testing.T) {
	s := New()
	hash := validHash(t)
	require.NoError(t, s.AddNormal("carol", hash))

	require.NoError(t, s.Promote("carol"))

	_, inNormal := s.Normal.Find("carol")
	assert.False(t, inNormal)

	stored, inPriv := s.Privileged.Find("carol")
	require.True(t, inPriv)
	assert.Equal(t, hash, stored)
}

func TestDemoteMovesUserBack(t *testing.T) {
	s := New()
	hash := validHash(t)
	require.NoError(t, s.AddPrivileged("dave", hash))

	require.NoError(t, s.Demote("dave"))

	_, inPriv := s.Privileged.Find("dave")
	assert.False(t, inPriv)
	_, inNormal := s.Normal.Find("dave")
	assert.True(t, inNormal)
}

func TestPromoteUnknownUserFails(t *testing.T) {
	s := New()
	err := s.Promote("ghost")
	assert.ErrorIs(t, err, ErrUsernameNotFound)
}
