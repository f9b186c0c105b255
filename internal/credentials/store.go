// Package credentials implements the two user tables (Normal, read-only
// and Privileged, read-write) and the authentication lookup that assigns
// a Permission on successful hash match.
//
// Storage reuses internal/store rather than re-deriving a second table
// implementation: a user table is shaped exactly like a Main store (a
// sorted, unique-keyed, bounded table), just validated as UserKind and
// holding username -> hash instead of name -> numbers.
package credentials

import (
	"errors"
	"fmt"

	"github.com/dirbookd/server/internal/store"
	"github.com/dirbookd/server/internal/types"
)

// ErrUsernameExists is returned by AddNormal/AddPrivileged when the
// username is already present in the other table (a username may never
// hold both permission levels at once).
var ErrUsernameExists = errors.New("credentials: username already present")

// ErrUsernameNotFound is returned when an operator operation targets a
// username that isn't present in the expected table.
var ErrUsernameNotFound = errors.New("credentials: username not found")

// Store holds the Normal (read-only) and Privileged (read-write) user
// tables. Callers coordinate access through an rwcoord.Coordinator keyed
// to the "User" pool.
type Store struct {
	Normal     *store.Store
	Privileged *store.Store
}

// New creates two empty user tables.
func New() *Store {
	return &Store{
		Normal:     store.New(types.UserKind),
		Privileged: store.New(types.UserKind),
	}
}

// AuthResult is returned by Authenticate on a successful lookup.
type AuthResult struct {
	Permission types.Permission
}

// Authenticate looks up username first in Normal, then in Privileged,
// comparing hash byte-for-byte. Returns ok=false with no distinction
// between "no such user" and "wrong hash": callers determine which by
// calling Exists separately when they need to choose between
// INV_USERNAME_RESP and INV_PASSWORD_RESP.
func (s *Store) Authenticate(username, hash string) (AuthResult, bool) {
	if stored, ok := s.Normal.Find(username); ok {
		if stored == hash {
			return AuthResult{Permission: types.ReadOnly}, true
		}
		return AuthResult{}, false
	}
	if stored, ok := s.Privileged.Find(username); ok {
		if stored == hash {
			return AuthResult{Permission: types.ReadWrite}, true
		}
		return AuthResult{}, false
	}
	return AuthResult{}, false
}

// Exists reports whether username is present in either table.
func (s *Store) Exists(username string) bool {
	if _, ok := s.Normal.Find(username); ok {
		return true
	}
	_, ok := s.Privileged.Find(username)
	return ok
}

// AddNormal inserts or overwrites a normal (read-only) user's hash.
// Refuses if the username is already privileged, preserving invariant 4.
func (s *Store) AddNormal(username, hash string) error {
	if _, ok := s.Privileged.Find(username); ok {
		return ErrUsernameExists
	}
	return s.Normal.Insert(username, hash)
}

// AddPrivileged inserts or overwrites a privileged (read-write) user's
// hash. Refuses if the username is already normal.
func (s *Store) AddPrivileged(username, hash string) error {
	if _, ok := s.Normal.Find(username); ok {
		return ErrUsernameExists
	}
	return s.Privileged.Insert(username, hash)
}

// RemoveNormal deletes username from the normal table.
func (s *Store) RemoveNormal(username string) error {
	return s.Normal.Remove(username)
}

// RemovePrivileged deletes username from the privileged table.
func (s *Store) RemovePrivileged(username string) error {
	return s.Privileged.Remove(username)
}

// Promote moves username from the normal table to the privileged table.
// The remove and add are applied back-to-back under whatever external
// write-exclusivity the caller already holds, so the change is atomic
// with respect to any reader going through the coordinator.
func (s *Store) Promote(username string) error {
	hash, ok := s.Normal.Find(username)
	if !ok {
		return ErrUsernameNotFound
	}
	if err := s.Normal.Remove(username); err != nil {
		return fmt.Errorf("credentials: promote remove: %w", err)
	}
	if err := s.Privileged.Insert(username, hash); err != nil {
		return fmt.Errorf("credentials: promote insert: %w", err)
	}
	return nil
}

// Demote moves username from the privileged table to the normal table.
func (s *Store) Demote(username string) error {
	hash, ok := s.Privileged.Find(username)
	if !ok {
		return ErrUsernameNotFound
	}
	if err := s.Privileged.Remove(username); err != nil {
		return fmt.Errorf("credentials: demote remove: %w", err)
	}
	if err := s.Normal.Insert(username, hash); err != nil {
		return fmt.Errorf("credentials: demote insert: %w", err)
	}
	return nil
}
