// Package access implements the rules deciding who may download a shared file.
// Rules are assigned by the file owner, and anonymous callers resolve and verify
// the public link produced by the assignment.
package access

import (
	"context"
	"time"

	"bitwise74/share-api/internal/model"

	"github.com/google/uuid"
)

// FileStore is the persistence the engine needs for files. Lookups return
// ErrNotFound when no row matches.
type FileStore interface {
	ByID(ctx context.Context, id string) (*model.File, error)
	ByLink(ctx context.Context, link string) (*model.File, error)
	// UpdateRule persists the rule columns and public link of f in a single
	// statement scoped to the file's owner
	UpdateRule(ctx context.Context, f *model.File) error
}

// AccountStore returns the default download password of a user. A nil secret
// means the user never set one. ErrNotFound is returned for unknown users.
type AccountStore interface {
	DefaultSecret(ctx context.Context, userID string) (*string, error)
}

// CredentialMatcher compares a presented secret with a stored one, which may be
// a hash or a legacy plaintext value
type CredentialMatcher interface {
	Matches(presented, stored string) (bool, error)
}

// Hasher turns a new passcode into the form that gets persisted
type Hasher interface {
	Hash(p string) (string, error)
}

// Engine assigns access rules to files and decides who may download them
type Engine struct {
	Files    FileStore
	Accounts AccountStore
	Verifier CredentialMatcher
	// Hasher is used on new passcodes when set. Without it passcodes are
	// persisted as given
	Hasher Hasher

	// MaxValidity is the hard cap on how long any public link stays valid
	MaxValidity time.Duration
	Now         func() time.Time
	NewLink     func() string
}

// New returns an Engine on the wall clock that issues UUID links. Passcodes
// are stored as given until Hasher is set
func New(files FileStore, accounts AccountStore, verifier CredentialMatcher, maxValidity time.Duration) *Engine {
	return &Engine{
		Files:       files,
		Accounts:    accounts,
		Verifier:    verifier,
		MaxValidity: maxValidity,
		Now:         func() time.Time { return time.Now().UTC() },
		NewLink:     uuid.NewString,
	}
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}
