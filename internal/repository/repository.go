// Package repository defines the storage contract the services depend on.
//
// Implementations live in subpackages (sqldb). Services only ever see these
// interfaces, so tests can swap in in-memory fakes.
package repository

import (
	"context"

	"github.com/sakif/chore-tracker/internal/model"
)

// UserRepository stores identities.
type UserRepository interface {
	// Create assigns ID and timestamps. A taken email or GitHub id is a conflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	UpdateDisplayName(ctx context.Context, id, name string) error
}

// ProfileRepository stores the per-user onboarding document.
type ProfileRepository interface {
	// Get returns apperror.ErrNotFound when the user has no profile yet.
	Get(ctx context.Context, userID string) (*model.Profile, error)
	// Upsert creates or replaces the profile (merge semantics on user id).
	Upsert(ctx context.Context, profile *model.Profile) error
}

// FamilyRepository stores families and their ordered member lists.
//
// Member mutations are single statements (list-append / list-remove), so two
// members acting at once never overwrite each other's changes.
type FamilyRepository interface {
	Get(ctx context.Context, code string) (*model.Family, error)
	Exists(ctx context.Context, code string) (bool, error)
	// Create inserts the family together with its initial members.
	// A code that is already taken is a conflict.
	Create(ctx context.Context, family *model.Family) error
	// AddMember appends to the end of the member list. Re-adding the same
	// user is a conflict.
	AddMember(ctx context.Context, code string, member model.Member) error
	RemoveMember(ctx context.Context, code, userID string) error
	// Delete removes the family, its members and its chores.
	Delete(ctx context.Context, code string) error
}

// ChoreRepository stores chores scoped under a family.
type ChoreRepository interface {
	List(ctx context.Context, familyCode string) ([]model.Chore, error)
	Get(ctx context.Context, familyCode, id string) (*model.Chore, error)
	Create(ctx context.Context, chore *model.Chore) error
	// SetCompletion writes IsCompleted, CompletedAt and CompletedBy together,
	// flipping the stored flag. ErrConflict if it already holds the new value.
	SetCompletion(ctx context.Context, chore *model.Chore) error
	Delete(ctx context.Context, familyCode, id string) error
}

// Tx is the set of repositories bound to one unit of work.
type Tx interface {
	Users() UserRepository
	Profiles() ProfileRepository
	Families() FamilyRepository
	Chores() ChoreRepository
}

// Store is the whole document store. Calls made directly on the Store run
// outside any transaction; InTx commits every write made through tx
// atomically, or none of them when fn returns an error.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
