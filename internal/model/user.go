// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an authenticated identity.
//
// Accounts are created either by e-mail/password sign-up or on first GitHub
// sign-in. The internal ID (an xid) is what every other record refers to; it
// never changes for the lifetime of the account.
//
// PasswordHash is tagged json:"-" so it can never leak through an API
// response, even if a handler serializes the whole struct.
type User struct {
	ID           string    `json:"id"          db:"id"`
	Email        string    `json:"email"       db:"email"`
	DisplayName  string    `json:"displayName" db:"display_name"`
	PasswordHash string    `json:"-"           db:"password_hash"`
	GitHubID     *int64    `json:"githubId,omitempty" db:"github_id"` // set for GitHub sign-ins
	CreatedAt    time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"   db:"updated_at"`
}

// MemberName is the name snapshot stored when the user joins a family:
// the display name, or the e-mail address when no display name is set.
func (u *User) MemberName() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Profile is the onboarding record keyed by user ID.
//
// Invariant: HasFamily is true exactly when FamilyID is set. Use Joined and
// Cleared to build values instead of setting the fields independently.
type Profile struct {
	UserID    string    `json:"userId"    db:"user_id"`
	HasFamily bool      `json:"hasFamily" db:"has_family"`
	FamilyID  *string   `json:"familyId"  db:"family_id"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Joined returns the profile of a user who belongs to the family with the given code.
func Joined(userID, code string) *Profile {
	return &Profile{UserID: userID, HasFamily: true, FamilyID: &code}
}

// Cleared returns the profile of a user without a family.
func Cleared(userID string) *Profile {
	return &Profile{UserID: userID}
}

// Valid reports whether HasFamily and FamilyID agree.
func (p *Profile) Valid() bool {
	return p.HasFamily == (p.FamilyID != nil && *p.FamilyID != "")
}
