package model

import "time"

// Role is a member's role within a family.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Member is a family member entry. Name is a snapshot taken when the member
// joined; later display-name changes do not rewrite it.
type Member struct {
	UserID string `json:"uid"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
}

// Family is keyed by its invite code. Code and the admin's membership are
// fixed at creation; members are kept in join order.
type Family struct {
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	AdminID   string    `json:"admin"`
	Members   []Member  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member returns the member entry for userID, if present.
func (f *Family) Member(userID string) (Member, bool) {
	for _, m := range f.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return Member{}, false
}

// HasMember reports whether userID appears in the member list.
func (f *Family) HasMember(userID string) bool {
	_, ok := f.Member(userID)
	return ok
}

// IsAdmin reports whether userID is the family admin.
func (f *Family) IsAdmin(userID string) bool {
	return f.AdminID == userID
}
