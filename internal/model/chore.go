package model

import (
	"sort"
	"time"
)

// UnassignedName is the assignee name shown for chores anyone can pick up.
const UnassignedName = "Anyone"

// DueDateLayout is the calendar-date format used for Chore.DueDate.
const DueDateLayout = "2006-01-02"

// Chore belongs to exactly one family.
//
// Invariant: CompletedAt and CompletedBy are set if and only if IsCompleted
// is true. MarkComplete and MarkIncomplete keep the three fields in step.
type Chore struct {
	ID             string     `json:"id"`
	FamilyCode     string     `json:"familyId"`
	Title          string     `json:"title"`
	AssignedTo     *string    `json:"assignedTo"`
	AssignedToName string     `json:"assignedToName"`
	DueDate        *string    `json:"dueDate"`
	IsCompleted    bool       `json:"isCompleted"`
	CompletedAt    *time.Time `json:"completedAt"`
	CompletedBy    *string    `json:"completedBy"`
	CreatedBy      string     `json:"createdBy"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// MarkComplete records who completed the chore and when.
func (c *Chore) MarkComplete(userID string, at time.Time) {
	c.IsCompleted = true
	c.CompletedAt = &at
	c.CompletedBy = &userID
}

// MarkIncomplete clears the completion fields.
func (c *Chore) MarkIncomplete() {
	c.IsCompleted = false
	c.CompletedAt = nil
	c.CompletedBy = nil
}

// Valid reports whether the completion fields are consistent.
func (c *Chore) Valid() bool {
	if c.Title == "" {
		return false
	}
	if c.IsCompleted {
		return c.CompletedAt != nil && c.CompletedBy != nil
	}
	return c.CompletedAt == nil && c.CompletedBy == nil
}

// SortChores orders chores for display: incomplete before complete, and
// newest first within each group. The sort is stable, so chores created at
// the same instant keep their relative order.
func SortChores(chores []Chore) {
	sort.SliceStable(chores, func(i, j int) bool {
		a, b := chores[i], chores[j]
		if a.IsCompleted != b.IsCompleted {
			return !a.IsCompleted
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}
