package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/repository"
)

var _ repository.ChoreRepository = choreRepo{}

type choreRepo struct {
	q querier
}

const choreColumns = `id, family_code, title, assigned_to, assigned_to_name, due_date,
	is_completed, completed_at, completed_by, created_by, created_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanChore(s scanner) (*model.Chore, error) {
	var (
		c                                model.Chore
		assignedTo, dueDate, completedBy sql.NullString
		completedAt                      sql.NullTime
	)
	err := s.Scan(&c.ID, &c.FamilyCode, &c.Title, &assignedTo, &c.AssignedToName, &dueDate,
		&c.IsCompleted, &completedAt, &completedBy, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	c.AssignedTo = nullString(assignedTo)
	c.DueDate = nullString(dueDate)
	c.CompletedBy = nullString(completedBy)
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return &c, nil
}

// List returns the family's chores in display order: incomplete first, then
// newest first. The service sorts again with model.SortChores, which is the
// authority; ORDER BY just keeps direct readers consistent.
func (r choreRepo) List(ctx context.Context, familyCode string) ([]model.Chore, error) {
	rows, err := r.q.query(ctx,
		`SELECT `+choreColumns+` FROM chores
		 WHERE family_code = ?
		 ORDER BY is_completed, created_at DESC`, familyCode,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing chores of %s: %w", familyCode, err)
	}
	defer rows.Close()

	chores := make([]model.Chore, 0, 16)
	for rows.Next() {
		c, err := scanChore(rows)
		if err != nil {
			return nil, fmt.Errorf("sqldb: scanning chore row: %w", err)
		}
		chores = append(chores, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating chores: %w", err)
	}
	return chores, nil
}

func (r choreRepo) Get(ctx context.Context, familyCode, id string) (*model.Chore, error) {
	c, err := scanChore(r.q.queryRow(ctx,
		`SELECT `+choreColumns+` FROM chores WHERE family_code = ? AND id = ?`,
		familyCode, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("chore", id)
		}
		return nil, fmt.Errorf("sqldb: getting chore %s: %w", id, err)
	}
	return c, nil
}

func (r choreRepo) Create(ctx context.Context, c *model.Chore) error {
	c.ID = xid.New().String()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.exec(ctx,
		`INSERT INTO chores (`+choreColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FamilyCode, c.Title, toNull(c.AssignedTo), c.AssignedToName, toNull(c.DueDate),
		c.IsCompleted, toNullTime(c.CompletedAt), toNull(c.CompletedBy), c.CreatedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: creating chore: %w", err)
	}
	return nil
}

// SetCompletion writes the three completion fields in one statement, and only
// while the stored flag is still the opposite of c.IsCompleted. Two members
// flipping the same snapshot cannot both win: the second gets ErrConflict.
// The table's CHECK constraint rejects any combination that breaks the
// "timestamp and completer set iff completed" rule.
func (r choreRepo) SetCompletion(ctx context.Context, c *model.Chore) error {
	result, err := r.q.exec(ctx,
		`UPDATE chores SET is_completed = ?, completed_at = ?, completed_by = ?
		 WHERE family_code = ? AND id = ? AND is_completed = ?`,
		c.IsCompleted, toNullTime(c.CompletedAt), toNull(c.CompletedBy), c.FamilyCode, c.ID, !c.IsCompleted,
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating chore %s: %w", c.ID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: updating chore %s: %w", c.ID, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := r.Get(ctx, c.FamilyCode, c.ID); err != nil {
		return err
	}
	return apperror.Conflict("this chore was just changed by someone else")
}

func (r choreRepo) Delete(ctx context.Context, familyCode, id string) error {
	result, err := r.q.exec(ctx,
		`DELETE FROM chores WHERE family_code = ? AND id = ?`, familyCode, id,
	)
	if err != nil {
		return fmt.Errorf("sqldb: deleting chore %s: %w", id, err)
	}
	return expectRow(result, apperror.NotFound("chore", id))
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func toNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
