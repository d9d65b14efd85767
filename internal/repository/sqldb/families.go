package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/repository"
)

var _ repository.FamilyRepository = familyRepo{}

type familyRepo struct {
	q querier
}

// Get loads a family and its members in join order.
func (r familyRepo) Get(ctx context.Context, code string) (*model.Family, error) {
	var f model.Family
	err := r.q.queryRow(ctx,
		`SELECT code, name, admin_id, created_at FROM families WHERE code = ?`, code,
	).Scan(&f.Code, &f.Name, &f.AdminID, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFoundMessage("no family found with code " + code)
		}
		return nil, fmt.Errorf("sqldb: getting family %s: %w", code, err)
	}

	rows, err := r.q.query(ctx,
		`SELECT user_id, name, role FROM family_members
		 WHERE family_code = ?
		 ORDER BY position`, code,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing members of %s: %w", code, err)
	}
	defer rows.Close()

	f.Members = make([]model.Member, 0, 4)
	for rows.Next() {
		var (
			m    model.Member
			role string
		)
		if err := rows.Scan(&m.UserID, &m.Name, &role); err != nil {
			return nil, fmt.Errorf("sqldb: scanning member row: %w", err)
		}
		m.Role = model.Role(role)
		f.Members = append(f.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating members of %s: %w", code, err)
	}
	return &f, nil
}

func (r familyRepo) Exists(ctx context.Context, code string) (bool, error) {
	var n int
	err := r.q.queryRow(ctx, `SELECT COUNT(*) FROM families WHERE code = ?`, code).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqldb: checking family %s: %w", code, err)
	}
	return n > 0, nil
}

// Create inserts the family row and its initial members. Run it inside InTx:
// on its own a failure halfway leaves a family without members.
func (r familyRepo) Create(ctx context.Context, f *model.Family) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := r.q.exec(ctx,
		`INSERT INTO families (code, name, admin_id, created_at) VALUES (?, ?, ?, ?)`,
		f.Code, f.Name, f.AdminID, f.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("family code " + f.Code + " is already taken")
		}
		return fmt.Errorf("sqldb: creating family %s: %w", f.Code, err)
	}

	for _, m := range f.Members {
		if err := r.AddMember(ctx, f.Code, m); err != nil {
			return err
		}
	}
	return nil
}

// AddMember appends in one statement: the position is computed by the
// database, so concurrent joins cannot both take the same slot or lose one
// another's row. A user already listed in any family is a conflict.
func (r familyRepo) AddMember(ctx context.Context, code string, m model.Member) error {
	_, err := r.q.exec(ctx,
		`INSERT INTO family_members (family_code, user_id, name, role, position)
		 VALUES (?, ?, ?, ?,
		   (SELECT COALESCE(MAX(position), 0) + 1 FROM family_members WHERE family_code = ?))`,
		code, m.UserID, m.Name, string(m.Role), code,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("you already belong to a family")
		}
		return fmt.Errorf("sqldb: adding member %s to %s: %w", m.UserID, code, err)
	}
	return nil
}

func (r familyRepo) RemoveMember(ctx context.Context, code, userID string) error {
	result, err := r.q.exec(ctx,
		`DELETE FROM family_members WHERE family_code = ? AND user_id = ?`,
		code, userID,
	)
	if err != nil {
		return fmt.Errorf("sqldb: removing member %s from %s: %w", userID, code, err)
	}
	return expectRow(result, apperror.NotFound("member", userID))
}

// Delete removes children explicitly rather than relying on ON DELETE
// CASCADE, which SQLite only honours when foreign keys are switched on.
func (r familyRepo) Delete(ctx context.Context, code string) error {
	if _, err := r.q.exec(ctx, `DELETE FROM chores WHERE family_code = ?`, code); err != nil {
		return fmt.Errorf("sqldb: deleting chores of %s: %w", code, err)
	}
	if _, err := r.q.exec(ctx, `DELETE FROM family_members WHERE family_code = ?`, code); err != nil {
		return fmt.Errorf("sqldb: deleting members of %s: %w", code, err)
	}
	result, err := r.q.exec(ctx, `DELETE FROM families WHERE code = ?`, code)
	if err != nil {
		return fmt.Errorf("sqldb: deleting family %s: %w", code, err)
	}
	return expectRow(result, apperror.NotFoundMessage("no family found with code "+code))
}
