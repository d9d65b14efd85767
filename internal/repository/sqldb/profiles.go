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

var _ repository.ProfileRepository = profileRepo{}

type profileRepo struct {
	q querier
}

func (r profileRepo) Get(ctx context.Context, userID string) (*model.Profile, error) {
	var (
		p        model.Profile
		familyID sql.NullString
	)
	err := r.q.queryRow(ctx,
		`SELECT user_id, has_family, family_id, updated_at FROM profiles WHERE user_id = ?`,
		userID,
	).Scan(&p.UserID, &p.HasFamily, &familyID, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("sqldb: getting profile %s: %w", userID, err)
	}
	if familyID.Valid {
		p.FamilyID = &familyID.String
	}
	return &p, nil
}

// Upsert writes the whole profile. ON CONFLICT ... DO UPDATE is understood by
// both SQLite and PostgreSQL.
func (r profileRepo) Upsert(ctx context.Context, p *model.Profile) error {
	if !p.Valid() {
		return apperror.ValidationFailed("familyId", "hasFamily must be set exactly when familyId is")
	}
	p.UpdatedAt = time.Now().UTC()

	var familyID sql.NullString
	if p.FamilyID != nil {
		familyID = sql.NullString{String: *p.FamilyID, Valid: true}
	}

	_, err := r.q.exec(ctx,
		`INSERT INTO profiles (user_id, has_family, family_id, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   has_family = excluded.has_family,
		   family_id  = excluded.family_id,
		   updated_at = excluded.updated_at`,
		p.UserID, p.HasFamily, familyID, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqldb: upserting profile %s: %w", p.UserID, err)
	}
	return nil
}
