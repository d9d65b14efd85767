package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/repository"
)

var _ repository.UserRepository = userRepo{}

type userRepo struct {
	q querier
}

const userColumns = `id, email, display_name, password_hash, github_id, created_at, updated_at`

// Create inserts a new user. xid gives 20-char, URL-safe ids that sort by
// creation time. Emails are stored lower-cased so lookups are
// case-insensitive on both engines.
func (r userRepo) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	_, err := r.q.exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, githubID,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("an account with this email already exists")
		}
		return fmt.Errorf("sqldb: creating user: %w", err)
	}
	return nil
}

func (r userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := r.getBy(ctx, "id", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	return u, err
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFoundMessage("no account with this email")
	}
	return u, err
}

func (r userRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := r.getBy(ctx, "github_id", githubID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
	}
	return u, err
}

// getBy is shared by the lookups. column is always a constant from this file.
func (r userRepo) getBy(ctx context.Context, column string, value any) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	err := r.q.queryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value,
	).Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &githubID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqldb: getting user by %s: %w", column, err)
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

func (r userRepo) UpdateDisplayName(ctx context.Context, id, name string) error {
	result, err := r.q.exec(ctx,
		`UPDATE users SET display_name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqldb: updating display name of %s: %w", id, err)
	}
	return expectRow(result, apperror.NotFound("user", id))
}

// expectRow turns "zero rows affected" into notFound.
func expectRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqldb: checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
