package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/invite"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/notify"
	"github.com/sakif/chore-tracker/internal/repository"
	"github.com/sakif/chore-tracker/internal/watch"
)

// DefaultCodeMaxAttempts bounds each round of code generation.
const DefaultCodeMaxAttempts = 1000

// CodeFunc draws a random join code of length n.
type CodeFunc func(n int) (string, error)

type FamilyOptions struct {
	CodeMaxAttempts int
	// AppURL is the base of the join link put into invite e-mails.
	AppURL string
	// Codes overrides the code generator (tests).
	Codes CodeFunc
}

// FamilyService allocates, joins and leaves families.
//
// Every operation that touches more than one document (the family and the
// caller's profile) commits them in a single transaction. After the commit
// it publishes fresh snapshots so open streams update.
type FamilyService struct {
	store       repository.Store
	hub         *watch.Hub
	mailer      notify.Mailer
	codes       CodeFunc
	maxAttempts int
	appURL      string
	logger      *slog.Logger
}

func NewFamilyService(store repository.Store, hub *watch.Hub, mailer notify.Mailer, opts FamilyOptions, logger *slog.Logger) *FamilyService {
	if opts.CodeMaxAttempts <= 0 {
		opts.CodeMaxAttempts = DefaultCodeMaxAttempts
	}
	if opts.Codes == nil {
		opts.Codes = invite.New
	}
	return &FamilyService{
		store:       store,
		hub:         hub,
		mailer:      mailer,
		codes:       opts.Codes,
		maxAttempts: opts.CodeMaxAttempts,
		appURL:      strings.TrimRight(opts.AppURL, "/"),
		logger:      logger,
	}
}

var (
	// errCodeTaken marks an attempt whose code was already in use.
	errCodeTaken = errors.New("family code taken")
	errInFamily  = apperror.Conflict("you already belong to a family; leave it before creating another")
)

// Create allocates a fresh code and commits the family (caller as sole
// admin) together with the caller's profile.
//
// Codes are drawn up to maxAttempts times at the normal length; if every
// draw collides, another round runs with longer fallback codes. A
// collision detected at commit time (someone else took the code between
// the lookup and the insert) counts as a collision too.
func (s *FamilyService) Create(ctx context.Context, userID, name string) (*model.Family, error) {
	name = cleanText(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "please enter a family name")
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/family: loading creator %s: %w", userID, err)
	}
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.HasFamily {
		return nil, errInFamily
	}

	for _, length := range []int{invite.Length, invite.FallbackLength} {
		for attempt := 1; attempt <= s.maxAttempts; attempt++ {
			family, err := s.tryCreate(ctx, user, name, length)
			if errors.Is(err, errCodeTaken) {
				s.logger.DebugContext(ctx, "family code collision",
					slog.Int("length", length),
					slog.Int("attempt", attempt),
				)
				continue
			}
			if err != nil {
				return nil, err
			}

			s.logger.InfoContext(ctx, "family created",
				slog.String("code", family.Code),
				slog.String("admin", userID),
				slog.Int("attempts", attempt),
			)
			s.publishProfile(ctx, userID)
			s.publishFamily(ctx, family.Code)
			return family, nil
		}
		s.logger.WarnContext(ctx, "family code space exhausted at length, falling back",
			slog.Int("length", length),
			slog.Int("attempts", s.maxAttempts),
		)
	}
	return nil, fmt.Errorf("service/family: no free family code after %d attempts per length", s.maxAttempts)
}

func (s *FamilyService) tryCreate(ctx context.Context, user *model.User, name string, length int) (*model.Family, error) {
	code, err := s.codes(length)
	if err != nil {
		return nil, fmt.Errorf("service/family: generating code: %w", err)
	}

	taken, err := s.store.Families().Exists(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/family: checking code: %w", err)
	}
	if taken {
		return nil, errCodeTaken
	}

	family := &model.Family{
		Code:    code,
		Name:    name,
		AdminID: user.ID,
		Members: []model.Member{{UserID: user.ID, Name: user.MemberName(), Role: model.RoleAdmin}},
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := ensureNoFamily(ctx, tx.Profiles(), user.ID, ""); err != nil {
			return err
		}
		if err := tx.Families().Create(ctx, family); err != nil {
			return err
		}
		return tx.Profiles().Upsert(ctx, model.Joined(user.ID, code))
	})
	if errors.Is(err, errInFamily) {
		return nil, err
	}
	if errors.Is(err, apperror.ErrConflict) {
		// Either the code or, on a concurrent create, the caller's membership
		// row; the next attempt re-reads the profile and tells them apart.
		return nil, errCodeTaken
	}
	if err != nil {
		return nil, fmt.Errorf("service/family: committing family %s: %w", code, err)
	}
	return family, nil
}

// Join appends the caller to an existing family. An unknown code fails with
// not-found before anything is written. Joining a family you are already in
// is rejected as a conflict rather than silently adding a second entry.
func (s *FamilyService) Join(ctx context.Context, userID, rawCode string) (*model.Family, error) {
	code := invite.Normalize(rawCode)
	if err := invite.Validate(code); err != nil {
		return nil, err
	}

	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/family: loading %s: %w", userID, err)
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := ensureNoFamily(ctx, tx.Profiles(), userID, code); err != nil {
			return err
		}
		family, err := tx.Families().Get(ctx, code)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.NotFoundMessage("family not found; please check the code")
			}
			return err
		}
		if family.HasMember(userID) {
			return apperror.Conflict("you are already a member of this family")
		}
		member := model.Member{UserID: userID, Name: user.MemberName(), Role: model.RoleMember}
		if err := tx.Families().AddMember(ctx, code, member); err != nil {
			return err
		}
		return tx.Profiles().Upsert(ctx, model.Joined(userID, code))
	})
	if err != nil {
		return nil, fmt.Errorf("service/family: joining %s: %w", code, err)
	}

	s.logger.InfoContext(ctx, "family joined", slog.String("code", code), slog.String("userID", userID))
	s.publishProfile(ctx, userID)
	family := s.publishFamily(ctx, code)
	if family == nil {
		return s.store.Families().Get(ctx, code)
	}
	return family, nil
}

// LeaveResult tells the caller what Leave did.
type LeaveResult struct {
	FamilyCode    string `json:"familyId"`
	FamilyDeleted bool   `json:"familyDeleted"`
}

// Leave removes the caller from their family.
//
//   - plain member: their entry is removed and their profile cleared.
//   - admin and only member: the family and its chores are deleted, but only
//     when confirm is true; otherwise ErrConfirmationRequired and no change.
//   - admin with other members: ErrForbidden and no change. There is no way
//     to hand the admin role over yet.
func (s *FamilyService) Leave(ctx context.Context, userID string, confirm bool) (*LeaveResult, error) {
	result := &LeaveResult{}
	err := s.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		profile, err := loadProfile(ctx, tx.Profiles(), userID)
		if err != nil {
			return err
		}
		if !profile.HasFamily {
			return apperror.NotFoundMessage("you are not in a family")
		}
		code := *profile.FamilyID
		result.FamilyCode = code

		family, err := tx.Families().Get(ctx, code)
		switch {
		case errors.Is(err, apperror.ErrNotFound):
			// The profile points at a family that no longer exists.
			return tx.Profiles().Upsert(ctx, model.Cleared(userID))
		case err != nil:
			return err
		}

		switch {
		case !family.HasMember(userID):
			return tx.Profiles().Upsert(ctx, model.Cleared(userID))

		case family.IsAdmin(userID) && len(family.Members) == 1:
			if !confirm {
				return apperror.ConfirmationRequired(
					"you are the only member; leaving will permanently delete this family and all of its chores")
			}
			if err := tx.Families().Delete(ctx, code); err != nil {
				return err
			}
			result.FamilyDeleted = true

		case family.IsAdmin(userID):
			return apperror.Forbidden(
				"you are the admin of this family; transfer the admin role to another member before leaving")

		default:
			if err := tx.Families().RemoveMember(ctx, code, userID); err != nil {
				return err
			}
		}
		return tx.Profiles().Upsert(ctx, model.Cleared(userID))
	})
	if err != nil {
		return nil, fmt.Errorf("service/family: leaving family: %w", err)
	}
	code := result.FamilyCode

	s.logger.InfoContext(ctx, "family left",
		slog.String("code", code),
		slog.String("userID", userID),
		slog.Bool("deleted", result.FamilyDeleted),
	)
	s.publishProfile(ctx, userID)
	if result.FamilyDeleted {
		s.hub.Publish(watch.Event{Topic: watch.FamilyTopic(code)})
		s.hub.Publish(watch.Event{Topic: watch.ChoresTopic(code)})
	} else {
		s.publishFamily(ctx, code)
	}
	return result, nil
}

// Current returns the caller's family.
func (s *FamilyService) Current(ctx context.Context, userID string) (*model.Family, error) {
	return memberFamily(ctx, s.store, userID)
}

// Get returns a family by code, to members only.
func (s *FamilyService) Get(ctx context.Context, userID, code string) (*model.Family, error) {
	family, err := s.store.Families().Get(ctx, invite.Normalize(code))
	if err != nil {
		return nil, fmt.Errorf("service/family: %w", err)
	}
	if !family.HasMember(userID) {
		return nil, apperror.Forbidden("you are not a member of this family")
	}
	return family, nil
}

// Profile returns the caller's onboarding profile.
func (s *FamilyService) Profile(ctx context.Context, userID string) (*model.Profile, error) {
	return s.profile(ctx, userID)
}

// Invite e-mails the caller's family code to someone.
func (s *FamilyService) Invite(ctx context.Context, userID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperror.ValidationFailed("email", "please enter an email address")
	}
	if err := validateEmail(email); err != nil {
		return err
	}

	family, err := memberFamily(ctx, s.store, userID)
	if err != nil {
		return err
	}
	member, _ := family.Member(userID)

	inv := notify.Invite{
		To:         email,
		FamilyName: family.Name,
		Code:       family.Code,
		InvitedBy:  member.Name,
		JoinURL:    s.appURL + "/join?code=" + url.QueryEscape(family.Code),
	}
	if err := s.mailer.SendInvite(ctx, inv); err != nil {
		return fmt.Errorf("service/family: sending invite: %w", err)
	}
	return nil
}

// ensureNoFamily rejects callers whose profile already points at a family.
// Create and Join call it inside their transaction, so two concurrent
// requests from one user cannot both pass it.
func ensureNoFamily(ctx context.Context, profiles repository.ProfileRepository, userID, joining string) error {
	profile, err := loadProfile(ctx, profiles, userID)
	if err != nil {
		return err
	}
	switch {
	case !profile.HasFamily:
		return nil
	case joining != "" && *profile.FamilyID == joining:
		return apperror.Conflict("you are already a member of this family")
	case joining != "":
		return apperror.Conflict("you already belong to a family; leave it before joining another")
	default:
		return errInFamily
	}
}

func (s *FamilyService) profile(ctx context.Context, userID string) (*model.Profile, error) {
	return loadProfile(ctx, s.store.Profiles(), userID)
}

// loadProfile treats a missing profile document as "no family".
func loadProfile(ctx context.Context, profiles repository.ProfileRepository, userID string) (*model.Profile, error) {
	p, err := profiles.Get(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return model.Cleared(userID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("service/family: loading profile of %s: %w", userID, err)
	}
	return p, nil
}

func (s *FamilyService) publishProfile(ctx context.Context, userID string) {
	publishProfile(ctx, s.store, s.hub, userID)
}

// publishFamily reads the committed family back and publishes it. It
// returns the snapshot, or nil when it could not be read.
func (s *FamilyService) publishFamily(ctx context.Context, code string) *model.Family {
	family, err := s.store.Families().Get(ctx, code)
	ev := watch.Event{Topic: watch.FamilyTopic(code)}
	switch {
	case err == nil:
		ev.Value = family
	case !errors.Is(err, apperror.ErrNotFound):
		ev.Err = err
		s.logger.WarnContext(ctx, "reloading family for subscribers",
			slog.String("code", code), slog.String("error", err.Error()))
	}
	s.hub.Publish(ev)
	return family
}

func publishProfile(ctx context.Context, store repository.Store, hub *watch.Hub, userID string) {
	p, err := store.Profiles().Get(ctx, userID)
	ev := watch.Event{Topic: watch.ProfileTopic(userID)}
	switch {
	case err == nil:
		ev.Value = p
	case !errors.Is(err, apperror.ErrNotFound):
		ev.Err = err
	}
	hub.Publish(ev)
}

// memberFamily resolves the caller's family and checks they are listed in it.
func memberFamily(ctx context.Context, store repository.Store, userID string) (*model.Family, error) {
	profile, err := store.Profiles().Get(ctx, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service: loading profile of %s: %w", userID, err)
	}
	if profile == nil || !profile.HasFamily {
		return nil, apperror.NotFoundMessage("you are not in a family yet")
	}

	family, err := store.Families().Get(ctx, *profile.FamilyID)
	if err != nil {
		return nil, fmt.Errorf("service: loading family: %w", err)
	}
	if !family.HasMember(userID) {
		return nil, apperror.Forbidden("you are not a member of this family")
	}
	return family, nil
}
