package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/repository"
	"github.com/sakif/chore-tracker/internal/watch"
)

// ChoreService manages the chore list of the caller's family. Every call
// first checks that the caller is a member of that family.
type ChoreService struct {
	store  repository.Store
	hub    *watch.Hub
	now    func() time.Time
	logger *slog.Logger
}

func NewChoreService(store repository.Store, hub *watch.Hub, logger *slog.Logger) *ChoreService {
	return &ChoreService{store: store, hub: hub, now: time.Now, logger: logger}
}

type ChoreInput struct {
	Title string
	// AssignedTo is a member's user id; nil or empty means anyone.
	AssignedTo *string
	// DueDate is YYYY-MM-DD or empty.
	DueDate string
}

// List returns the chores in display order: incomplete first, newest first
// within each group.
func (s *ChoreService) List(ctx context.Context, userID string) ([]model.Chore, error) {
	family, err := memberFamily(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, family.Code)
}

// Family returns the code of the caller's family after the membership
// check. The chore stream uses it to pick its topic.
func (s *ChoreService) Family(ctx context.Context, userID string) (string, error) {
	family, err := memberFamily(ctx, s.store, userID)
	if err != nil {
		return "", err
	}
	return family.Code, nil
}

func (s *ChoreService) Create(ctx context.Context, userID string, in ChoreInput) (*model.Chore, error) {
	title := cleanText(in.Title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "please enter a chore title")
	}

	family, err := memberFamily(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	chore := &model.Chore{
		FamilyCode:     family.Code,
		Title:          title,
		AssignedToName: model.UnassignedName,
		CreatedBy:      userID,
		CreatedAt:      s.now().UTC(),
	}

	if in.AssignedTo != nil && *in.AssignedTo != "" {
		member, ok := family.Member(*in.AssignedTo)
		if !ok {
			return nil, apperror.ValidationFailed("assignedTo", "chores can only be assigned to family members")
		}
		assignee := member.UserID
		chore.AssignedTo = &assignee
		chore.AssignedToName = member.Name
	}

	if in.DueDate != "" {
		if _, err := time.Parse(model.DueDateLayout, in.DueDate); err != nil {
			return nil, apperror.ValidationFailed("dueDate", "due date must be formatted as YYYY-MM-DD")
		}
		due := in.DueDate
		chore.DueDate = &due
	}

	if err := s.store.Chores().Create(ctx, chore); err != nil {
		return nil, fmt.Errorf("service/chore: creating chore: %w", err)
	}

	s.logger.InfoContext(ctx, "chore created",
		slog.String("family", family.Code),
		slog.String("choreID", chore.ID),
	)
	s.publish(ctx, family.Code)
	return chore, nil
}

// toggleAttempts bounds how often Toggle re-reads a chore that another
// member flipped underneath it.
const toggleAttempts = 3

// Toggle flips completion. Completing stamps the time and the caller;
// reopening clears both, so the three fields always agree. The write only
// lands if nobody flipped the chore since it was read; otherwise Toggle
// reads it again, so every toggle applies exactly once.
func (s *ChoreService) Toggle(ctx context.Context, userID, choreID string) (*model.Chore, error) {
	family, err := memberFamily(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		chore, err := s.store.Chores().Get(ctx, family.Code, choreID)
		if err != nil {
			return nil, fmt.Errorf("service/chore: %w", err)
		}

		if chore.IsCompleted {
			chore.MarkIncomplete()
		} else {
			chore.MarkComplete(userID, s.now().UTC())
		}

		err = s.store.Chores().SetCompletion(ctx, chore)
		if errors.Is(err, apperror.ErrConflict) && attempt < toggleAttempts {
			s.logger.DebugContext(ctx, "chore flipped concurrently, retrying",
				slog.String("choreID", choreID), slog.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("service/chore: toggling %s: %w", choreID, err)
		}
		s.publish(ctx, family.Code)
		return chore, nil
	}
}

// Delete is open to any member, not just the creator.
func (s *ChoreService) Delete(ctx context.Context, userID, choreID string) error {
	family, err := memberFamily(ctx, s.store, userID)
	if err != nil {
		return err
	}
	if err := s.store.Chores().Delete(ctx, family.Code, choreID); err != nil {
		return fmt.Errorf("service/chore: %w", err)
	}

	s.logger.InfoContext(ctx, "chore deleted",
		slog.String("family", family.Code),
		slog.String("choreID", choreID),
	)
	s.publish(ctx, family.Code)
	return nil
}

func (s *ChoreService) list(ctx context.Context, code string) ([]model.Chore, error) {
	chores, err := s.store.Chores().List(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("service/chore: listing %s: %w", code, err)
	}
	model.SortChores(chores)
	return chores, nil
}

func (s *ChoreService) publish(ctx context.Context, code string) {
	chores, err := s.list(ctx, code)
	ev := watch.Event{Topic: watch.ChoresTopic(code), Value: chores, Err: err}
	if err != nil {
		ev.Value = nil
		s.logger.WarnContext(ctx, "reloading chores for subscribers",
			slog.String("family", code), slog.String("error", err.Error()))
	}
	s.hub.Publish(ev)
}
