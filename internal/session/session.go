package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/watch"
)

// ProfileLoader reads a profile document; apperror.ErrNotFound means absent.
type ProfileLoader interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
}

// Session routes one connected client. It is created when the client
// connects with a valid token and lives until Run returns.
type Session struct {
	hub      *watch.Hub
	profiles ProfileLoader
	userID   string
	tokenID  string
	router   *Router
	nav      chan string
	done     chan struct{}
	logger   *slog.Logger
}

// ErrClosed is returned by Navigate once Run has returned.
var ErrClosed = errors.New("session: closed")

// New prepares a session for the signed-in user. tokenID identifies the
// token the client connected with, so that signing out another device
// leaves this session alone.
func New(hub *watch.Hub, profiles ProfileLoader, userID, tokenID, segment string, logger *slog.Logger) *Session {
	return &Session{
		hub:      hub,
		profiles: profiles,
		userID:   userID,
		tokenID:  tokenID,
		router:   NewRouter(segment),
		nav:      make(chan string),
		done:     make(chan struct{}),
		logger:   logger.With(slog.String("userID", userID)),
	}
}

// Navigate reports a client-side move to segment. It blocks until Run picks
// it up, Run returns (ErrClosed) or ctx ends.
func (s *Session) Navigate(ctx context.Context, segment string) error {
	select {
	case s.nav <- segment:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run re-evaluates the route after every identity, profile or segment
// change and calls emit for each redirect. It returns nil when ctx ends or
// the hub shuts down, and emit's error if emit fails.
//
// The profile subscription only exists while the identity is present; it
// is released as soon as the user signs out, and every subscription is
// released when Run returns.
func (s *Session) Run(ctx context.Context, emit func(Decision) error) error {
	defer close(s.done)

	identity := s.hub.Subscribe(watch.IdentityTopic(s.userID))
	defer identity.Close()

	// Subscribe before the initial read so no revision falls in between.
	profile := s.hub.Subscribe(watch.ProfileTopic(s.userID))
	defer func() {
		if profile != nil {
			profile.Close()
		}
	}()

	s.router.SetIdentity(Present)
	s.router.SetProfile(s.load(ctx))
	if err := s.settle(emit); err != nil {
		return err
	}

	for {
		// A nil channel blocks forever, which disables the case once the
		// profile subscription is gone.
		var profileC <-chan watch.Event
		if profile != nil {
			profileC = profile.C()
		}

		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-identity.C():
			if !ok {
				return nil
			}
			if out, isSignOut := ev.Value.(watch.SignedOut); isSignOut {
				if out.TokenID != "" && out.TokenID != s.tokenID {
					continue
				}
				if profile != nil {
					profile.Close()
					profile = nil
				}
				s.router.SetIdentity(Absent)
				s.logger.DebugContext(ctx, "session signed out")
			}

		case ev, ok := <-profileC:
			if !ok {
				return nil
			}
			s.router.SetProfile(s.fromEvent(ctx, ev))

		case segment := <-s.nav:
			s.router.Navigate(segment)
		}

		if err := s.settle(emit); err != nil {
			return err
		}
	}
}

func (s *Session) settle(emit func(Decision) error) error {
	for _, d := range s.router.Settle() {
		if err := emit(d); err != nil {
			return err
		}
	}
	return nil
}

// load reads the current profile. Read errors count as "no profile" so
// the client is never stuck loading.
func (s *Session) load(ctx context.Context) (Status, bool) {
	p, err := s.profiles.Get(ctx, s.userID)
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return Absent, false
	case err != nil:
		s.logger.WarnContext(ctx, "loading profile; treating as absent", slog.String("error", err.Error()))
		return Absent, false
	}
	return Present, p.HasFamily
}

func (s *Session) fromEvent(ctx context.Context, ev watch.Event) (Status, bool) {
	if ev.Err != nil {
		s.logger.WarnContext(ctx, "profile stream error; treating as absent", slog.String("error", ev.Err.Error()))
		return Absent, false
	}
	p, ok := ev.Value.(*model.Profile)
	if !ok || p == nil {
		return Absent, false
	}
	return Present, p.HasFamily
}

// Resolve makes a one-off decision for a signed-in user on segment, without
// subscribing to anything.
func Resolve(ctx context.Context, profiles ProfileLoader, userID, segment string, logger *slog.Logger) Decision {
	s := &Session{profiles: profiles, userID: userID, logger: logger}
	status, hasFamily := s.load(ctx)
	return Decide(Input{Identity: Present, Profile: status, HasFamily: hasFamily, Segment: segment})
}
