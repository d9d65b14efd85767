package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/repository"
)

// fakeStore is an in-memory repository.Store. Transactions work on a copy of
// the state that replaces the original only when fn succeeds, which is
// enough to observe atomicity from the outside.
//
// failOn makes the named operation ("families.create", "profiles.upsert",
// ...) return the given error, to simulate a backend failure mid-commit.
type fakeStore struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	state  *fakeState
	failOn map[string]error
	// reserved codes are invisible to Exists but collide on Create, like a
	// concurrent writer winning the race between lookup and commit.
	reserved map[string]bool
	writes   int
	nextID   int
}

type fakeState struct {
	users    map[string]model.User
	profiles map[string]model.Profile
	families map[string]model.Family
	chores   map[string]model.Chore
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		state: &fakeState{
			users:    map[string]model.User{},
			profiles: map[string]model.Profile{},
			families: map[string]model.Family{},
			chores:   map[string]model.Chore{},
		},
		failOn:   map[string]error{},
		reserved: map[string]bool{},
	}
}

func (st *fakeState) clone() *fakeState {
	c := &fakeState{
		users:    maps.Clone(st.users),
		profiles: maps.Clone(st.profiles),
		families: make(map[string]model.Family, len(st.families)),
		chores:   maps.Clone(st.chores),
	}
	for k, f := range st.families {
		f.Members = slices.Clone(f.Members)
		c.families[k] = f
	}
	return c
}

// view binds repositories to one state (live, or a transaction's copy).
type view struct {
	s     *fakeStore
	state *fakeState
}

func (s *fakeStore) live() view { return view{s: s, state: s.state} }

func (s *fakeStore) Users() repository.UserRepository       { return fakeUsers{s.live()} }
func (s *fakeStore) Profiles() repository.ProfileRepository { return fakeProfiles{s.live()} }
func (s *fakeStore) Families() repository.FamilyRepository  { return fakeFamilies{s.live()} }
func (s *fakeStore) Chores() repository.ChoreRepository     { return fakeChores{s.live()} }

func (s *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	work := s.state.clone()
	writes := s.writes
	s.mu.Unlock()

	if err := fn(ctx, view{s: s, state: work}); err != nil {
		s.mu.Lock()
		s.writes = writes
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (v view) Users() repository.UserRepository       { return fakeUsers{v} }
func (v view) Profiles() repository.ProfileRepository { return fakeProfiles{v} }
func (v view) Families() repository.FamilyRepository  { return fakeFamilies{v} }
func (v view) Chores() repository.ChoreRepository     { return fakeChores{v} }

// do runs f under the store lock after checking for an injected failure.
func (v view) do(op string, write bool, f func() error) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	if err := v.s.failOn[op]; err != nil {
		return err
	}
	if write {
		v.s.writes++
	}
	return f()
}

func (v view) id(prefix string) string {
	v.s.nextID++
	return fmt.Sprintf("%s-%d", prefix, v.s.nextID)
}

func (s *fakeStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// snapshot returns the live state for assertions.
func (s *fakeStore) snapshot() *fakeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

type fakeUsers struct{ view }

func (r fakeUsers) Create(_ context.Context, u *model.User) error {
	return r.do("users.create", true, func() error {
		for _, existing := range r.state.users {
			if existing.Email == u.Email {
				return apperror.Conflict("an account with this email already exists")
			}
			if u.GitHubID != nil && existing.GitHubID != nil && *existing.GitHubID == *u.GitHubID {
				return apperror.Conflict("github account already linked")
			}
		}
		u.ID = r.id("user")
		u.CreatedAt = time.Now()
		u.UpdatedAt = u.CreatedAt
		r.state.users[u.ID] = *u
		return nil
	})
}

func (r fakeUsers) find(match func(model.User) bool, notFound error) (*model.User, error) {
	var out *model.User
	err := r.do("users.get", false, func() error {
		for _, u := range r.state.users {
			if match(u) {
				out = &u
				return nil
			}
		}
		return notFound
	})
	return out, err
}

func (r fakeUsers) GetByID(_ context.Context, id string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.ID == id }, apperror.NotFound("user", id))
}

func (r fakeUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.Email == email }, apperror.NotFoundMessage("no account"))
}

func (r fakeUsers) GetByGitHubID(_ context.Context, id int64) (*model.User, error) {
	return r.find(func(u model.User) bool { return u.GitHubID != nil && *u.GitHubID == id },
		apperror.NotFound("user", "github"))
}

func (r fakeUsers) UpdateDisplayName(_ context.Context, id, name string) error {
	return r.do("users.update", true, func() error {
		u, ok := r.state.users[id]
		if !ok {
			return apperror.NotFound("user", id)
		}
		u.DisplayName = name
		r.state.users[id] = u
		return nil
	})
}

type fakeProfiles struct{ view }

func (r fakeProfiles) Get(_ context.Context, userID string) (*model.Profile, error) {
	var out *model.Profile
	err := r.do("profiles.get", false, func() error {
		p, ok := r.state.profiles[userID]
		if !ok {
			return apperror.NotFound("profile", userID)
		}
		out = &p
		return nil
	})
	return out, err
}

func (r fakeProfiles) Upsert(_ context.Context, p *model.Profile) error {
	return r.do("profiles.upsert", true, func() error {
		if !p.Valid() {
			return apperror.ValidationFailed("familyId", "inconsistent profile")
		}
		r.state.profiles[p.UserID] = *p
		return nil
	})
}

type fakeFamilies struct{ view }

func (r fakeFamilies) Get(_ context.Context, code string) (*model.Family, error) {
	var out *model.Family
	err := r.do("families.get", false, func() error {
		f, ok := r.state.families[code]
		if !ok {
			return apperror.NotFoundMessage("no family found with code " + code)
		}
		f.Members = slices.Clone(f.Members)
		out = &f
		return nil
	})
	return out, err
}

func (r fakeFamilies) Exists(_ context.Context, code string) (bool, error) {
	var ok bool
	err := r.do("families.exists", false, func() error {
		_, ok = r.state.families[code]
		return nil
	})
	return ok, err
}

func (r fakeFamilies) Create(_ context.Context, f *model.Family) error {
	return r.do("families.create", true, func() error {
		if _, taken := r.state.families[f.Code]; taken || r.s.reserved[f.Code] {
			return apperror.Conflict("family code taken")
		}
		for _, m := range f.Members {
			if r.listed(m.UserID) {
				return apperror.Conflict("already in a family")
			}
		}
		f.CreatedAt = time.Now()
		stored := *f
		stored.Members = slices.Clone(f.Members)
		r.state.families[f.Code] = stored
		return nil
	})
}

func (r fakeFamilies) AddMember(_ context.Context, code string, m model.Member) error {
	return r.do("families.addMember", true, func() error {
		f, ok := r.state.families[code]
		if !ok {
			return apperror.NotFoundMessage("no family")
		}
		if r.listed(m.UserID) {
			return apperror.Conflict("already in a family")
		}
		f.Members = append(slices.Clone(f.Members), m)
		r.state.families[code] = f
		return nil
	})
}

// listed mirrors the UNIQUE (user_id) constraint on family_members.
func (r fakeFamilies) listed(userID string) bool {
	for _, f := range r.state.families {
		if f.HasMember(userID) {
			return true
		}
	}
	return false
}

func (r fakeFamilies) RemoveMember(_ context.Context, code, userID string) error {
	return r.do("families.removeMember", true, func() error {
		f, ok := r.state.families[code]
		if !ok || !f.HasMember(userID) {
			return apperror.NotFound("member", userID)
		}
		f.Members = slices.DeleteFunc(slices.Clone(f.Members), func(m model.Member) bool { return m.UserID == userID })
		r.state.families[code] = f
		return nil
	})
}

func (r fakeFamilies) Delete(_ context.Context, code string) error {
	return r.do("families.delete", true, func() error {
		if _, ok := r.state.families[code]; !ok {
			return apperror.NotFoundMessage("no family")
		}
		delete(r.state.families, code)
		for id, c := range r.state.chores {
			if c.FamilyCode == code {
				delete(r.state.chores, id)
			}
		}
		return nil
	})
}

type fakeChores struct{ view }

func (r fakeChores) List(_ context.Context, code string) ([]model.Chore, error) {
	var out []model.Chore
	err := r.do("chores.list", false, func() error {
		for _, c := range r.state.chores {
			if c.FamilyCode == code {
				out = append(out, c)
			}
		}
		return nil
	})
	return out, err
}

func (r fakeChores) Get(_ context.Context, code, id string) (*model.Chore, error) {
	var out *model.Chore
	err := r.do("chores.get", false, func() error {
		c, ok := r.state.chores[id]
		if !ok || c.FamilyCode != code {
			return apperror.NotFound("chore", id)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r fakeChores) Create(_ context.Context, c *model.Chore) error {
	return r.do("chores.create", true, func() error {
		c.ID = r.id("chore")
		r.state.chores[c.ID] = *c
		return nil
	})
}

func (r fakeChores) SetCompletion(_ context.Context, c *model.Chore) error {
	return r.do("chores.update", true, func() error {
		stored, ok := r.state.chores[c.ID]
		if !ok || stored.FamilyCode != c.FamilyCode {
			return apperror.NotFound("chore", c.ID)
		}
		if stored.IsCompleted == c.IsCompleted {
			return apperror.Conflict("chore changed")
		}
		if !c.Valid() {
			return errors.New("check constraint failed: chore completion")
		}
		stored.IsCompleted, stored.CompletedAt, stored.CompletedBy = c.IsCompleted, c.CompletedAt, c.CompletedBy
		r.state.chores[c.ID] = stored
		return nil
	})
}

func (r fakeChores) Delete(_ context.Context, code, id string) error {
	return r.do("chores.delete", true, func() error {
		c, ok := r.state.chores[id]
		if !ok || c.FamilyCode != code {
			return apperror.NotFound("chore", id)
		}
		delete(r.state.chores, id)
		return nil
	})
}
