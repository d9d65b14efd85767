// Package session decides where a client should be on the onboarding flow.
//
// A client is on one top-level screen (a segment). Given what is known about
// its identity and its profile, Decide says whether it must be sent
// elsewhere. Router keeps that state for one client and applies redirects as
// replace-navigation, and Session feeds a Router from the change hub for as
// long as a client stays connected.
package session

// Segments the client can be on. Root is the app entry point ("/").
const (
	Root         = ""
	Login        = "login"
	Signup       = "signup"
	FamilyChoice = "family-choice"
	Tabs         = "(tabs)"
)

// Status is how much is known about a piece of state.
type Status uint8

const (
	Unresolved Status = iota // still loading
	Absent
	Present
)

func (s Status) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	default:
		return "loading"
	}
}

// Input is everything a routing decision depends on. HasFamily is only
// meaningful when Profile is Present.
type Input struct {
	Identity  Status
	Profile   Status
	HasFamily bool
	Segment   string
}

// Loading reports whether decisions are suppressed for now.
func (in Input) Loading() bool {
	return in.Identity == Unresolved || (in.Identity == Present && in.Profile == Unresolved)
}

// Decision is either "stay" or a single redirect.
type Decision struct {
	Redirect bool   `json:"redirect"`
	Target   string `json:"target"`
	From     string `json:"from"`
}

// Path renders the target as a route path.
func (d Decision) Path() string {
	return "/" + d.Target
}

func (d Decision) String() string {
	if !d.Redirect {
		return "stay"
	}
	return "replace " + d.Path()
}

// IsAuthPage reports whether segment is one of the sign-in screens.
func IsAuthPage(segment string) bool {
	return segment == Login || segment == Signup
}

// Decide evaluates the routing table. Rows are checked top to bottom and
// the first match wins; every row is guarded by "not already there", so
// deciding again at the target is a no-op.
func Decide(in Input) Decision {
	if in.Loading() {
		return Decision{From: in.Segment}
	}

	onAuth := IsAuthPage(in.Segment)
	signedIn := in.Identity == Present
	to := func(target string) Decision {
		return Decision{Redirect: true, Target: target, From: in.Segment}
	}

	switch {
	case !signedIn && !onAuth:
		return to(Login)
	case signedIn && onAuth:
		return to(Root)
	case signedIn && in.Profile == Present && in.HasFamily && in.Segment != Tabs:
		return to(Tabs)
	case signedIn && in.Profile == Present && !in.HasFamily && in.Segment != FamilyChoice:
		return to(FamilyChoice)
	case signedIn && in.Profile == Absent && in.Segment != FamilyChoice:
		// onAuth is already false here.
		return to(FamilyChoice)
	}
	return Decision{From: in.Segment}
}

// maxHops bounds Settle. The table reaches a fixed point in at most two
// redirects (an auth page to root, then root to the right screen).
const maxHops = 4

// Router holds the routing state of one client. It is not safe for
// concurrent use; Session drives it from a single goroutine.
type Router struct {
	in Input
}

// NewRouter starts with everything unresolved on the given segment.
func NewRouter(segment string) *Router {
	return &Router{in: Input{Segment: segment}}
}

// Input returns the current state.
func (r *Router) Input() Input { return r.in }

// SetIdentity records a new identity state. A fresh sign-in forgets the
// previous profile until it has been loaded; signing out makes it absent.
func (r *Router) SetIdentity(s Status) {
	if s == r.in.Identity {
		return
	}
	r.in.Identity = s
	switch s {
	case Present, Unresolved:
		r.in.Profile, r.in.HasFamily = Unresolved, false
	case Absent:
		r.in.Profile, r.in.HasFamily = Absent, false
	}
}

// SetProfile records the latest profile snapshot.
func (r *Router) SetProfile(s Status, hasFamily bool) {
	r.in.Profile = s
	r.in.HasFamily = s == Present && hasFamily
}

// Navigate records that the client moved to segment on its own.
func (r *Router) Navigate(segment string) {
	r.in.Segment = segment
}

// Next decides once and applies the redirect, if any. Replace-navigation
// leaves no back-stack entry, so the new segment simply replaces the old.
func (r *Router) Next() Decision {
	d := Decide(r.in)
	if d.Redirect {
		r.in.Segment = d.Target
	}
	return d
}

// Settle applies redirects until the table has nothing left to do and
// returns them in order.
func (r *Router) Settle() []Decision {
	var hops []Decision
	for range maxHops {
		d := r.Next()
		if !d.Redirect {
			break
		}
		hops = append(hops, d)
	}
	return hops
}
