package auth

// Action is the outcome of a route guard decision.
type Action int

// Actions.
const (
	// Hold renders nothing until the state is resolved.
	Hold Action = iota
	Allow
	Redirect
)

func (a Action) String() string {
	switch a {
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "hold"
	}
}

// Decision is what a guarded route should do.
type Decision struct {
	Action   Action
	Location string
	// SignedIn distinguishes a wrong-role redirect from a sign-in redirect.
	SignedIn bool
}

// Policy holds the redirect targets of the route guard.
type Policy struct {
	SignInPath string
	Landing    map[Role]string
}

// DefaultPolicy returns the site's navigation policy.
func DefaultPolicy() Policy {
	return Policy{
		SignInPath: "/auth",
		Landing: map[Role]string{
			RoleAdmin:  "/admin",
			RolePlayer: "/dashboard",
		},
	}
}

// LandingFor returns the default page of role, falling back to "/".
func (p Policy) LandingFor(role Role) string {
	if path, ok := p.Landing[role]; ok && path != "" {
		return path
	}
	return "/"
}

// Guard decides whether a route admitting roles may be shown for s. An
// empty roles list admits any authenticated user.
func Guard(s Snapshot, p Policy, roles ...Role) Decision {
	switch s.State {
	case StateUnresolved:
		return Decision{Action: Hold}
	case StateUnauthenticated:
		return Decision{Action: Redirect, Location: p.SignInPath}
	}

	if s.User == nil {
		return Decision{Action: Redirect, Location: p.SignInPath}
	}
	if len(roles) == 0 {
		return Decision{Action: Allow, SignedIn: true}
	}
	for _, r := range roles {
		if s.User.Role == r {
			return Decision{Action: Allow, SignedIn: true}
		}
	}
	return Decision{Action: Redirect, Location: p.LandingFor(s.User.Role), SignedIn: true}
}
