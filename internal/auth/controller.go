package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/pstu-cpl/cpl/internal/remote"
)

// ErrAlreadyStarted is returned by Start when the controller is already
// listening for remote auth changes.
var ErrAlreadyStarted = errors.New("auth controller already started")

// Identity is the remote identity service used by the Controller.
type Identity interface {
	SessionSource
	SignInWithPassword(ctx context.Context, email, password string) (*remote.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*remote.SignUpResult, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn func(remote.AuthChange)) *remote.Subscription
	UpdatePassword(ctx context.Context, password string) error
	ResetPasswordForEmail(ctx context.Context, email string) error
}

// Controller owns the authentication state of one client session. It is
// the only writer of the current User and its durable snapshot.
type Controller struct {
	identity Identity
	profiles ProfileRepository
	avatars  *AvatarUploader
	store    *SnapshotStore

	mu       sync.RWMutex
	state    State
	user     *User
	version  uint64
	inflight int
	pending  *remote.AuthChange
	listener *Listener
}

// NewController creates a Controller in the Unresolved state. avatars may
// be nil, in which case inline avatars cannot be stored.
func NewController(identity Identity, profiles ProfileRepository, avatars *AvatarUploader, store *SnapshotStore) *Controller {
	return &Controller{
		identity: identity,
		profiles: profiles,
		avatars:  avatars,
		store:    store,
		state:    StateUnresolved,
	}
}

// Listener is the controller's subscription to remote auth changes.
type Listener struct {
	ctx    context.Context
	cancel context.CancelFunc
	sub    *remote.Subscription
	once   sync.Once
}

// Close stops delivery of remote auth changes. It is idempotent.
func (l *Listener) Close() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.cancel()
		if l.sub != nil {
			l.sub.Unsubscribe()
		}
	})
}

// Start surfaces the stored snapshot, subscribes to remote auth changes and
// resolves the state against the remote session. The returned Listener must
// be closed when the controller is no longer used.
//
// Start does not fail when the remote service is unreachable: a stored
// snapshot is kept as Authenticated and the problem is logged.
func (c *Controller) Start(ctx context.Context) (*Listener, error) {
	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &Listener{ctx: lctx, cancel: cancel}

	c.mu.Lock()
	if c.listener != nil {
		c.mu.Unlock()
		cancel()
		return nil, ErrAlreadyStarted
	}
	c.listener = l
	c.mu.Unlock()

	c.begin()
	defer c.end()

	if c.store != nil {
		stored, err := c.store.Load(ctx)
		if err != nil {
			slog.Warn("auth: reading snapshot", "error", err)
		}
		if stored != nil {
			c.mu.Lock()
			if c.state == StateUnresolved {
				c.user = stored
			}
			c.mu.Unlock()
		}
	}

	l.sub = c.identity.OnAuthStateChange(func(change remote.AuthChange) {
		c.handleChange(lctx, change)
	})

	c.resolve(ctx)
	return l, nil
}

// resolve derives the state from the remote session.
func (c *Controller) resolve(ctx context.Context) {
	s, err := c.identity.GetSession(ctx)
	if err != nil {
		c.keepOptimistic(ctx, err)
		return
	}
	if s == nil {
		c.apply(ctx, StateUnauthenticated, nil)
		return
	}

	row, err := c.profiles.GetProfile(ctx, s.User.ID)
	if err != nil {
		c.keepOptimistic(ctx, err)
		return
	}
	if row == nil {
		slog.Warn("auth: session has no profile", "accountId", s.User.ID)
		c.apply(ctx, StateUnauthenticated, nil)
		return
	}

	u := MapProfile(*row)
	c.apply(ctx, StateAuthenticated, &u)
}

// keepOptimistic settles the state when the remote service could not be
// reached: a surfaced snapshot stays, otherwise the user is signed out
// locally.
func (c *Controller) keepOptimistic(ctx context.Context, cause error) {
	c.mu.RLock()
	stored := c.user.clone()
	c.mu.RUnlock()

	if stored != nil {
		slog.Warn("auth: remote session check failed; keeping stored user", "email", stored.Email, "error", cause)
		c.apply(ctx, StateAuthenticated, stored)
		return
	}
	slog.Warn("auth: remote session check failed", "error", cause)
	c.apply(ctx, StateUnauthenticated, nil)
}

// handleChange re-derives the state after an asynchronous remote auth
// change. The current remote session is consulted rather than the one in
// the notification, which may have been superseded while it was queued.
// A change that arrives while an operation is in flight is held and
// re-derived once the last operation ends.
func (c *Controller) handleChange(ctx context.Context, change remote.AuthChange) {
	for {
		c.mu.Lock()
		if c.inflight > 0 {
			c.pending = &change
			c.mu.Unlock()
			slog.Debug("auth: deferring remote auth change until operation ends", "event", change.Event)
			return
		}
		v := c.version
		c.mu.Unlock()

		state, u, ok := c.derive(ctx, change)
		if !ok {
			return
		}
		if c.applyIf(ctx, v, state, u, change) {
			return
		}
		slog.Debug("auth: state changed while handling auth change; re-deriving", "event", change.Event)
	}
}

// derive reads the remote session and its profile. ok is false when either
// could not be read, in which case the state is left as it is.
func (c *Controller) derive(ctx context.Context, change remote.AuthChange) (State, *User, bool) {
	s, err := c.identity.GetSession(ctx)
	if err != nil {
		slog.Warn("auth: reading session after auth change", "event", change.Event, "error", err)
		return StateUnresolved, nil, false
	}
	if s == nil {
		return StateUnauthenticated, nil, true
	}

	row, err := c.profiles.GetProfile(ctx, s.User.ID)
	if err != nil {
		slog.Warn("auth: fetching profile after auth change", "event", change.Event, "error", err)
		return StateUnresolved, nil, false
	}
	if row == nil {
		return StateUnauthenticated, nil, true
	}
	u := MapProfile(*row)
	return StateAuthenticated, &u, true
}

// Login authenticates with email and password. On failure the previous
// state is left as it was, except that an account whose profile is missing
// or cannot be read after sign-in is signed out again.
func (c *Controller) Login(ctx context.Context, email, password string) (*User, error) {
	c.begin()
	defer c.end()

	email = strings.TrimSpace(email)
	s, err := c.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, classify(ErrAuthenticationFailed, err)
	}

	row, err := c.profiles.GetProfile(ctx, s.User.ID)
	if err != nil || row == nil {
		if serr := c.identity.SignOut(ctx); serr != nil {
			slog.Warn("auth: signing out account without readable profile", "accountId", s.User.ID, "error", serr)
		}
		c.apply(ctx, StateUnauthenticated, nil)
		if err != nil {
			return nil, profileFailure(ErrAuthenticationFailed, err)
		}
		return nil, ErrProfileNotFound
	}

	u := MapProfile(*row)
	c.apply(ctx, StateAuthenticated, &u)
	return u.clone(), nil
}

// Register creates an account and its profile and signs it in.
func (c *Controller) Register(ctx context.Context, in RegisterInput) (*User, error) {
	c.begin()
	defer c.end()

	in.Email = strings.TrimSpace(in.Email)
	role := RoleForEmail(in.Email)

	res, err := c.identity.SignUp(ctx, in.Email, in.Password, map[string]any{
		"name": in.Name,
		"role": string(role),
	})
	if err != nil {
		return nil, classify(ErrAuthenticationFailed, err)
	}

	// Storage policy is keyed to the signed-in identity, so a session must
	// exist before the avatar is written.
	s := res.Session
	if s == nil {
		s, err = c.identity.SignInWithPassword(ctx, in.Email, in.Password)
		if err != nil {
			return nil, classify(ErrAuthenticationFailed, err)
		}
	}
	accountID := s.User.ID
	if accountID == "" {
		accountID = res.User.ID
	}

	var avatarURL *string
	switch {
	case IsImageData(in.Avatar):
		url := c.uploadAvatar(ctx, accountID, in.Avatar)
		if url == "" {
			slog.Warn("auth: registering without avatar", "accountId", accountID)
		}
		avatarURL = optional(url)
	case in.Avatar != "":
		avatarURL = optional(in.Avatar)
	}

	roleName := string(role)
	row := ProfileRow{
		ID:            accountID,
		Name:          optional(strings.TrimSpace(in.Name)),
		Email:         optional(in.Email),
		Role:          &roleName,
		AvatarURL:     avatarURL,
		Session:       optional(in.Session),
		PlayerType:    optional(in.PlayerType),
		Semester:      optional(in.Semester),
		PaymentMethod: optional(in.PaymentMethod),
		PaymentNumber: optional(in.PaymentNumber),
		TransactionID: optional(in.TransactionID),
	}

	stored, err := c.profiles.UpsertProfile(ctx, row)
	if err != nil {
		return nil, classify(ErrProfileCreationFailed, err)
	}
	if stored == nil {
		return nil, ErrProfileCreationFailed
	}

	u := MapProfile(*stored)
	c.apply(ctx, StateAuthenticated, &u)
	return u.clone(), nil
}

func (c *Controller) uploadAvatar(ctx context.Context, accountID, payload string) string {
	if c.avatars == nil {
		slog.Warn("auth: avatar storage is not configured")
		return ""
	}
	url, err := c.avatars.Upload(ctx, accountID, payload)
	if err != nil {
		slog.Warn("auth: avatar rejected", "accountId", accountID, "error", err)
		return ""
	}
	return url
}

// Logout signs out and moves to Unauthenticated. It never fails: remote
// errors are logged, and signing out without a session is a no-op.
func (c *Controller) Logout(ctx context.Context) error {
	c.begin()
	defer c.end()

	if err := c.identity.SignOut(ctx); err != nil {
		slog.Warn("auth: remote sign-out failed", "error", err)
	}
	c.apply(ctx, StateUnauthenticated, nil)
	return nil
}

// UpdateUser applies patch to the current user's profile and returns the
// profile as stored remotely afterwards.
func (c *Controller) UpdateUser(ctx context.Context, patch Patch) (*User, error) {
	c.begin()
	defer c.end()

	current := c.current()
	if current == nil {
		return nil, ErrNotAuthenticated
	}

	fields := profileFields(patch)
	if patch.Avatar != nil {
		switch avatar := strings.TrimSpace(*patch.Avatar); {
		case avatar == "":
			fields["avatar_url"] = nil
		case IsImageData(avatar):
			if c.avatars == nil {
				return nil, ErrAvatarUploadFailed
			}
			url, err := c.avatars.Upload(ctx, current.ID, avatar)
			if err != nil {
				return nil, fail(ErrAvatarUploadFailed, err)
			}
			if url == "" {
				return nil, ErrAvatarUploadFailed
			}
			fields["avatar_url"] = url
		default:
			fields["avatar_url"] = avatar
		}
	}

	if len(fields) > 0 {
		if err := c.profiles.UpdateProfile(ctx, current.ID, fields); err != nil {
			return nil, profileFailure(ErrNotAuthenticated, err)
		}
	}

	row, err := c.profiles.GetProfile(ctx, current.ID)
	if err != nil {
		return nil, profileFailure(ErrNotAuthenticated, err)
	}
	if row == nil {
		return nil, ErrProfileNotFound
	}

	u := MapProfile(*row)
	c.apply(ctx, StateAuthenticated, &u)
	return u.clone(), nil
}

// ChangePassword sets a new password for the current user.
func (c *Controller) ChangePassword(ctx context.Context, password string) error {
	if c.current() == nil {
		return ErrNotAuthenticated
	}
	err := c.identity.UpdatePassword(ctx, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, remote.ErrNoSession):
		return ErrNotAuthenticated
	default:
		return classify(ErrAuthenticationFailed, err)
	}
}

// RequestPasswordReset asks the remote service to mail a recovery link.
// Whether the address has an account is not revealed; only connectivity
// failures are returned.
func (c *Controller) RequestPasswordReset(ctx context.Context, email string) error {
	err := c.identity.ResetPasswordForEmail(ctx, strings.TrimSpace(email))
	if err == nil {
		return nil
	}
	if remote.IsUnavailable(err) {
		return fail(ErrRemoteServiceUnavailable, err)
	}
	slog.Info("auth: password reset request rejected", "error", err)
	return nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{State: c.state, User: c.user.clone()}
}

// User returns the current user, or nil when not Authenticated.
func (c *Controller) User() *User {
	return c.current()
}

// Close releases the subscription created by Start.
func (c *Controller) Close() {
	c.mu.RLock()
	l := c.listener
	c.mu.RUnlock()
	l.Close()
}

func (c *Controller) current() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != StateAuthenticated {
		return nil
	}
	return c.user.clone()
}

func (c *Controller) begin() {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()
}

// end closes an operation. A remote auth change held back while
// operations were in flight is re-derived after the last one ends.
func (c *Controller) end() {
	c.mu.Lock()
	c.inflight--
	change := c.pending
	l := c.listener
	if c.inflight > 0 || change == nil || l == nil {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.mu.Unlock()

	if l.ctx.Err() != nil {
		return
	}
	go c.handleChange(l.ctx, *change)
}

// apply sets the state and persists the snapshot.
func (c *Controller) apply(ctx context.Context, state State, u *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(ctx, state, u)
}

// applyIf is apply guarded against outcomes made stale by a newer state. It
// reports false when the state changed since version was read. An outcome
// that lands during an operation is held for end instead of applied.
func (c *Controller) applyIf(ctx context.Context, version uint64, state State, u *User, change remote.AuthChange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight > 0 {
		c.pending = &change
		return true
	}
	if c.version != version {
		return false
	}
	c.setLocked(ctx, state, u)
	return true
}

func (c *Controller) setLocked(ctx context.Context, state State, u *User) {
	c.version++
	c.state = state
	c.user = u.clone()
	if state != StateAuthenticated {
		c.user = nil
	}

	if c.store == nil {
		return
	}
	if err := c.store.Save(ctx, c.user); err != nil {
		slog.Warn("auth: persisting snapshot", "state", state.String(), "error", err)
	}
}
