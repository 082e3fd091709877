// Package websession keeps one auth controller per browser session for the
// backend-for-frontend server.
package websession

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pstu-cpl/cpl/internal/auth"
	"github.com/pstu-cpl/cpl/internal/remote"
	"github.com/pstu-cpl/cpl/internal/session"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("session manager closed")

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "cpl_web_sessions_active",
	Help: "Number of browser sessions with a live auth controller",
})

// Options configures a Manager.
type Options struct {
	Remote       remote.Config
	Store        session.Store
	AvatarBucket string
	AvatarPublic bool
	IdleTTL      time.Duration
	// Retention bounds how long stored values of a browser session are
	// kept without being written. Zero keeps them forever.
	Retention time.Duration
	Clock     func() time.Time
}

// Session is the per-browser state held by the Manager.
type Session struct {
	ID         string
	Controller *auth.Controller
	Client     *remote.Client

	refs     int
	lastSeen time.Time
}

// Manager maps browser session ids to started auth controllers. Durable
// state lives in the shared Store under a per-session prefix, so an
// evicted session is rebuilt from it on the next request.
type Manager struct {
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager.
func NewManager(opts Options) *Manager {
	if opts.Store == nil {
		opts.Store = session.NewMemoryStore()
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{
		opts:     opts,
		now:      now,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the session for sid, starting its controller on first
// use. Every Acquire must be paired with Release.
func (m *Manager) Acquire(ctx context.Context, sid string) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[sid]; ok {
		s.refs++
		s.lastSeen = m.now()
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	created, err := m.build(ctx, sid)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		created.Controller.Close()
		return nil, ErrClosed
	}
	if s, ok := m.sessions[sid]; ok {
		// Lost a race with a concurrent request for the same browser.
		created.Controller.Close()
		s.refs++
		s.lastSeen = m.now()
		return s, nil
	}
	created.refs = 1
	created.lastSeen = m.now()
	m.sessions[sid] = created
	activeSessions.Set(float64(len(m.sessions)))
	return created, nil
}

func (m *Manager) build(ctx context.Context, sid string) (*Session, error) {
	store := session.Prefixed(m.opts.Store, "web:"+sid)

	client, err := remote.NewClient(m.opts.Remote, store)
	if err != nil {
		return nil, fmt.Errorf("creating remote client: %w", err)
	}

	ctrl := auth.NewController(
		client,
		auth.NewRemoteProfiles(client),
		auth.NewAvatarUploader(client, client, m.opts.AvatarBucket, m.opts.AvatarPublic),
		auth.NewSnapshotStore(store),
	)
	if _, err := ctrl.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting auth controller: %w", err)
	}

	return &Session{ID: sid, Controller: ctrl, Client: client}, nil
}

// Release marks the end of one use of s.
func (m *Manager) Release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.refs > 0 {
		s.refs--
	}
	s.lastSeen = m.now()
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions that have been idle for longer than the idle TTL
// and returns how many were evicted.
func (m *Manager) Sweep() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var idle []*Session
	for sid, s := range m.sessions {
		if s.refs == 0 && s.lastSeen.Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, sid)
		}
	}
	activeSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()

	for _, s := range idle {
		s.Controller.Close()
	}
	return len(idle)
}

// Prune drops stored values of browser sessions not written within the
// retention period. Stores without a Pruner rely on their own expiry.
func (m *Manager) Prune(ctx context.Context) (int64, error) {
	p, ok := m.opts.Store.(session.Pruner)
	if !ok || m.opts.Retention <= 0 {
		return 0, nil
	}
	return p.Prune(ctx, m.now().Add(-m.opts.Retention))
}

// Close stops every controller. Acquire fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	activeSessions.Set(0)
	m.mu.Unlock()

	for _, s := range all {
		s.Controller.Close()
	}
	slog.Info("websession: manager closed", "sessions", len(all))
}
