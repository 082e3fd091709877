package remote

import "sync"

// AuthEvent names a change of the client's remote session.
type AuthEvent string

// Auth events, matching the names the hosted service's SDKs use.
const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthChange is delivered to subscribers. Session is nil after sign-out.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

// Subscription delivers AuthChanges to one callback, in order, on its own
// goroutine. It must be released with Unsubscribe.
type Subscription struct {
	mu    sync.Mutex
	queue []AuthChange

	wake   chan struct{}
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	detach func()
}

// OnAuthStateChange registers fn for every later change of the session.
func (c *Client) OnAuthStateChange(fn func(AuthChange)) *Subscription {
	sub := &Subscription{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = sub
	c.mu.Unlock()

	sub.detach = func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}

	go sub.run(fn)
	return sub
}

// Unsubscribe stops delivery and waits for an in-flight callback to return.
// It is safe to call more than once but must not be called from the
// callback itself.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.detach()
		close(s.stop)
	})
	<-s.done
}

func (s *Subscription) push(change AuthChange) {
	s.mu.Lock()
	s.queue = append(s.queue, change)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(fn func(AuthChange)) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			next := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			default:
			}
			fn(next)
		}
	}
}

// emit queues change for every subscriber. Callers must not hold c.mu.
func (c *Client) emit(event AuthEvent, s *Session) {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.push(AuthChange{Event: event, Session: s.clone()})
	}
}
