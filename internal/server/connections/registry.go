// Package connections tracks the live push channels of every connected user.
package connections

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/leroytan/the-website-sub000/internal/logging"
)

// Conn is one push channel, typically a websocket.
type Conn interface {
	// Accept completes the handshake before the connection is registered.
	Accept() error
	WriteText(payload []byte) error
	Close() error
}

// SendError reports a failed write to a single connection. The connection
// has already been evicted when it is returned.
type SendError struct {
	UserID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to user %s: %v", e.UserID, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Observer is told about connection count changes and failed pushes.
type Observer interface {
	ConnectionsChanged(total int)
	PushFailed()
}

type nopObserver struct{}

func (nopObserver) ConnectionsChanged(int) {}
func (nopObserver) PushFailed()            {}

// Registry maps user ids to their open connections. Every map access,
// including the writes performed by the send operations, happens under one
// mutex, so concurrent connects and disconnects never lose updates.
type Registry struct {
	mu    sync.Mutex
	conns map[string]map[Conn]struct{}
	total int

	log logging.Logger
	obs Observer
}

func NewRegistry(log logging.Logger, obs Observer) *Registry {
	if log == nil {
		log = logging.Nop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Registry{
		conns: make(map[string]map[Conn]struct{}),
		log:   log.With("module", "connections"),
		obs:   obs,
	}
}

// Connect accepts conn and registers it under userID. A user may hold any
// number of connections at once.
func (r *Registry) Connect(conn Conn, userID string) error {
	if err := conn.Accept(); err != nil {
		return fmt.Errorf("accept connection: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[Conn]struct{})
		r.conns[userID] = set
	}
	if _, dup := set[conn]; !dup {
		set[conn] = struct{}{}
		r.total++
		r.obs.ConnectionsChanged(r.total)
	}
	return nil
}

// Disconnect removes conn. The user's key disappears with its last connection.
func (r *Registry) Disconnect(conn Conn, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(conn, userID)
}

func (r *Registry) removeLocked(conn Conn, userID string) bool {
	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[conn]; !ok {
		return false
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(r.conns, userID)
	}
	r.total--
	r.obs.ConnectionsChanged(r.total)
	return true
}

// SendPersonalNotification writes payload to every connection of userID and
// returns how many writes succeeded. An unknown user is not an error. A
// failed write evicts and closes only that connection; the failures are
// returned joined as *SendError values.
func (r *Registry) SendPersonalNotification(userID string, payload []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendLocked(userID, payload)
}

func (r *Registry) sendLocked(userID string, payload []byte) (int, error) {
	set, ok := r.conns[userID]
	if !ok {
		return 0, nil
	}

	targets := make([]Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}

	var (
		delivered int
		errs      []error
	)
	for _, c := range targets {
		if err := c.WriteText(payload); err != nil {
			r.removeLocked(c, userID)
			_ = c.Close()
			r.obs.PushFailed()
			r.log.Warn(context.Background(), "evicted connection after failed write", "user_id", userID, "error", err)
			errs = append(errs, &SendError{UserID: userID, Err: err})
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

// BroadcastNotification writes payload to every registered connection with
// the same per-connection failure isolation as SendPersonalNotification.
func (r *Registry) BroadcastNotification(payload []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	users := make([]string, 0, len(r.conns))
	for u := range r.conns {
		users = append(users, u)
	}

	var (
		delivered int
		errs      []error
	)
	for _, u := range users {
		n, err := r.sendLocked(u, payload)
		delivered += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return delivered, errors.Join(errs...)
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns[userID]) > 0
}

// ConnectionCount returns the number of live connections across all users.
func (r *Registry) ConnectionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// CloseAll closes and forgets every connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for u, set := range r.conns {
		for c := range set {
			_ = c.Close()
		}
		delete(r.conns, u)
	}
	r.total = 0
	r.obs.ConnectionsChanged(0)
}
