package websocket

import (
	"errors"
	"log/slog"
	"sync"

	"glooo/internal/utils"

	"github.com/google/uuid"
)

var ErrNotConnected = errors.New("user not connected")

// Registry maps each online user to the outbox of their live session.
// A user has at most one session; the latest registration wins.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Outbox

	metrics *utils.MetricsCollector
	logger  *slog.Logger
}

func NewRegistry(metrics *utils.MetricsCollector, logger *slog.Logger) *Registry {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[uuid.UUID]*Outbox),
		metrics:  metrics,
		logger:   logger.With("component", "registry"),
	}
}

// Register installs outbox for userID. A previously registered outbox is
// closed, which ends the session that owned it.
func (r *Registry) Register(userID uuid.UUID, outbox *Outbox) {
	r.mu.Lock()
	previous := r.sessions[userID]
	r.sessions[userID] = outbox
	n := len(r.sessions)
	r.mu.Unlock()

	if previous != nil && previous != outbox {
		previous.Close()
		r.logger.Info("session superseded", "user_id", userID)
	}
	r.metrics.SetConnections(n)
	r.logger.Debug("session registered", "user_id", userID, "online", n)
}

// Unregister removes whatever session userID has. Unknown users are a no-op.
func (r *Registry) Unregister(userID uuid.UUID) {
	r.mu.Lock()
	_, ok := r.sessions[userID]
	delete(r.sessions, userID)
	n := len(r.sessions)
	r.mu.Unlock()

	if ok {
		r.metrics.SetConnections(n)
		r.logger.Debug("session unregistered", "user_id", userID, "online", n)
	}
}

// Release removes userID only while outbox is still its registered session,
// so a closing session never evicts its replacement.
func (r *Registry) Release(userID uuid.UUID, outbox *Outbox) bool {
	r.mu.Lock()
	current, ok := r.sessions[userID]
	if !ok || current != outbox {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, userID)
	n := len(r.sessions)
	r.mu.Unlock()

	r.metrics.SetConnections(n)
	r.logger.Debug("session released", "user_id", userID, "online", n)
	return true
}

func (r *Registry) Lookup(userID uuid.UUID) (*Outbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	outbox, ok := r.sessions[userID]
	return outbox, ok
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Send queues payload for userID if they are online. The push happens
// outside the registry lock.
func (r *Registry) Send(userID uuid.UUID, payload []byte) error {
	outbox, ok := r.Lookup(userID)
	if !ok {
		return ErrNotConnected
	}
	if _, err := outbox.Push(payload); err != nil {
		return err
	}
	return nil
}
