package production

import (
	"errors"
	"sort"
	"sync"

	"obs-remote/internal/obsws"
)

// Repository is the concurrency-safe registry of live sessions.
type Repository interface {
	// Add registers a new session. Adding an id that is already present
	// returns ErrSessionExists.
	Add(sess *Session) error

	// Controller returns the controller of the session.
	Controller(id SessionID) (Controller, bool)

	// Remove unregisters the session and returns it.
	Remove(id SessionID) (*Session, bool)

	// SetScenes records the last known scene inventory of the session.
	SetScenes(id SessionID, scenes []string) bool

	// Snapshot returns a copy of the session safe to hand to callers.
	Snapshot(id SessionID) (SessionInfo, bool)

	// List returns snapshots of all sessions, oldest first.
	List() []SessionInfo

	// ActiveSessionCount returns the number of identified sessions.
	// Used for metrics.
	ActiveSessionCount() int
}

var (
	// ErrSessionNotFound is returned for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExists is returned when a session id is registered twice.
	ErrSessionExists = errors.New("session already exists")
)

// InMemoryRepository is a concurrency-safe Repository over a Store.
type InMemoryRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *InMemoryRepository {
	return NewInMemoryRepositoryWithStore(NewInMemoryStore())
}

// NewInMemoryRepositoryWithStore constructs a repository that uses the given Store.
func NewInMemoryRepositoryWithStore(store Store) *InMemoryRepository {
	return &InMemoryRepository{store: store}
}

// Add implements Repository.Add.
func (r *InMemoryRepository) Add(sess *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.store.GetSession(sess.ID); exists {
		return ErrSessionExists
	}
	r.store.SetSession(sess)
	return nil
}

// Controller implements Repository.Controller.
func (r *InMemoryRepository) Controller(id SessionID) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return nil, false
	}
	return sess.Controller, true
}

// Remove implements Repository.Remove.
func (r *InMemoryRepository) Remove(id SessionID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return nil, false
	}
	r.store.DeleteSession(id)
	return sess, true
}

// SetScenes implements Repository.SetScenes.
func (r *InMemoryRepository) SetScenes(id SessionID, scenes []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return false
	}
	sess.Scenes = append([]string(nil), scenes...)
	return true
}

// Snapshot implements Repository.Snapshot.
func (r *InMemoryRepository) Snapshot(id SessionID) (SessionInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.store.GetSession(id)
	if !ok {
		return SessionInfo{}, false
	}
	return snapshotLocked(sess), true
}

// List implements Repository.List.
func (r *InMemoryRepository) List() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]SessionInfo, 0)
	for _, id := range r.store.ListSessionIDs() {
		if sess, ok := r.store.GetSession(id); ok {
			out = append(out, snapshotLocked(sess))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ActiveSessionCount implements Repository.ActiveSessionCount.
func (r *InMemoryRepository) ActiveSessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, id := range r.store.ListSessionIDs() {
		if sess, ok := r.store.GetSession(id); ok && sess.Controller.State() == obsws.StateIdentified {
			n++
		}
	}
	return n
}

// snapshotLocked copies sess. Caller must hold r.mu.
func snapshotLocked(sess *Session) SessionInfo {
	return SessionInfo{
		ID:        sess.ID,
		IP:        sess.IP,
		State:     sess.Controller.State().String(),
		CreatedAt: sess.CreatedAt,
		Scenes:    append(make([]string, 0, len(sess.Scenes)), sess.Scenes...),
	}
}
