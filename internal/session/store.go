package session

import (
	"container/heap"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session not found")
	// ErrBusy rejects a compile request while another is in flight for
	// the same session.
	ErrBusy = errors.New("session busy")
	// ErrNotReady rejects a compile request before selection finished.
	ErrNotReady = errors.New("session not ready")
)

// expiryEntry is a scheduled eviction in the expiry heap.
type expiryEntry struct {
	id       string
	expireAt time.Time
}

type expiryHeap []expiryEntry

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expireAt.Before(h[j].expireAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(expiryEntry)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Store is an expiring in-memory session map. Eviction runs from a
// background sweep over a min-heap of expiry times, plus a lazy expiry
// check on access; deletion is idempotent and removes the session's
// workspace directory.
type Store struct {
	logger  zerolog.Logger
	baseDir string
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
	expiries expiryHeap

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewStore creates a store evicting sessions after ttl. baseDir hosts
// per-session workspace directories.
func NewStore(logger zerolog.Logger, baseDir string, ttl, sweepInterval time.Duration) *Store {
	s := &Store{
		logger:    logger.With().Str("component", "session-store").Logger(),
		baseDir:   baseDir,
		ttl:       ttl,
		sessions:  make(map[string]*Session),
		sweepStop: make(chan struct{}),
	}
	heap.Init(&s.expiries)

	go s.sweepLoop(sweepInterval)

	return s
}

// Close stops the background sweep.
func (s *Store) Close() {
	s.sweepOnce.Do(func() { close(s.sweepStop) })
}

func (s *Store) sweepLoop(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.sweepStop:
			return
		}
	}
}

// sweep evicts every session whose expiry has passed.
func (s *Store) sweep() {
	now := time.Now()

	s.mu.Lock()
	var evict []*Session
	for s.expiries.Len() > 0 && !s.expiries[0].expireAt.After(now) {
		entry := heap.Pop(&s.expiries).(expiryEntry)
		// The session may already be gone from an explicit delete
		if sess, ok := s.sessions[entry.id]; ok {
			delete(s.sessions, entry.id)
			evict = append(evict, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range evict {
		sess.cancel()
		s.cleanupWorkspace(sess)
		s.logger.Info().Str("session_id", sess.ID).Msg("session expired")
	}
}

// Create registers a new session and provisions its workspace directory.
func (s *Store) Create(settings Settings) (*Session, error) {
	id := uuid.NewString()
	now := time.Now()

	workspace := filepath.Join(s.baseDir, "sessions", id)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:          id,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		Settings:    settings,
		Status:      StatusProcessing,
		Stage:       "Initializing",
		Tasks:       NewTasks(),
		StartedAt:   now,
		Workspace:   workspace,
		SourceFiles: make(map[string]string),
		ctx:         ctx,
		cancel:      cancel,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	heap.Push(&s.expiries, expiryEntry{id: id, expireAt: sess.ExpiresAt})
	cp := snapshot(sess)
	s.mu.Unlock()

	s.logger.Info().Str("session_id", id).Time("expires_at", sess.ExpiresAt).Msg("session created")
	return cp, nil
}

// snapshot copies the session so callers can read it without holding
// the store lock. Slices and maps are replaced wholesale by writers
// inside Update, so copying the headers is enough for Videos, Moments
// and SourceFiles; Tasks are mutated in place and need a fresh slice.
func snapshot(sess *Session) *Session {
	cp := *sess
	cp.Tasks = append([]Task(nil), sess.Tasks...)
	return &cp
}

// Get returns a read-only snapshot of the session. Expired sessions are
// evicted lazily and reported as not found.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok && time.Now().After(sess.ExpiresAt) {
		delete(s.sessions, id)
		s.mu.Unlock()
		sess.cancel()
		s.cleanupWorkspace(sess)
		return nil, ErrNotFound
	}
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	cp := snapshot(sess)
	s.mu.Unlock()

	return cp, nil
}

// Update applies fn to the session under the store lock.
func (s *Store) Update(id string, fn func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return ErrNotFound
	}
	fn(sess)
	return nil
}

// Delete evicts a session and removes its workspace. Deleting an
// unknown or already-deleted id is not an error.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if ok {
		sess.cancel()
		s.cleanupWorkspace(sess)
		s.logger.Info().Str("session_id", id).Msg("session deleted")
	}
}

// Context returns a context cancelled when the session is deleted or
// expires. Unknown ids get an already-cancelled context.
func (s *Store) Context(id string) context.Context {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()

	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return sess.ctx
}

// BeginCompile marks the session as compiling. It fails with ErrBusy if
// a compile is already in flight, and ErrNotReady if selection has not
// completed.
func (s *Store) BeginCompile(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || time.Now().After(sess.ExpiresAt) {
		return nil, ErrNotFound
	}
	if sess.compiling {
		return nil, ErrBusy
	}
	if sess.Status != StatusReady && sess.Status != StatusDone {
		return nil, ErrNotReady
	}

	sess.compiling = true
	sess.Status = StatusCompiling
	return snapshot(sess), nil
}

// EndCompile releases the compile gate. ok reports whether compilation
// succeeded.
func (s *Store) EndCompile(id string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, found := s.sessions[id]
	if !found {
		return
	}
	sess.compiling = false
	if ok {
		sess.Status = StatusDone
	} else if sess.Status == StatusCompiling {
		sess.Status = StatusReady
	}
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) cleanupWorkspace(sess *Session) {
	if sess.Workspace == "" {
		return
	}
	if err := os.RemoveAll(sess.Workspace); err != nil {
		s.logger.Warn().Err(err).Str("session_id", sess.ID).Msg("workspace cleanup failed")
	}
}
