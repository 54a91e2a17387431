package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/askdoc/internal/logger"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps the live sessions of a process. Sessions idle for
// longer than the TTL are ended by Reap.
type SessionStore struct {
	pipeline *Pipeline
	ttl      time.Duration

	mu       sync.RWMutex
	sessions map[string]*PipelineSession
}

func NewSessionStore(p *Pipeline, ttl time.Duration) *SessionStore {
	return &SessionStore{pipeline: p, ttl: ttl, sessions: make(map[string]*PipelineSession)}
}

// Create starts a new EMPTY session.
func (st *SessionStore) Create() *PipelineSession {
	s := NewPipelineSession(st.pipeline)

	st.mu.Lock()
	st.sessions[s.ID()] = s
	st.mu.Unlock()

	logger.Info("session created", zap.String("session_id", s.ID()))
	return s
}

func (st *SessionStore) Get(id string) (*PipelineSession, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete ends the session and removes its indexed document.
func (st *SessionStore) Delete(ctx context.Context, id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	delete(st.sessions, id)
	st.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.Close(ctx)
	logger.Info("session ended", zap.String("session_id", id))
	return nil
}

func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Reap ends every session idle for longer than the TTL and returns how many
// were removed. Sessions that are indexing are never reaped.
func (st *SessionStore) Reap(ctx context.Context) int {
	return st.reapIdle(ctx, time.Now())
}

func (st *SessionStore) reapIdle(ctx context.Context, now time.Time) int {
	if st.ttl <= 0 {
		return 0
	}

	var expired []*PipelineSession
	st.mu.Lock()
	for id, s := range st.sessions {
		last, reapable := s.idleSince()
		if reapable && now.Sub(last) > st.ttl {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	st.mu.Unlock()

	for _, s := range expired {
		s.Close(ctx)
		logger.Info("session expired", zap.String("session_id", s.ID()))
	}
	return len(expired)
}

// Run reaps idle sessions every interval until ctx is cancelled.
func (st *SessionStore) Run(ctx context.Context, interval time.Duration) {
	if st.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = st.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := st.Reap(ctx); n > 0 {
				logger.Debug("reaped idle sessions", zap.Int("count", n), zap.Int("remaining", st.Len()))
			}
		}
	}
}

// CloseAll ends every session. Used on shutdown.
func (st *SessionStore) CloseAll(ctx context.Context) {
	st.mu.Lock()
	sessions := st.sessions
	st.sessions = make(map[string]*PipelineSession)
	st.mu.Unlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}
