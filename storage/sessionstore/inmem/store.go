// Package inmemstore keeps sessions in a map. Tests and local dev only,
// TTLs are honored lazily on read.
package inmemstore

import (
	"context"
	"sync"
	"time"

	"github.com/edulab/lectura/core/session"
)

type entry struct {
	sess      session.Session
	expiresAt time.Time
}

type store struct {
	mutex    sync.RWMutex
	sessions map[string]entry
}

var _ session.Store = (*store)(nil)

func NewStore() session.Store {
	return &store{sessions: make(map[string]entry)}
}

func (s *store) Get(_ context.Context, id string) (*session.Session, error) {
	s.mutex.RLock()
	ent, ok := s.sessions[id]
	s.mutex.RUnlock()

	if !ok {
		return nil, session.ErrNotFound
	}
	if time.Now().After(ent.expiresAt) {
		s.mutex.Lock()
		delete(s.sessions, id)
		s.mutex.Unlock()
		return nil, session.ErrNotFound
	}
	sess := ent.sess
	return &sess, nil
}

func (s *store) Save(_ context.Context, sess *session.Session, ttl time.Duration) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sessions[sess.ID] = entry{sess: *sess, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *store) Delete(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.sessions, id)
	return nil
}
