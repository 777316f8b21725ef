package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"
)

// MemorySessionStorage keeps sessions in process memory. Sessions are lost on restart,
// so it is meant for development and tests.
type MemorySessionStorage struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

// NewMemorySessionStorage creates an empty in-memory session storage
func NewMemorySessionStorage() *MemorySessionStorage {
	return &MemorySessionStorage{sessions: make(map[string]*domain.Session)}
}

var _ ports.SessionStorage = (*MemorySessionStorage)(nil)

// StoreSession saves a copy of the session
func (s *MemorySessionStorage) StoreSession(_ context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("failed to store session: missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// LoadSession returns a copy of the stored session, or nil when missing
func (s *MemorySessionStorage) LoadSession(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(session), nil
}

// FindSessionsByShop returns copies of every session of shop ordered by id
func (s *MemorySessionStorage) FindSessionsByShop(_ context.Context, shop string) ([]*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*domain.Session
	for _, session := range s.sessions {
		if session.Shop == shop {
			sessions = append(sessions, cloneSession(session))
		}
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

// DeleteSessionsByShop removes every session of shop
func (s *MemorySessionStorage) DeleteSessionsByShop(_ context.Context, shop string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, session := range s.sessions {
		if session.Shop == shop {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneSession(session *domain.Session) *domain.Session {
	c := *session
	if session.Expires != nil {
		expires := *session.Expires
		c.Expires = &expires
	}
	if session.RefreshTokenExpires != nil {
		refreshExpires := *session.RefreshTokenExpires
		c.RefreshTokenExpires = &refreshExpires
	}
	if session.OnlineAccessInfo != nil {
		info := *session.OnlineAccessInfo
		c.OnlineAccessInfo = &info
	}
	return &c
}
