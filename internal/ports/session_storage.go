package ports

import (
	"context"

	"shopify-admin-auth/internal/domain"
)

// SessionStorage defines the interface for session persistence.
// A miss is reported as (nil, nil), not as an error.
type SessionStorage interface {
	// StoreSession creates or replaces the session with the same id (last writer wins)
	StoreSession(ctx context.Context, session *domain.Session) error

	// LoadSession retrieves a session by id
	LoadSession(ctx context.Context, id string) (*domain.Session, error)

	// FindSessionsByShop retrieves every session stored for a shop
	FindSessionsByShop(ctx context.Context, shop string) ([]*domain.Session, error)
}

// ShopSessionCleaner removes every session of a shop, e.g. after the app was uninstalled
type ShopSessionCleaner interface {
	DeleteSessionsByShop(ctx context.Context, shop string) (int64, error)
}
