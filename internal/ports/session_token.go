package ports

import "shopify-admin-auth/internal/domain"

// ValidateOptions tunes session token validation
type ValidateOptions struct {
	// CheckAudience verifies that aud contains the app's client id.
	// POS and headless callers present tokens issued for other clients.
	CheckAudience bool
}

// SessionTokenValidator decodes and verifies App Bridge session tokens.
// Failures are returned as *domain.InvalidTokenError.
type SessionTokenValidator interface {
	Validate(token string, opts ValidateOptions) (*domain.IdentityToken, error)
}
