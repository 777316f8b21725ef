package shopify

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/ports"

	"github.com/golang-jwt/jwt/v5"
)

// sessionTokenLeeway absorbs clock skew between Shopify and the app server
const sessionTokenLeeway = 10 * time.Second

// SessionTokenClaims are the claims App Bridge puts in a session token
type SessionTokenClaims struct {
	jwt.RegisteredClaims

	// Dest is the shop the token was issued for, e.g. https://{shop}
	Dest string `json:"dest,omitempty"`
	// SID is the admin session the token belongs to
	SID string `json:"sid,omitempty"`
}

// SessionTokenValidator verifies HS256 session tokens signed with the app secret
type SessionTokenValidator struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
}

// NewSessionTokenValidator creates a validator for the app's credentials
func NewSessionTokenValidator(apiKey, apiSecret string) *SessionTokenValidator {
	return &SessionTokenValidator{apiKey: apiKey, apiSecret: apiSecret, now: time.Now}
}

// WithClock returns a copy of the validator that reads time from now
func (v *SessionTokenValidator) WithClock(now func() time.Time) *SessionTokenValidator {
	clone := *v
	clone.now = now
	return &clone
}

// Validate implements ports.SessionTokenValidator
func (v *SessionTokenValidator) Validate(token string, opts ports.ValidateOptions) (*domain.IdentityToken, error) {
	if token == "" {
		return nil, &domain.InvalidTokenError{Reason: "missing token"}
	}
	if v.apiSecret == "" {
		return nil, fmt.Errorf("%w: api secret is required to verify session tokens", domain.ErrConfiguration)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithLeeway(sessionTokenLeeway),
		jwt.WithExpirationRequired(),
	)

	claims := &SessionTokenClaims{}
	tok, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(v.apiSecret), nil
	})
	if err != nil {
		return nil, &domain.InvalidTokenError{Reason: classifyJWTError(err), Err: err}
	}
	if !tok.Valid {
		return nil, &domain.InvalidTokenError{Reason: "invalid token"}
	}

	if opts.CheckAudience && !slices.Contains([]string(claims.Audience), v.apiKey) {
		return nil, &domain.InvalidTokenError{Reason: "audience mismatch"}
	}
	if claims.Dest == "" {
		return nil, &domain.InvalidTokenError{Reason: "missing dest claim"}
	}

	identity := &domain.IdentityToken{
		Raw:       token,
		Issuer:    claims.Issuer,
		Dest:      claims.Dest,
		Audience:  claims.Audience,
		Subject:   claims.Subject,
		SessionID: claims.SID,
		JTI:       claims.ID,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	if claims.IssuedAt != nil {
		identity.IssuedAt = claims.IssuedAt.Time
	}
	if claims.NotBefore != nil {
		identity.NotBefore = claims.NotBefore.Time
	}
	if identity.Shop() == "" {
		return nil, &domain.InvalidTokenError{Reason: "dest claim is not a shop url"}
	}

	return identity, nil
}

func classifyJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "token not active yet"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature mismatch"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed token"
	default:
		return "verification failed"
	}
}
