package entity

import (
	"time"

	"shopify-admin-auth/internal/domain"
)

// MongoSessionDoc represents a session in MongoDB
type MongoSessionDoc struct {
	ID                  string                 `bson:"_id"`
	Shop                string                 `bson:"shop"`
	State               string                 `bson:"state,omitempty"`
	IsOnline            bool                   `bson:"isOnline"`
	Scope               string                 `bson:"scope,omitempty"`
	AccessToken         string                 `bson:"accessToken,omitempty"`
	Expires             *time.Time             `bson:"expires,omitempty"`
	RefreshToken        string                 `bson:"refreshToken,omitempty"`
	RefreshTokenExpires *time.Time             `bson:"refreshTokenExpires,omitempty"`
	OnlineAccessInfo    *MongoOnlineAccessInfo `bson:"onlineAccessInfo,omitempty"`
	CreatedAt           time.Time              `bson:"createdAt"`
	UpdatedAt           time.Time              `bson:"updatedAt"`
}

// MongoOnlineAccessInfo is the embedded user of an online session
type MongoOnlineAccessInfo struct {
	ExpiresIn           int64  `bson:"expiresIn"`
	AssociatedUserScope string `bson:"associatedUserScope"`
	UserID              int64  `bson:"userId"`
	FirstName           string `bson:"firstName,omitempty"`
	LastName            string `bson:"lastName,omitempty"`
	Email               string `bson:"email,omitempty"`
	EmailVerified       bool   `bson:"emailVerified"`
	AccountOwner        bool   `bson:"accountOwner"`
	Locale              string `bson:"locale,omitempty"`
	Collaborator        bool   `bson:"collaborator"`
}

// ToDomain converts the MongoDB document to a domain entity
func (d *MongoSessionDoc) ToDomain() *domain.Session {
	session := &domain.Session{
		ID:                  d.ID,
		Shop:                d.Shop,
		State:               d.State,
		IsOnline:            d.IsOnline,
		Scope:               d.Scope,
		AccessToken:         d.AccessToken,
		Expires:             utcPtr(d.Expires),
		RefreshToken:        d.RefreshToken,
		RefreshTokenExpires: utcPtr(d.RefreshTokenExpires),
	}

	if info := d.OnlineAccessInfo; info != nil {
		session.OnlineAccessInfo = &domain.OnlineAccessInfo{
			ExpiresIn:           info.ExpiresIn,
			AssociatedUserScope: info.AssociatedUserScope,
			AssociatedUser: domain.AssociatedUser{
				ID:            info.UserID,
				FirstName:     info.FirstName,
				LastName:      info.LastName,
				Email:         info.Email,
				EmailVerified: info.EmailVerified,
				AccountOwner:  info.AccountOwner,
				Locale:        info.Locale,
				Collaborator:  info.Collaborator,
			},
		}
	}

	return session
}

// MongoSessionDocFromDomain converts a domain entity to a MongoDB document
func MongoSessionDocFromDomain(session *domain.Session) *MongoSessionDoc {
	doc := &MongoSessionDoc{
		ID:                  session.ID,
		Shop:                session.Shop,
		State:               session.State,
		IsOnline:            session.IsOnline,
		Scope:               session.Scope,
		AccessToken:         session.AccessToken,
		Expires:             session.Expires,
		RefreshToken:        session.RefreshToken,
		RefreshTokenExpires: session.RefreshTokenExpires,
	}

	if info := session.OnlineAccessInfo; info != nil {
		user := info.AssociatedUser
		doc.OnlineAccessInfo = &MongoOnlineAccessInfo{
			ExpiresIn:           info.ExpiresIn,
			AssociatedUserScope: info.AssociatedUserScope,
			UserID:              user.ID,
			FirstName:           user.FirstName,
			LastName:            user.LastName,
			Email:               user.Email,
			EmailVerified:       user.EmailVerified,
			AccountOwner:        user.AccountOwner,
			Locale:              user.Locale,
			Collaborator:        user.Collaborator,
		}
	}

	return doc
}

// BSON dates come back as UTC with millisecond precision
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
