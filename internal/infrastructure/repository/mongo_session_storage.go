package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopify-admin-auth/internal/domain"
	"shopify-admin-auth/internal/infrastructure/repository/entity"
	"shopify-admin-auth/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SessionsCollection is the MongoDB collection holding sessions
const SessionsCollection = "shopify_sessions"

// MongoSessionStorage implements SessionStorage using MongoDB
type MongoSessionStorage struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoSessionStorage creates a new MongoDB session storage
func NewMongoSessionStorage(db *mongo.Database) *MongoSessionStorage {
	return &MongoSessionStorage{
		collection: db.Collection(SessionsCollection),
		now:        time.Now,
	}
}

var _ ports.SessionStorage = (*MongoSessionStorage)(nil)

// EnsureIndexes creates the shop index used by FindSessionsByShop
func (r *MongoSessionStorage) EnsureIndexes(ctx context.Context) error {
	indexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "shop", Value: 1}},
		Options: options.Index().SetName("shop_1"),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, indexModel); err != nil {
		return fmt.Errorf("failed to create session indexes: %w", err)
	}
	return nil
}

// StoreSession saves or replaces a session
func (r *MongoSessionStorage) StoreSession(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("failed to store session: missing id")
	}

	doc := entity.MongoSessionDocFromDomain(session)
	now := r.now()
	doc.UpdatedAt = now

	set := bson.M{"shop": doc.Shop, "isOnline": doc.IsOnline, "updatedAt": doc.UpdatedAt}
	unset := bson.M{}
	setOptional(set, unset, "state", doc.State, doc.State != "")
	setOptional(set, unset, "scope", doc.Scope, doc.Scope != "")
	setOptional(set, unset, "accessToken", doc.AccessToken, doc.AccessToken != "")
	setOptional(set, unset, "expires", doc.Expires, doc.Expires != nil)
	setOptional(set, unset, "refreshToken", doc.RefreshToken, doc.RefreshToken != "")
	setOptional(set, unset, "refreshTokenExpires", doc.RefreshTokenExpires, doc.RefreshTokenExpires != nil)
	setOptional(set, unset, "onlineAccessInfo", doc.OnlineAccessInfo, doc.OnlineAccessInfo != nil)

	// createdAt survives replacement
	filter := bson.M{"_id": doc.ID}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"createdAt": now},
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}

	return nil
}

// LoadSession retrieves a session by id
func (r *MongoSessionStorage) LoadSession(ctx context.Context, id string) (*domain.Session, error) {
	var doc entity.MongoSessionDoc
	filter := bson.M{"_id": id}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return doc.ToDomain(), nil
}

// FindSessionsByShop retrieves all sessions of a shop
func (r *MongoSessionStorage) FindSessionsByShop(ctx context.Context, shop string) ([]*domain.Session, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"shop": shop})
	if err != nil {
		return nil, fmt.Errorf("failed to find sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []*domain.Session
	for cursor.Next(ctx) {
		var doc entity.MongoSessionDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		sessions = append(sessions, doc.ToDomain())
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return sessions, nil
}

// DeleteSessionsByShop removes every session of a shop, e.g. after uninstall
func (r *MongoSessionStorage) DeleteSessionsByShop(ctx context.Context, shop string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"shop": shop})
	if err != nil {
		return 0, fmt.Errorf("failed to delete sessions: %w", err)
	}
	return result.DeletedCount, nil
}

// setOptional sets a field when present and unsets it otherwise, so an invalidated
// session does not keep its old token
func setOptional(set, unset bson.M, key string, value any, present bool) {
	if present {
		set[key] = value
		return
	}
	unset[key] = ""
}
