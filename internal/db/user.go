package db

import (
	"context"
	"time"

	"github.com/ukydev/fuel-logistics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// UserCollection defines the interface for user database operations
type UserCollection interface {
	InsertUser(ctx context.Context, user *models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string) error
}

// MongoUserCollection implements UserCollection for MongoDB
type MongoUserCollection struct {
	docs documents[models.User]
}

// NewUserCollection wraps the users collection.
func NewUserCollection(coll *mongo.Collection) *MongoUserCollection {
	return &MongoUserCollection{docs: documents[models.User]{coll: coll}}
}

// InsertUser inserts a new user into the database
func (c *MongoUserCollection) InsertUser(ctx context.Context, user *models.User) error {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true

	id, err := c.docs.insert(ctx, user)
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

// FindUserByID finds a user by their ID
func (c *MongoUserCollection) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return c.docs.byID(ctx, id)
}

// FindUserByEmail finds a user by their email
func (c *MongoUserCollection) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return c.docs.one(ctx, bson.M{"email": email})
}

// UpdateLastLogin updates the last login time for a user
func (c *MongoUserCollection) UpdateLastLogin(ctx context.Context, id string) error {
	if c.docs.coll == nil {
		return ErrNoCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	now := time.Now()
	_, err = c.docs.coll.UpdateOne(
		ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"last_login": now, "updated_at": now}},
	)
	return err
}
