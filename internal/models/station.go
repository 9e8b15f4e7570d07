package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Station represents a petrol station. Stations are the destinations of tracking sessions.
type Station struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name" validate:"required,max=120"`
	Address   string             `bson:"address" json:"address" validate:"required,max=250"`
	Location  Location           `bson:"location" json:"location"`
	ImageURL  string             `bson:"image_url,omitempty" json:"image_url,omitempty" validate:"omitempty,url"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
