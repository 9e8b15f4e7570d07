package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Driver represents a truck driver. LicenseNumber is unique across drivers.
type Driver struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name" validate:"required,max=120"`
	LicenseNumber string             `bson:"license_number" json:"license_number" validate:"required,max=40"`
	Phone         string             `bson:"phone" json:"phone" validate:"omitempty,max=30"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}
