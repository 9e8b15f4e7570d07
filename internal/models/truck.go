package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Truck represents a fuel truck. TruckNumber is the unique identifier shown on the dashboard.
type Truck struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TruckNumber        string             `bson:"truck_number" json:"truck_number" validate:"required,max=40"`
	FuelCapacityLiters float64            `bson:"fuel_capacity_liters" json:"fuel_capacity_liters" validate:"gt=0"`
	DriverID           string             `bson:"driver_id,omitempty" json:"driver_id,omitempty"`
	ImageURL           string             `bson:"image_url,omitempty" json:"image_url,omitempty" validate:"omitempty,url"`
	CreatedAt          time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `bson:"updated_at" json:"updated_at"`
}
