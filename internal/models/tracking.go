package models

import "time"

// TrackingStatus is the vehicle status reported by a tracking session.
type TrackingStatus string

const (
	StatusOnRoute TrackingStatus = "OnRoute"
	StatusArrived TrackingStatus = "Arrived"
	StatusStopped TrackingStatus = "Stopped"
)

// TrackingSession is one snapshot of a simulated tracking run.
type TrackingSession struct {
	VehicleID            string         `json:"vehicle_id"`
	DestinationID        string         `json:"destination_id"`
	CurrentPosition      Location       `json:"current_position"`
	DistanceCoveredKm    float64        `json:"distance_covered_km"`
	FuelLevelLiters      float64        `json:"fuel_level_liters"`
	EstimatedTimeArrival string         `json:"estimated_time_arrival"`
	Status               TrackingStatus `json:"status"`
	Ticks                int            `json:"ticks"`
	StartedAt            time.Time      `json:"started_at"`
	UpdatedAt            time.Time      `json:"updated_at"`
}

// TrackingRequest is the body of a start-tracking request.
type TrackingRequest struct {
	VehicleID     string `json:"vehicle_id"`
	DestinationID string `json:"destination_id"`
}
