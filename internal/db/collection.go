package db

import (
	"context"
	"errors"

	"github.com/ukydev/fuel-logistics/internal/models"
)

var (
	ErrNotFound     = errors.New("document not found")
	ErrDuplicate    = errors.New("duplicate key")
	ErrInvalidID    = errors.New("invalid document ID")
	ErrNoCollection = errors.New("mongo collection is nil")
)

// StationCollection defines the interface for station data operations.
type StationCollection interface {
	InsertStation(ctx context.Context, station *models.Station) error
	FindStations(ctx context.Context) ([]models.Station, error)
	FindStationByID(ctx context.Context, id string) (*models.Station, error)
	FindStationByName(ctx context.Context, name string) (*models.Station, error)
	UpdateStation(ctx context.Context, id string, station models.Station) error
	DeleteStation(ctx context.Context, id string) error
}

// DriverCollection defines the interface for driver data operations.
type DriverCollection interface {
	InsertDriver(ctx context.Context, driver *models.Driver) error
	FindDrivers(ctx context.Context) ([]models.Driver, error)
	FindDriverByID(ctx context.Context, id string) (*models.Driver, error)
	FindDriverByLicense(ctx context.Context, licenseNumber string) (*models.Driver, error)
	UpdateDriver(ctx context.Context, id string, driver models.Driver) error
	DeleteDriver(ctx context.Context, id string) error
}

// TruckCollection defines the interface for truck data operations.
type TruckCollection interface {
	InsertTruck(ctx context.Context, truck *models.Truck) error
	FindTrucks(ctx context.Context) ([]models.Truck, error)
	FindTruckByID(ctx context.Context, id string) (*models.Truck, error)
	FindTruckByNumber(ctx context.Context, truckNumber string) (*models.Truck, error)
	UpdateTruck(ctx context.Context, id string, truck models.Truck) error
	DeleteTruck(ctx context.Context, id string) error
}
