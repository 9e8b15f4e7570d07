// Package fleet validates and stores the stations, drivers and trucks the
// dashboard manages.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/db"
	"github.com/ukydev/fuel-logistics/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("identifier already in use")
)

// ValidationError lists the fields that failed validation, keyed by their JSON name.
type ValidationError struct {
	Fields map[string]string
}

// Error lists the failing fields in a stable order.
func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

// Service guards the fleet collections with validation and identifier uniqueness.
type Service struct {
	stations db.StationCollection
	drivers  db.DriverCollection
	trucks   db.TruckCollection
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a fleet service over the given collections.
func NewService(stations db.StationCollection, drivers db.DriverCollection, trucks db.TruckCollection) *Service {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return &Service{
		stations: stations,
		drivers:  drivers,
		trucks:   trucks,
		validate: v,
		now:      time.Now,
	}
}

func (s *Service) check(record interface{}) error {
	err := s.validate.Struct(record)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		// drop the struct name so nested fields read "location.lat"
		name := fe.Namespace()
		if i := strings.Index(name, "."); i >= 0 {
			name = name[i+1:]
		}
		out.Fields[name] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte", "lte":
		return "is out of range"
	case "url":
		return "must be a URL"
	default:
		return "is invalid"
	}
}

// storeError maps collection errors onto the service sentinels.
func storeError(op string, err error) error {
	switch {
	case errors.Is(err, db.ErrNotFound), errors.Is(err, db.ErrInvalidID):
		return ErrNotFound
	case errors.Is(err, db.ErrDuplicate):
		return ErrDuplicate
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

// unique fails with ErrDuplicate when the identifier is owned by a record other than self.
func unique(owner primitive.ObjectID, err error, self primitive.ObjectID) error {
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("uniqueness lookup: %w", err)
	}
	if owner == self {
		return nil
	}
	return ErrDuplicate
}

// Stations

// CreateStation validates and stores a new station. The name must be unused.
func (s *Service) CreateStation(ctx context.Context, station models.Station) (*models.Station, error) {
	station.Name = strings.TrimSpace(station.Name)
	station.Address = strings.TrimSpace(station.Address)
	if err := s.check(station); err != nil {
		return nil, err
	}

	existing, err := s.stations.FindStationByName(ctx, station.Name)
	if err := unique(stationID(existing), err, primitive.NilObjectID); err != nil {
		return nil, err
	}

	now := s.now()
	station.ID = primitive.NilObjectID
	station.CreatedAt = now
	station.UpdatedAt = now
	if err := s.stations.InsertStation(ctx, &station); err != nil {
		return nil, storeError("insert station", err)
	}

	log.WithFields(log.Fields{"station_id": station.ID.Hex(), "name": station.Name}).Info("Station created")
	return &station, nil
}

// ListStations returns every station.
func (s *Service) ListStations(ctx context.Context) ([]models.Station, error) {
	stations, err := s.stations.FindStations(ctx)
	if err != nil {
		return nil, storeError("list stations", err)
	}
	return stations, nil
}

// GetStation finds a station by ID
func (s *Service) GetStation(ctx context.Context, id string) (*models.Station, error) {
	station, err := s.stations.FindStationByID(ctx, id)
	if err != nil {
		return nil, storeError("get station", err)
	}
	return station, nil
}

// UpdateStation replaces a station, keeping its ID and creation time.
func (s *Service) UpdateStation(ctx context.Context, id string, station models.Station) (*models.Station, error) {
	station.Name = strings.TrimSpace(station.Name)
	station.Address = strings.TrimSpace(station.Address)
	if err := s.check(station); err != nil {
		return nil, err
	}

	current, err := s.GetStation(ctx, id)
	if err != nil {
		return nil, err
	}
	existing, err := s.stations.FindStationByName(ctx, station.Name)
	if err := unique(stationID(existing), err, current.ID); err != nil {
		return nil, err
	}

	station.ID = current.ID
	station.CreatedAt = current.CreatedAt
	station.UpdatedAt = s.now()
	if err := s.stations.UpdateStation(ctx, id, station); err != nil {
		return nil, storeError("update station", err)
	}
	return &station, nil
}

// DeleteStation removes a station by ID
func (s *Service) DeleteStation(ctx context.Context, id string) error {
	if err := s.stations.DeleteStation(ctx, id); err != nil {
		return storeError("delete station", err)
	}
	log.WithField("station_id", id).Info("Station deleted")
	return nil
}

func stationID(station *models.Station) primitive.ObjectID {
	if station == nil {
		return primitive.NilObjectID
	}
	return station.ID
}

// Drivers

// CreateDriver validates and stores a new driver. The license number must be unused.
func (s *Service) CreateDriver(ctx context.Context, driver models.Driver) (*models.Driver, error) {
	driver.Name = strings.TrimSpace(driver.Name)
	driver.LicenseNumber = strings.TrimSpace(driver.LicenseNumber)
	if err := s.check(driver); err != nil {
		return nil, err
	}

	existing, err := s.drivers.FindDriverByLicense(ctx, driver.LicenseNumber)
	if err := unique(driverID(existing), err, primitive.NilObjectID); err != nil {
		return nil, err
	}

	now := s.now()
	driver.ID = primitive.NilObjectID
	driver.CreatedAt = now
	driver.UpdatedAt = now
	if err := s.drivers.InsertDriver(ctx, &driver); err != nil {
		return nil, storeError("insert driver", err)
	}

	log.WithFields(log.Fields{"driver_id": driver.ID.Hex(), "license_number": driver.LicenseNumber}).Info("Driver created")
	return &driver, nil
}

// ListDrivers returns every driver.
func (s *Service) ListDrivers(ctx context.Context) ([]models.Driver, error) {
	drivers, err := s.drivers.FindDrivers(ctx)
	if err != nil {
		return nil, storeError("list drivers", err)
	}
	return drivers, nil
}

// GetDriver finds a driver by ID
func (s *Service) GetDriver(ctx context.Context, id string) (*models.Driver, error) {
	driver, err := s.drivers.FindDriverByID(ctx, id)
	if err != nil {
		return nil, storeError("get driver", err)
	}
	return driver, nil
}

// UpdateDriver replaces a driver, keeping its ID and creation time.
func (s *Service) UpdateDriver(ctx context.Context, id string, driver models.Driver) (*models.Driver, error) {
	driver.Name = strings.TrimSpace(driver.Name)
	driver.LicenseNumber = strings.TrimSpace(driver.LicenseNumber)
	if err := s.check(driver); err != nil {
		return nil, err
	}

	current, err := s.GetDriver(ctx, id)
	if err != nil {
		return nil, err
	}
	existing, err := s.drivers.FindDriverByLicense(ctx, driver.LicenseNumber)
	if err := unique(driverID(existing), err, current.ID); err != nil {
		return nil, err
	}

	driver.ID = current.ID
	driver.CreatedAt = current.CreatedAt
	driver.UpdatedAt = s.now()
	if err := s.drivers.UpdateDriver(ctx, id, driver); err != nil {
		return nil, storeError("update driver", err)
	}
	return &driver, nil
}

// DeleteDriver removes a driver by ID
func (s *Service) DeleteDriver(ctx context.Context, id string) error {
	if err := s.drivers.DeleteDriver(ctx, id); err != nil {
		return storeError("delete driver", err)
	}
	log.WithField("driver_id", id).Info("Driver deleted")
	return nil
}

func driverID(driver *models.Driver) primitive.ObjectID {
	if driver == nil {
		return primitive.NilObjectID
	}
	return driver.ID
}

// Trucks

// CreateTruck validates and stores a new truck. The truck number must be unused
// and an assigned driver must exist.
func (s *Service) CreateTruck(ctx context.Context, truck models.Truck) (*models.Truck, error) {
	truck.TruckNumber = strings.TrimSpace(truck.TruckNumber)
	if err := s.check(truck); err != nil {
		return nil, err
	}
	if err := s.checkAssignedDriver(ctx, truck.DriverID); err != nil {
		return nil, err
	}

	existing, err := s.trucks.FindTruckByNumber(ctx, truck.TruckNumber)
	if err := unique(truckID(existing), err, primitive.NilObjectID); err != nil {
		return nil, err
	}

	now := s.now()
	truck.ID = primitive.NilObjectID
	truck.CreatedAt = now
	truck.UpdatedAt = now
	if err := s.trucks.InsertTruck(ctx, &truck); err != nil {
		return nil, storeError("insert truck", err)
	}

	log.WithFields(log.Fields{"truck_id": truck.ID.Hex(), "truck_number": truck.TruckNumber}).Info("Truck created")
	return &truck, nil
}

// ListTrucks returns every truck.
func (s *Service) ListTrucks(ctx context.Context) ([]models.Truck, error) {
	trucks, err := s.trucks.FindTrucks(ctx)
	if err != nil {
		return nil, storeError("list trucks", err)
	}
	return trucks, nil
}

// GetTruck finds a truck by ID
func (s *Service) GetTruck(ctx context.Context, id string) (*models.Truck, error) {
	truck, err := s.trucks.FindTruckByID(ctx, id)
	if err != nil {
		return nil, storeError("get truck", err)
	}
	return truck, nil
}

// UpdateTruck replaces a truck, keeping its ID and creation time.
func (s *Service) UpdateTruck(ctx context.Context, id string, truck models.Truck) (*models.Truck, error) {
	truck.TruckNumber = strings.TrimSpace(truck.TruckNumber)
	if err := s.check(truck); err != nil {
		return nil, err
	}

	current, err := s.GetTruck(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkAssignedDriver(ctx, truck.DriverID); err != nil {
		return nil, err
	}
	existing, err := s.trucks.FindTruckByNumber(ctx, truck.TruckNumber)
	if err := unique(truckID(existing), err, current.ID); err != nil {
		return nil, err
	}

	truck.ID = current.ID
	truck.CreatedAt = current.CreatedAt
	truck.UpdatedAt = s.now()
	if err := s.trucks.UpdateTruck(ctx, id, truck); err != nil {
		return nil, storeError("update truck", err)
	}
	return &truck, nil
}

// DeleteTruck removes a truck by ID
func (s *Service) DeleteTruck(ctx context.Context, id string) error {
	if err := s.trucks.DeleteTruck(ctx, id); err != nil {
		return storeError("delete truck", err)
	}
	log.WithField("truck_id", id).Info("Truck deleted")
	return nil
}

// checkAssignedDriver rejects a driver_id that does not name an existing driver.
func (s *Service) checkAssignedDriver(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.drivers.FindDriverByID(ctx, id); err != nil {
		if errors.Is(err, db.ErrNotFound) || errors.Is(err, db.ErrInvalidID) {
			return &ValidationError{Fields: map[string]string{"driver_id": "does not match a driver"}}
		}
		return fmt.Errorf("driver lookup: %w", err)
	}
	return nil
}

func truckID(truck *models.Truck) primitive.ObjectID {
	if truck == nil {
		return primitive.NilObjectID
	}
	return truck.ID
}
