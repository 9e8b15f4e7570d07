package tracking

import (
	"errors"
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/geo"
	"github.com/ukydev/fuel-logistics/internal/models"
)

var (
	ErrMissingVehicle     = errors.New("select a vehicle before starting tracking")
	ErrMissingDestination = errors.New("select a destination before starting tracking")
	ErrManagerClosed      = errors.New("tracking is shutting down")
)

// State is the lifecycle state of a Simulator.
type State int

const (
	StateIdle State = iota
	StateTracking
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options configures the simulation constants.
type Options struct {
	Period                 time.Duration
	Start                  models.Location
	InitialFuelLiters      float64
	ConsumptionLitersPerKm float64
	AverageSpeedKmh        float64
	ArrivalRadiusKm        float64
}

// DefaultOptions returns the constants the dashboard has always used:
// a 5 second tick from central Bengaluru with 5000 L on board burning 0.1 L/km.
func DefaultOptions() Options {
	return Options{
		Period:                 5 * time.Second,
		Start:                  models.Location{Lat: 12.9716, Lon: 77.5946},
		InitialFuelLiters:      5000,
		ConsumptionLitersPerKm: 0.1,
		AverageSpeedKmh:        40,
		ArrivalRadiusKm:        0.5,
	}
}

// Publisher receives every snapshot a Simulator produces. Implementations must not block.
type Publisher interface {
	Publish(session models.TrackingSession)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(session models.TrackingSession)

func (f PublisherFunc) Publish(session models.TrackingSession) {
	f(session)
}

// Simulator drives one simulated vehicle toward a destination.
type Simulator struct {
	mu        sync.Mutex
	opts      Options
	scheduler Scheduler
	perturber Perturber
	publisher Publisher
	now       func() time.Time

	state       State
	session     *models.TrackingSession
	destination models.Location
	task        Task
	// generation invalidates ticks that belong to a cancelled task
	generation uint64
}

// NewSimulator creates an idle Simulator. publisher may be nil.
func NewSimulator(opts Options, scheduler Scheduler, perturber Perturber, publisher Publisher) *Simulator {
	return &Simulator{
		opts:      opts,
		scheduler: scheduler,
		perturber: perturber,
		publisher: publisher,
		now:       time.Now,
		state:     StateIdle,
	}
}

// Start begins a new session for vehicle heading to destination. Any running
// session is cancelled first. A missing vehicle or destination leaves the
// Simulator untouched and registers no timer.
func (s *Simulator) Start(vehicle *models.Truck, destination *models.Station) (models.TrackingSession, error) {
	if vehicle == nil {
		return models.TrackingSession{}, ErrMissingVehicle
	}
	if destination == nil {
		return models.TrackingSession{}, ErrMissingDestination
	}

	s.mu.Lock()
	previous := s.detach()

	now := s.now()
	session := models.TrackingSession{
		VehicleID:         vehicle.ID.Hex(),
		DestinationID:     destination.ID.Hex(),
		CurrentPosition:   s.opts.Start,
		DistanceCoveredKm: 0,
		FuelLevelLiters:   s.opts.InitialFuelLiters,
		Status:            models.StatusOnRoute,
		StartedAt:         now,
		UpdatedAt:         now,
	}
	session.EstimatedTimeArrival = geo.FormatETA(geo.HaversineKm(s.opts.Start, destination.Location), s.opts.AverageSpeedKmh)

	s.session = &session
	s.destination = destination.Location
	s.state = StateTracking
	generation := s.generation
	s.task = s.scheduler.Every(s.opts.Period, func() { s.tick(generation) })
	s.publish(session)
	s.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}

	log.WithFields(log.Fields{
		"vehicle_id":     session.VehicleID,
		"destination_id": session.DestinationID,
		"period":         s.opts.Period,
	}).Info("Tracking started")

	return session, nil
}

// Stop cancels the repeating tick and discards the session.
func (s *Simulator) Stop() {
	s.mu.Lock()
	task := s.detach()
	wasActive := s.session != nil
	s.session = nil
	if s.state != StateIdle {
		s.state = StateStopped
	}
	s.mu.Unlock()

	if task != nil {
		task.Cancel()
	}
	if wasActive {
		log.Info("Tracking stopped")
	}
}

// Snapshot returns a copy of the current session, if any.
func (s *Simulator) Snapshot() (models.TrackingSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return models.TrackingSession{}, false
	}
	return *s.session, true
}

// State returns the lifecycle state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// detach releases the current task under s.mu and returns it for cancelling
// once the lock is dropped.
func (s *Simulator) detach() Task {
	task := s.task
	s.task = nil
	s.generation++
	return task
}

func (s *Simulator) tick(generation uint64) {
	s.mu.Lock()
	if s.state != StateTracking || s.generation != generation || s.session == nil {
		s.mu.Unlock()
		return
	}

	dLat, dLon := s.perturber.Offset()
	next := Step(*s.session, dLat, dLon, s.destination, s.opts, s.now())
	*s.session = next

	var finished Task
	if next.Status != models.StatusOnRoute {
		finished = s.detach()
		s.state = StateStopped
	}
	s.publish(next)
	s.mu.Unlock()

	if finished != nil {
		finished.Cancel()
		log.WithFields(log.Fields{
			"vehicle_id":  next.VehicleID,
			"status":      next.Status,
			"distance_km": next.DistanceCoveredKm,
			"fuel_liters": next.FuelLevelLiters,
		}).Info("Tracking finished")
	}
}

func (s *Simulator) publish(session models.TrackingSession) {
	if s.publisher != nil {
		s.publisher.Publish(session)
	}
}

// Step advances prev by one tick using the offset (dLat, dLon) in degrees.
// Distance only grows and fuel only shrinks, whatever the offset.
func Step(prev models.TrackingSession, dLat, dLon float64, destination models.Location, opts Options, now time.Time) models.TrackingSession {
	next := prev
	next.CurrentPosition = normalize(models.Location{
		Lat: prev.CurrentPosition.Lat + dLat,
		Lon: prev.CurrentPosition.Lon + dLon,
	})

	delta := geo.HaversineKm(prev.CurrentPosition, next.CurrentPosition)
	next.DistanceCoveredKm = prev.DistanceCoveredKm + delta
	next.FuelLevelLiters = math.Max(0, prev.FuelLevelLiters-delta*opts.ConsumptionLitersPerKm)
	next.Ticks = prev.Ticks + 1
	next.UpdatedAt = now

	remaining := geo.HaversineKm(next.CurrentPosition, destination)
	switch {
	case remaining <= opts.ArrivalRadiusKm:
		next.Status = models.StatusArrived
		next.EstimatedTimeArrival = geo.FormatETA(0, opts.AverageSpeedKmh)
	case next.FuelLevelLiters <= 0:
		next.Status = models.StatusStopped
		next.EstimatedTimeArrival = "unknown"
	default:
		next.Status = models.StatusOnRoute
		next.EstimatedTimeArrival = geo.FormatETA(remaining, opts.AverageSpeedKmh)
	}
	return next
}

func normalize(loc models.Location) models.Location {
	loc.Lat = math.Max(-90, math.Min(90, loc.Lat))
	for loc.Lon > 180 {
		loc.Lon -= 360
	}
	for loc.Lon < -180 {
		loc.Lon += 360
	}
	return loc
}
