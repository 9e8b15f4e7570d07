package tracking

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/models"
)

// SnapshotPublisher receives snapshots tagged with the user that owns the session.
type SnapshotPublisher interface {
	Publish(userID string, session models.TrackingSession)
}

// Publishers fans a snapshot out to several publishers in order.
type Publishers []SnapshotPublisher

// Publish hands the snapshot to every publisher.
func (p Publishers) Publish(userID string, session models.TrackingSession) {
	for _, pub := range p {
		pub.Publish(userID, session)
	}
}

// PerturberFactory builds the perturbation source for a new simulator.
type PerturberFactory func() Perturber

// Manager owns one Simulator per user.
type Manager struct {
	mu           sync.Mutex
	opts         Options
	scheduler    Scheduler
	newPerturber PerturberFactory
	publisher    SnapshotPublisher
	simulators   map[string]*Simulator
	closed       bool
}

// NewManager creates a Manager. publisher may be nil.
func NewManager(opts Options, scheduler Scheduler, newPerturber PerturberFactory, publisher SnapshotPublisher) *Manager {
	return &Manager{
		opts:         opts,
		scheduler:    scheduler,
		newPerturber: newPerturber,
		publisher:    publisher,
		simulators:   make(map[string]*Simulator),
	}
}

// Start begins tracking for userID, replacing any session the user already has.
func (m *Manager) Start(userID string, vehicle *models.Truck, destination *models.Station) (models.TrackingSession, error) {
	if vehicle == nil {
		return models.TrackingSession{}, ErrMissingVehicle
	}
	if destination == nil {
		return models.TrackingSession{}, ErrMissingDestination
	}

	// sim.Start runs under m.mu so a concurrent Stop or Close cannot orphan
	// the timer it registers. Simulators never call back into the Manager.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return models.TrackingSession{}, ErrManagerClosed
	}
	sim, ok := m.simulators[userID]
	if !ok {
		sim = NewSimulator(m.opts, m.scheduler, m.newPerturber(), m.publisherFor(userID))
		m.simulators[userID] = sim
	}
	return sim.Start(vehicle, destination)
}

// Stop ends the session of userID. It reports whether a simulator existed.
func (m *Manager) Stop(userID string) bool {
	m.mu.Lock()
	sim, ok := m.simulators[userID]
	delete(m.simulators, userID)
	m.mu.Unlock()

	if ok {
		sim.Stop()
	}
	return ok
}

// Snapshot returns the current session of userID.
func (m *Manager) Snapshot(userID string) (models.TrackingSession, bool) {
	m.mu.Lock()
	sim, ok := m.simulators[userID]
	m.mu.Unlock()
	if !ok {
		return models.TrackingSession{}, false
	}
	return sim.Snapshot()
}

// Active returns the number of users with a simulator.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.simulators)
}

// Close stops every session. Start fails afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	sims := m.simulators
	m.simulators = make(map[string]*Simulator)
	m.closed = true
	m.mu.Unlock()

	for _, sim := range sims {
		sim.Stop()
	}
	log.WithField("sessions", len(sims)).Info("Tracking manager closed")
}

func (m *Manager) publisherFor(userID string) Publisher {
	if m.publisher == nil {
		return nil
	}
	return PublisherFunc(func(session models.TrackingSession) {
		m.publisher.Publish(userID, session)
	})
}
