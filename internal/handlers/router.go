package handlers

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/auth"
	"github.com/ukydev/fuel-logistics/internal/db"
	"github.com/ukydev/fuel-logistics/internal/fleet"
	"github.com/ukydev/fuel-logistics/internal/middleware"
	"github.com/ukydev/fuel-logistics/internal/models"
	"github.com/ukydev/fuel-logistics/internal/storage"
	"github.com/ukydev/fuel-logistics/internal/stream"
	"github.com/ukydev/fuel-logistics/internal/tracking"
)

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the API is built from.
type Deps struct {
	Auth           *auth.Service
	Users          db.UserCollection
	Fleet          *fleet.Service
	Blobs          storage.BlobStore
	Tracking       *tracking.Manager
	Hub            *stream.Hub
	MaxUploadBytes int64
	// AuthRateLimit is the number of sign-in/sign-up requests allowed per client per minute.
	AuthRateLimit int
	Health        map[string]HealthCheck
}

// NewRouter wires every API route behind authentication.
func NewRouter(d Deps) http.Handler {
	authMW := middleware.NewAuthMiddleware(d.Auth)
	limiter := middleware.NewRateLimitMiddleware().RateLimit(d.AuthRateLimit, 60)
	can := func(permission string, h http.HandlerFunc) http.Handler {
		return authMW.RequirePermission(permission)(h)
	}

	authHandler := NewAuthHandler(d.Auth, d.Users, d.Tracking)
	uploads := NewUploadHandler(d.Blobs, d.MaxUploadBytes)
	trackingHandler := NewTrackingHandler(d.Tracking, d.Fleet, d.Hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", healthHandler(d.Health))

	mux.Handle("POST /api/auth/signup", limiter(http.HandlerFunc(authHandler.SignUp)))
	mux.Handle("POST /api/auth/signin", limiter(http.HandlerFunc(authHandler.SignIn)))
	mux.HandleFunc("POST /api/auth/signout", authHandler.SignOut)
	mux.HandleFunc("GET /api/auth/me", authHandler.Me)

	routeResource(mux, "/api/stations", StationResource(d.Fleet), can)
	routeResource(mux, "/api/drivers", DriverResource(d.Fleet), can)
	routeResource(mux, "/api/trucks", TruckResource(d.Fleet), can)

	mux.Handle("POST /api/uploads", can(models.PermManageFleet, uploads.Upload))
	mux.HandleFunc("GET /api/files/{id}", uploads.Download)

	mux.Handle("POST /api/tracking/start", can(models.PermTrack, trackingHandler.Start))
	mux.Handle("POST /api/tracking/stop", can(models.PermTrack, trackingHandler.Stop))
	mux.HandleFunc("GET /api/tracking", trackingHandler.Get)
	mux.HandleFunc("GET /api/tracking/stream", trackingHandler.Stream)

	return logRequests(authMW.Authenticate(mux))
}

func routeResource[T any](mux *http.ServeMux, base string, res Resource[T], can func(string, http.HandlerFunc) http.Handler) {
	mux.Handle("GET "+base, can(models.PermViewFleet, res.List))
	mux.Handle("POST "+base, can(models.PermManageFleet, res.Create))
	mux.Handle("GET "+base+"/{id}", can(models.PermViewFleet, res.Get))
	mux.Handle("PUT "+base+"/{id}", can(models.PermManageFleet, res.Update))
	mux.Handle("DELETE "+base+"/{id}", can(models.PermManageFleet, res.Delete))
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.WithError(err).WithField("dependency", name).Warn("Health check failed")
				report[name] = "unavailable"
				report["status"] = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			report[name] = "ok"
		}
		writeJSON(w, status, report)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Hijack is needed by the websocket upgrade on the stream route.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start),
		}).Debug("Handled request")
	})
}
