package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/auth"
	"github.com/ukydev/fuel-logistics/internal/cache"
	"github.com/ukydev/fuel-logistics/internal/config"
	"github.com/ukydev/fuel-logistics/internal/db"
	"github.com/ukydev/fuel-logistics/internal/fleet"
	"github.com/ukydev/fuel-logistics/internal/handlers"
	"github.com/ukydev/fuel-logistics/internal/storage"
	"github.com/ukydev/fuel-logistics/internal/stream"
	"github.com/ukydev/fuel-logistics/internal/tracking"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// closers are released in reverse order on every return path, so the
	// HTTP server goes first and Mongo last.
	var closers []closer
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		shutdown(shutdownCtx, closers)
	}()

	mongoClient, err := db.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	closers = append(closers, closer{name: "mongo", close: mongoClient.Disconnect})
	log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	database := mongoClient.Database(cfg.MongoDB)
	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}

	revoked, err := newRevocationCache(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	closers = append(closers, closer{name: "cache", close: func(context.Context) error { return revoked.Close() }})

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry, revoked)
	if err != nil {
		return err
	}
	blobs, err := storage.NewGridFSStore(database, cfg.PublicBaseURL, cfg.MaxUploadBytes)
	if err != nil {
		return err
	}

	var manager *tracking.Manager
	hub := stream.NewHub(disconnectHandler(cfg.Tracking.StopOnDisconnect, func(userID string) bool {
		return manager.Stop(userID)
	}))
	publishers := tracking.Publishers{hub}

	if cfg.MQTTBroker != "" {
		client, err := stream.ConnectMQTT(cfg.MQTTBroker, cfg.MQTTClientID)
		if err != nil {
			log.WithError(err).Warn("MQTT unavailable, snapshots go to websockets only")
		} else {
			mqttPublisher := stream.NewMQTTPublisher(client, cfg.MQTTTopicPrefix)
			publishers = append(publishers, mqttPublisher)
			closers = append(closers, closer{name: "mqtt", close: func(context.Context) error {
				mqttPublisher.Close()
				return nil
			}})
		}
	}

	manager = tracking.NewManager(cfg.TrackingOptions(), tracking.TickerScheduler{}, newPerturberFactory(cfg.Tracking.MaxStepDegrees), publishers)
	closers = append(closers,
		closer{name: "stream hub", close: func(context.Context) error {
			hub.Close()
			return nil
		}},
		closer{name: "tracking", close: func(context.Context) error {
			manager.Close()
			return nil
		}},
	)

	router := handlers.NewRouter(handlers.Deps{
		Auth:  authService,
		Users: db.NewUserCollection(database.Collection(db.UsersCollection)),
		Fleet: fleet.NewService(
			db.NewStationCollection(database.Collection(db.StationsCollection)),
			db.NewDriverCollection(database.Collection(db.DriversCollection)),
			db.NewTruckCollection(database.Collection(db.TrucksCollection)),
		),
		Blobs:          blobs,
		Tracking:       manager,
		Hub:            hub,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AuthRateLimit:  cfg.AuthRateLimit,
		Health: map[string]handlers.HealthCheck{
			"mongo": func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
			"cache": revoked.Ping,
		},
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	closers = append(closers, closer{name: "http server", close: server.Shutdown})

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-serveErr:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}
	return nil
}

// closer releases one resource acquired by run.
type closer struct {
	name  string
	close func(ctx context.Context) error
}

// shutdown releases closers in reverse acquisition order. A failing closer is
// logged and does not stop the rest.
func shutdown(ctx context.Context, closers []closer) {
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.close(ctx); err != nil {
			log.WithError(err).WithField("resource", c.name).Warn("Shutdown incomplete")
		}
	}
	if len(closers) > 0 {
		log.Info("Shutdown complete")
	}
}

// newRevocationCache uses Redis when redisURL is set and an in-process cache otherwise.
func newRevocationCache(ctx context.Context, redisURL string) (cache.Cache, error) {
	if redisURL == "" {
		log.Info("REDIS_URL not set, revoked tokens are kept in memory")
		return cache.NewMemoryCache(), nil
	}
	adapter, err := cache.NewRedisAdapter(redisURL)
	if err != nil {
		return nil, err
	}
	if err := adapter.Ping(ctx); err != nil {
		adapter.Close()
		return nil, err
	}
	log.Info("Connected to Redis")
	return adapter, nil
}

// newPerturberFactory gives every simulator its own random source.
func newPerturberFactory(maxDegrees float64) tracking.PerturberFactory {
	var seq atomic.Int64
	base := time.Now().UnixNano()
	return func() tracking.Perturber {
		return tracking.NewRandomPerturber(maxDegrees, base+seq.Add(1))
	}
}

// disconnectHandler ends tracking when a user's last stream closes, if enabled.
func disconnectHandler(enabled bool, stop func(userID string) bool) func(userID string) {
	return func(userID string) {
		if !enabled {
			return
		}
		if stop(userID) {
			log.WithField("user_id", userID).Info("Stopped tracking after last stream closed")
		}
	}
}
