package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/models"
	"github.com/ukydev/fuel-logistics/internal/stream"
)

// demoStations seeds an empty fleet so a session can start.
var demoStations = []models.Station{
	{Name: "Mumbai Port Depot", Address: "Mumbai Port Trust, Mumbai", Location: models.Location{Lat: 19.0760, Lon: 72.8777}},
	{Name: "Chennai Ennore Terminal", Address: "Ennore, Chennai", Location: models.Location{Lat: 13.2142, Lon: 80.3203}},
	{Name: "Hyderabad Cherlapally Depot", Address: "Cherlapally, Hyderabad", Location: models.Location{Lat: 17.4700, Lon: 78.6010}},
	{Name: "Mysuru Ring Road Pump", Address: "Ring Road, Mysuru", Location: models.Location{Lat: 12.2958, Lon: 76.6394}},
}

var demoTruck = models.Truck{TruckNumber: "KA-01-SIM-0001", FuelCapacityLiters: 12000}

// Options configures one headless run.
type Options struct {
	APIURL      string
	Token       string
	Email       string
	Password    string
	TruckNumber string
	StationName string
	Seed        bool
	// Duration bounds the run; zero means until the session ends or the process is interrupted.
	Duration time.Duration
}

type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Kind, e.Message)
}

func newAPIClient(baseURL, token string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&envelope)
		return &apiError{Status: resp.StatusCode, Kind: envelope.Error.Kind, Message: envelope.Error.Message}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *apiClient) signIn(ctx context.Context, email, password string) error {
	var resp models.AuthResponse
	if err := c.do(ctx, http.MethodPost, "/auth/signin", models.SignInRequest{Email: email, Password: password}, &resp); err != nil {
		return err
	}
	c.token = resp.Token
	log.WithFields(log.Fields{"email": resp.User.Email, "role": resp.User.Role}).Info("Signed in")
	return nil
}

// pickRoute chooses the truck and station by name, falling back to the first of each.
func pickRoute(trucks []models.Truck, stations []models.Station, truckNumber, stationName string) (*models.Truck, *models.Station, error) {
	var truck *models.Truck
	for i := range trucks {
		if truckNumber == "" || trucks[i].TruckNumber == truckNumber {
			truck = &trucks[i]
			break
		}
	}
	if truck == nil {
		return nil, nil, fmt.Errorf("no truck matches %q", truckNumber)
	}

	var station *models.Station
	for i := range stations {
		if stationName == "" || stations[i].Name == stationName {
			station = &stations[i]
			break
		}
	}
	if station == nil {
		return nil, nil, fmt.Errorf("no station matches %q", stationName)
	}
	return truck, station, nil
}

func (c *apiClient) seed(ctx context.Context, trucks []models.Truck, stations []models.Station) ([]models.Truck, []models.Station, error) {
	if len(stations) == 0 {
		for _, s := range demoStations {
			var created models.Station
			if err := c.do(ctx, http.MethodPost, "/stations", s, &created); err != nil {
				return nil, nil, fmt.Errorf("failed to create station %s: %w", s.Name, err)
			}
			log.WithFields(log.Fields{"station_id": created.ID.Hex(), "name": created.Name}).Info("Created station")
			stations = append(stations, created)
		}
	}
	if len(trucks) == 0 {
		var created models.Truck
		if err := c.do(ctx, http.MethodPost, "/trucks", demoTruck, &created); err != nil {
			return nil, nil, fmt.Errorf("failed to create truck: %w", err)
		}
		log.WithFields(log.Fields{"truck_id": created.ID.Hex(), "truck_number": created.TruckNumber}).Info("Created truck")
		trucks = append(trucks, created)
	}
	return trucks, stations, nil
}

// streamURL turns the API base URL into the websocket URL of the tracking stream.
func streamURL(apiURL, token string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiURL, "/") + "/tracking/stream")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// follow logs snapshots until the session leaves OnRoute or ctx ends. It returns the last snapshot seen.
func follow(ctx context.Context, wsURL string) (models.TrackingSession, error) {
	var last models.TrackingSession
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return last, fmt.Errorf("failed to open stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		conn.Close()
	}()

	for {
		var msg stream.Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return last, nil
			}
			return last, fmt.Errorf("stream closed: %w", err)
		}
		if msg.Type != stream.MessageSnapshot {
			continue
		}
		last = msg.Session
		log.WithFields(log.Fields{
			"tick":        last.Ticks,
			"lat":         strconv.FormatFloat(last.CurrentPosition.Lat, 'f', 5, 64),
			"lon":         strconv.FormatFloat(last.CurrentPosition.Lon, 'f', 5, 64),
			"distance_km": strconv.FormatFloat(last.DistanceCoveredKm, 'f', 3, 64),
			"fuel_liters": strconv.FormatFloat(last.FuelLevelLiters, 'f', 2, 64),
			"eta":         last.EstimatedTimeArrival,
			"status":      last.Status,
		}).Info("Tracking snapshot")
		if last.Status != models.StatusOnRoute {
			return last, nil
		}
	}
}

func run(ctx context.Context, opts Options) (models.TrackingSession, error) {
	client := newAPIClient(opts.APIURL, opts.Token)
	signedIn := false
	if client.token == "" {
		if opts.Email == "" || opts.Password == "" {
			return models.TrackingSession{}, errors.New("set SIM_AUTH_TOKEN or SIM_EMAIL and SIM_PASSWORD")
		}
		if err := client.signIn(ctx, opts.Email, opts.Password); err != nil {
			return models.TrackingSession{}, err
		}
		signedIn = true
	}

	var trucks []models.Truck
	var stations []models.Station
	if err := client.do(ctx, http.MethodGet, "/trucks", nil, &trucks); err != nil {
		return models.TrackingSession{}, err
	}
	if err := client.do(ctx, http.MethodGet, "/stations", nil, &stations); err != nil {
		return models.TrackingSession{}, err
	}
	if opts.Seed {
		var err error
		if trucks, stations, err = client.seed(ctx, trucks, stations); err != nil {
			return models.TrackingSession{}, err
		}
	}

	truck, station, err := pickRoute(trucks, stations, opts.TruckNumber, opts.StationName)
	if err != nil {
		return models.TrackingSession{}, err
	}

	var session models.TrackingSession
	req := models.TrackingRequest{VehicleID: truck.ID.Hex(), DestinationID: station.ID.Hex()}
	if err := client.do(ctx, http.MethodPost, "/tracking/start", req, &session); err != nil {
		return models.TrackingSession{}, err
	}
	log.WithFields(log.Fields{
		"truck":       truck.TruckNumber,
		"destination": station.Name,
		"eta":         session.EstimatedTimeArrival,
	}).Info("Tracking started")

	followCtx := ctx
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		followCtx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}
	wsURL, err := streamURL(opts.APIURL, client.token)
	if err != nil {
		return session, err
	}
	last, followErr := follow(followCtx, wsURL)
	if last.Ticks > 0 || last.VehicleID != "" {
		session = last
	}

	// the parent context may already be cancelled
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.do(cleanupCtx, http.MethodPost, "/tracking/stop", nil, nil); err != nil {
		log.WithError(err).Warn("Failed to stop tracking")
	}
	if signedIn {
		if err := client.do(cleanupCtx, http.MethodPost, "/auth/signout", nil, nil); err != nil {
			log.WithError(err).Warn("Failed to sign out")
		}
	}
	return session, followErr
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Failed to read .env")
	}

	opts := Options{
		APIURL:      os.Getenv("API_BASE_URL"),
		Token:       os.Getenv("SIM_AUTH_TOKEN"),
		Email:       os.Getenv("SIM_EMAIL"),
		Password:    os.Getenv("SIM_PASSWORD"),
		TruckNumber: os.Getenv("SIM_TRUCK_NUMBER"),
		StationName: os.Getenv("SIM_STATION_NAME"),
		Seed:        os.Getenv("SIM_SEED") == "true",
	}
	if opts.APIURL == "" {
		opts.APIURL = "http://localhost:8080/api"
	}
	if v := os.Getenv("SIM_DURATION_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Duration = time.Duration(n) * time.Second
		}
	}

	log.WithFields(log.Fields{
		"api_url":  opts.APIURL,
		"truck":    opts.TruckNumber,
		"station":  opts.StationName,
		"duration": opts.Duration,
	}).Info("Starting headless tracking client")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	final, err := run(ctx, opts)
	if err != nil {
		log.WithError(err).Fatal("Tracking client failed")
	}
	log.WithFields(log.Fields{
		"status":      final.Status,
		"ticks":       final.Ticks,
		"distance_km": final.DistanceCoveredKm,
		"fuel_liters": final.FuelLevelLiters,
	}).Info("Tracking client finished")
}
