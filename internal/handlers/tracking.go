package handlers

import (
	"net/http"

	"github.com/ukydev/fuel-logistics/internal/fleet"
	"github.com/ukydev/fuel-logistics/internal/middleware"
	"github.com/ukydev/fuel-logistics/internal/models"
	"github.com/ukydev/fuel-logistics/internal/stream"
	"github.com/ukydev/fuel-logistics/internal/tracking"
)

// TrackingHandler starts, stops and streams simulated tracking sessions.
type TrackingHandler struct {
	manager *tracking.Manager
	fleet   *fleet.Service
	hub     *stream.Hub
}

// NewTrackingHandler creates a tracking handler.
func NewTrackingHandler(manager *tracking.Manager, fleetService *fleet.Service, hub *stream.Hub) *TrackingHandler {
	return &TrackingHandler{manager: manager, fleet: fleetService, hub: hub}
}

// Start begins tracking the selected truck toward the selected station.
func (h *TrackingHandler) Start(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindAuth, "User context not found")
		return
	}

	var req models.TrackingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.VehicleID == "" {
		respondError(w, r, tracking.ErrMissingVehicle)
		return
	}
	if req.DestinationID == "" {
		respondError(w, r, tracking.ErrMissingDestination)
		return
	}

	truck, err := h.fleet.GetTruck(r.Context(), req.VehicleID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	station, err := h.fleet.GetStation(r.Context(), req.DestinationID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	session, err := h.manager.Start(claims.UserID, truck, station)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Stop ends the caller's session.
func (h *TrackingHandler) Stop(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindAuth, "User context not found")
		return
	}
	h.manager.Stop(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// Get returns the latest snapshot of the caller's session.
func (h *TrackingHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindAuth, "User context not found")
		return
	}
	session, ok := h.manager.Snapshot(claims.UserID)
	if !ok {
		writeError(w, http.StatusNotFound, KindNotFound, "No active tracking session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// Stream upgrades to a websocket carrying every snapshot of the caller's session.
func (h *TrackingHandler) Stream(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, KindAuth, "User context not found")
		return
	}
	var initial *models.TrackingSession
	if session, ok := h.manager.Snapshot(claims.UserID); ok {
		initial = &session
	}
	h.hub.ServeWS(w, r, claims.UserID, initial)
}
