package handlers

import (
	"context"
	"net/http"

	"github.com/ukydev/fuel-logistics/internal/fleet"
	"github.com/ukydev/fuel-logistics/internal/models"
)

// Resource serves the CRUD endpoints of one fleet record type.
type Resource[T any] struct {
	list   func(ctx context.Context) ([]T, error)
	get    func(ctx context.Context, id string) (*T, error)
	create func(ctx context.Context, record T) (*T, error)
	update func(ctx context.Context, id string, record T) (*T, error)
	remove func(ctx context.Context, id string) error
}

// StationResource serves /api/stations.
func StationResource(service *fleet.Service) Resource[models.Station] {
	return Resource[models.Station]{
		list:   service.ListStations,
		get:    service.GetStation,
		create: service.CreateStation,
		update: service.UpdateStation,
		remove: service.DeleteStation,
	}
}

// DriverResource serves /api/drivers.
func DriverResource(service *fleet.Service) Resource[models.Driver] {
	return Resource[models.Driver]{
		list:   service.ListDrivers,
		get:    service.GetDriver,
		create: service.CreateDriver,
		update: service.UpdateDriver,
		remove: service.DeleteDriver,
	}
}

// TruckResource serves /api/trucks.
func TruckResource(service *fleet.Service) Resource[models.Truck] {
	return Resource[models.Truck]{
		list:   service.ListTrucks,
		get:    service.GetTruck,
		create: service.CreateTruck,
		update: service.UpdateTruck,
		remove: service.DeleteTruck,
	}
}

// List handles GET /api/{resource}
func (res Resource[T]) List(w http.ResponseWriter, r *http.Request) {
	records, err := res.list(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// Get handles GET /api/{resource}/{id}
func (res Resource[T]) Get(w http.ResponseWriter, r *http.Request) {
	record, err := res.get(r.Context(), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Create handles POST /api/{resource}
func (res Resource[T]) Create(w http.ResponseWriter, r *http.Request) {
	var record T
	if !decodeJSON(w, r, &record) {
		return
	}
	created, err := res.create(r.Context(), record)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/{resource}/{id}
func (res Resource[T]) Update(w http.ResponseWriter, r *http.Request) {
	var record T
	if !decodeJSON(w, r, &record) {
		return
	}
	updated, err := res.update(r.Context(), r.PathValue("id"), record)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/{resource}/{id}
func (res Resource[T]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := res.remove(r.Context(), r.PathValue("id")); err != nil {
		respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
