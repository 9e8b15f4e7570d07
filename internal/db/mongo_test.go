package db

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fuel-logistics/internal/models"
	"go.mongodb.org/mongo-driver/mongo"
)

// testDatabase returns a clean database, or skips when MONGO_URI is not set.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := ConnectMongo(ctx, uri)
	if err != nil {
		t.Skipf("failed to connect: %v, skipping integration test", err)
	}
	database := client.Database("test_fuel_logistics")
	require.NoError(t, database.Drop(ctx))
	require.NoError(t, EnsureIndexes(ctx, database))
	t.Cleanup(func() {
		_ = database.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return database
}

func TestConnectMongo_BadURI(t *testing.T) {
	client, err := ConnectMongo(context.Background(), "mongodb://bad:uri")
	assert.Error(t, err)
	assert.Nil(t, client)
}

func TestCollections_NilCollection(t *testing.T) {
	ctx := context.Background()

	stations := NewStationCollection(nil)
	assert.ErrorIs(t, stations.InsertStation(ctx, &models.Station{}), ErrNoCollection)
	_, err := stations.FindStations(ctx)
	assert.ErrorIs(t, err, ErrNoCollection)

	drivers := NewDriverCollection(nil)
	_, err = drivers.FindDriverByLicense(ctx, "DL-1")
	assert.ErrorIs(t, err, ErrNoCollection)

	trucks := NewTruckCollection(nil)
	assert.ErrorIs(t, trucks.DeleteTruck(ctx, "507f1f77bcf86cd799439011"), ErrNoCollection)

	users := NewUserCollection(nil)
	assert.ErrorIs(t, users.UpdateLastLogin(ctx, "507f1f77bcf86cd799439011"), ErrNoCollection)
}

func TestObjectID_Invalid(t *testing.T) {
	_, err := objectID("not-an-id")
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestStationCollection_Integration(t *testing.T) {
	database := testDatabase(t)
	ctx := context.Background()
	stations := NewStationCollection(database.Collection(StationsCollection))

	station := &models.Station{
		Name:     "Hosur Road",
		Address:  "12 Hosur Road",
		Location: models.Location{Lat: 12.9, Lon: 77.6},
	}
	require.NoError(t, stations.InsertStation(ctx, station))
	require.False(t, station.ID.IsZero())

	found, err := stations.FindStationByName(ctx, "Hosur Road")
	require.NoError(t, err)
	assert.Equal(t, station.ID, found.ID)

	dup := &models.Station{Name: "Hosur Road", Address: "elsewhere"}
	assert.ErrorIs(t, stations.InsertStation(ctx, dup), ErrDuplicate)

	found.Address = "14 Hosur Road"
	require.NoError(t, stations.UpdateStation(ctx, found.ID.Hex(), *found))
	byID, err := stations.FindStationByID(ctx, found.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, "14 Hosur Road", byID.Address)

	all, err := stations.FindStations(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, stations.DeleteStation(ctx, found.ID.Hex()))
	assert.ErrorIs(t, stations.DeleteStation(ctx, found.ID.Hex()), ErrNotFound)
	_, err = stations.FindStationByID(ctx, found.ID.Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTruckAndDriverCollections_Integration(t *testing.T) {
	database := testDatabase(t)
	ctx := context.Background()
	trucks := NewTruckCollection(database.Collection(TrucksCollection))
	drivers := NewDriverCollection(database.Collection(DriversCollection))

	driver := &models.Driver{Name: "Ravi", LicenseNumber: "KA0120230001"}
	require.NoError(t, drivers.InsertDriver(ctx, driver))
	assert.ErrorIs(t, drivers.InsertDriver(ctx, &models.Driver{Name: "Other", LicenseNumber: "KA0120230001"}), ErrDuplicate)

	truck := &models.Truck{TruckNumber: "KA-01-F-1234", FuelCapacityLiters: 12000, DriverID: driver.ID.Hex()}
	require.NoError(t, trucks.InsertTruck(ctx, truck))

	found, err := trucks.FindTruckByNumber(ctx, "KA-01-F-1234")
	require.NoError(t, err)
	assert.Equal(t, driver.ID.Hex(), found.DriverID)

	list, err := drivers.FindDrivers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.ErrorIs(t, trucks.UpdateTruck(ctx, "507f1f77bcf86cd799439011", *found), ErrNotFound)
}
