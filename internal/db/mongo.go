package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names.
const (
	StationsCollection = "stations"
	DriversCollection  = "drivers"
	TrucksCollection   = "trucks"
	UsersCollection    = "users"
)

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo.Connect error: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo.Ping error: %w", err)
	}
	return client, nil
}

// EnsureIndexes creates the unique indexes backing the identifier checks.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	unique := map[string]string{
		StationsCollection: "name",
		DriversCollection:  "license_number",
		TrucksCollection:   "truck_number",
		UsersCollection:    "email",
	}
	for collection, field := range unique {
		model := mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
		if _, err := database.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create %s.%s index: %w", collection, field, err)
		}
		log.WithFields(log.Fields{"collection": collection, "field": field}).Debug("Ensured unique index")
	}
	return nil
}

// documents holds the CRUD plumbing shared by the typed collections.
type documents[T any] struct {
	coll *mongo.Collection
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return oid, nil
}

func mapWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func (d documents[T]) insert(ctx context.Context, doc interface{}) (primitive.ObjectID, error) {
	if d.coll == nil {
		return primitive.NilObjectID, ErrNoCollection
	}
	res, err := d.coll.InsertOne(ctx, doc)
	if err != nil {
		return primitive.NilObjectID, mapWriteError(err)
	}
	oid, _ := res.InsertedID.(primitive.ObjectID)
	return oid, nil
}

func (d documents[T]) all(ctx context.Context, sortField string) ([]T, error) {
	if d.coll == nil {
		return nil, ErrNoCollection
	}
	cursor, err := d.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: sortField, Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := make([]T, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d documents[T]) one(ctx context.Context, filter bson.M) (*T, error) {
	if d.coll == nil {
		return nil, ErrNoCollection
	}
	var doc T
	if err := d.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (d documents[T]) byID(ctx context.Context, id string) (*T, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return d.one(ctx, bson.M{"_id": oid})
}

func (d documents[T]) replace(ctx context.Context, id string, doc interface{}) error {
	if d.coll == nil {
		return ErrNoCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	result, err := d.coll.ReplaceOne(ctx, bson.M{"_id": oid}, doc)
	if err != nil {
		return mapWriteError(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (d documents[T]) remove(ctx context.Context, id string) error {
	if d.coll == nil {
		return ErrNoCollection
	}
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	result, err := d.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MongoStationCollection implements StationCollection.
type MongoStationCollection struct {
	docs documents[models.Station]
}

// NewStationCollection wraps the stations collection.
func NewStationCollection(coll *mongo.Collection) *MongoStationCollection {
	return &MongoStationCollection{docs: documents[models.Station]{coll: coll}}
}

// InsertStation inserts a station and sets its generated ID.
func (c *MongoStationCollection) InsertStation(ctx context.Context, station *models.Station) error {
	id, err := c.docs.insert(ctx, station)
	if err != nil {
		return err
	}
	station.ID = id
	return nil
}

// FindStations returns every station sorted by name.
func (c *MongoStationCollection) FindStations(ctx context.Context) ([]models.Station, error) {
	return c.docs.all(ctx, "name")
}

// FindStationByID finds a station by its ID
func (c *MongoStationCollection) FindStationByID(ctx context.Context, id string) (*models.Station, error) {
	return c.docs.byID(ctx, id)
}

// FindStationByName finds a station by its unique name
func (c *MongoStationCollection) FindStationByName(ctx context.Context, name string) (*models.Station, error) {
	return c.docs.one(ctx, bson.M{"name": name})
}

// UpdateStation replaces a station document
func (c *MongoStationCollection) UpdateStation(ctx context.Context, id string, station models.Station) error {
	return c.docs.replace(ctx, id, station)
}

// DeleteStation deletes a station from the database
func (c *MongoStationCollection) DeleteStation(ctx context.Context, id string) error {
	return c.docs.remove(ctx, id)
}

// MongoDriverCollection implements DriverCollection.
type MongoDriverCollection struct {
	docs documents[models.Driver]
}

// NewDriverCollection wraps the drivers collection.
func NewDriverCollection(coll *mongo.Collection) *MongoDriverCollection {
	return &MongoDriverCollection{docs: documents[models.Driver]{coll: coll}}
}

// InsertDriver inserts a driver and sets its generated ID.
func (c *MongoDriverCollection) InsertDriver(ctx context.Context, driver *models.Driver) error {
	id, err := c.docs.insert(ctx, driver)
	if err != nil {
		return err
	}
	driver.ID = id
	return nil
}

// FindDrivers returns every driver sorted by name.
func (c *MongoDriverCollection) FindDrivers(ctx context.Context) ([]models.Driver, error) {
	return c.docs.all(ctx, "name")
}

// FindDriverByID finds a driver by its ID
func (c *MongoDriverCollection) FindDriverByID(ctx context.Context, id string) (*models.Driver, error) {
	return c.docs.byID(ctx, id)
}

// FindDriverByLicense finds a driver by license number
func (c *MongoDriverCollection) FindDriverByLicense(ctx context.Context, licenseNumber string) (*models.Driver, error) {
	return c.docs.one(ctx, bson.M{"license_number": licenseNumber})
}

// UpdateDriver replaces a driver document
func (c *MongoDriverCollection) UpdateDriver(ctx context.Context, id string, driver models.Driver) error {
	return c.docs.replace(ctx, id, driver)
}

// DeleteDriver deletes a driver from the database
func (c *MongoDriverCollection) DeleteDriver(ctx context.Context, id string) error {
	return c.docs.remove(ctx, id)
}

// MongoTruckCollection implements TruckCollection.
type MongoTruckCollection struct {
	docs documents[models.Truck]
}

// NewTruckCollection wraps the trucks collection.
func NewTruckCollection(coll *mongo.Collection) *MongoTruckCollection {
	return &MongoTruckCollection{docs: documents[models.Truck]{coll: coll}}
}

// InsertTruck inserts a truck and sets its generated ID.
func (c *MongoTruckCollection) InsertTruck(ctx context.Context, truck *models.Truck) error {
	id, err := c.docs.insert(ctx, truck)
	if err != nil {
		return err
	}
	truck.ID = id
	return nil
}

// FindTrucks returns every truck sorted by truck number.
func (c *MongoTruckCollection) FindTrucks(ctx context.Context) ([]models.Truck, error) {
	return c.docs.all(ctx, "truck_number")
}

// FindTruckByID finds a truck by its ID
func (c *MongoTruckCollection) FindTruckByID(ctx context.Context, id string) (*models.Truck, error) {
	return c.docs.byID(ctx, id)
}

// FindTruckByNumber finds a truck by its unique truck number
func (c *MongoTruckCollection) FindTruckByNumber(ctx context.Context, truckNumber string) (*models.Truck, error) {
	return c.docs.one(ctx, bson.M{"truck_number": truckNumber})
}

// UpdateTruck replaces a truck document
func (c *MongoTruckCollection) UpdateTruck(ctx context.Context, id string, truck models.Truck) error {
	return c.docs.replace(ctx, id, truck)
}

// DeleteTruck deletes a truck from the database
func (c *MongoTruckCollection) DeleteTruck(ctx context.Context, id string) error {
	return c.docs.remove(ctx, id)
}
