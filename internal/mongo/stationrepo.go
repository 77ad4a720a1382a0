package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/kds/internal/kds"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type StationRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     apt.Logger
	config     *apt.Config
}

func NewStationRepo(config *apt.Config, logger apt.Logger) *StationRepo {
	return &StationRepo{
		logger: logger,
		config: config,
	}
}

func (r *StationRepo) Start(ctx context.Context) error {
	mongoURL, _ := r.config.GetString("db.mongo.url")
	if mongoURL == "" {
		mongoURL = "mongodb://localhost:27017"
	}

	dbName, _ := r.config.GetString("db.mongo.name")
	if dbName == "" {
		dbName = "appetite_kds"
	}

	clientOptions := options.Client().ApplyURI(mongoURL).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("cannot connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("cannot ping MongoDB: %w", err)
	}

	r.client = client
	r.db = client.Database(dbName)
	r.collection = r.db.Collection("stations")

	nameIndexModel := mongo.IndexModel{
		Keys:    bson.D{{Key: "name", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, nameIndexModel); err != nil {
		return fmt.Errorf("cannot create name index: %w", err)
	}

	activeIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "active", Value: 1}},
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, activeIndexModel); err != nil {
		return fmt.Errorf("cannot create active index: %w", err)
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: stations", mongoURL, dbName)
	return nil
}

func (r *StationRepo) GetDatabase() *mongo.Database {
	return r.db
}

func (r *StationRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (r *StationRepo) Create(ctx context.Context, station *kds.Station) error {
	_, err := r.collection.InsertOne(ctx, station)
	if err != nil {
		return fmt.Errorf("cannot insert station: %w", err)
	}
	return nil
}

func (r *StationRepo) Update(ctx context.Context, station *kds.Station) error {
	filter := bson.M{"_id": station.ID}
	update := bson.M{"$set": station}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update station: %w", err)
	}

	if result.MatchedCount == 0 {
		return kds.ErrNotFound
	}

	return nil
}

func (r *StationRepo) FindByID(ctx context.Context, id kds.StationID) (*kds.Station, error) {
	var station kds.Station
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&station)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, kds.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find station: %w", err)
	}
	return &station, nil
}

func (r *StationRepo) List(ctx context.Context, activeOnly bool) ([]kds.Station, error) {
	query := bson.M{}
	if activeOnly {
		query["active"] = true
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "display_order", Value: 1}})

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find stations: %w", err)
	}
	defer cursor.Close(ctx)

	var stations []kds.Station
	if err := cursor.All(ctx, &stations); err != nil {
		return nil, fmt.Errorf("cannot decode stations: %w", err)
	}

	return stations, nil
}
