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

type ItemRepo struct {
	client     *mongo.Client
	db         *mongo.Database
	collection *mongo.Collection
	logger     apt.Logger
	config     *apt.Config
}

func NewItemRepo(config *apt.Config, logger apt.Logger) *ItemRepo {
	return &ItemRepo{
		logger: logger,
		config: config,
	}
}

func (r *ItemRepo) Start(ctx context.Context) error {
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
	r.collection = r.db.Collection("items")

	stationIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "station_id", Value: 1}, {Key: "state", Value: 1}},
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, stationIndexModel); err != nil {
		return fmt.Errorf("cannot create station_id index: %w", err)
	}

	orderIndexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "order_id", Value: 1}},
	}
	if _, err := r.collection.Indexes().CreateOne(ctx, orderIndexModel); err != nil {
		return fmt.Errorf("cannot create order_id index: %w", err)
	}

	r.logger.Infof("Connected to MongoDB: %s, database: %s, collection: items", mongoURL, dbName)
	return nil
}

func (r *ItemRepo) GetDatabase() *mongo.Database {
	return r.db
}

func (r *ItemRepo) Stop(ctx context.Context) error {
	if r.client != nil {
		if err := r.client.Disconnect(ctx); err != nil {
			return fmt.Errorf("cannot disconnect from MongoDB: %w", err)
		}
		r.logger.Info("Disconnected from MongoDB")
	}
	return nil
}

func (r *ItemRepo) Create(ctx context.Context, item *kds.ItemInstance) error {
	_, err := r.collection.InsertOne(ctx, item)
	if err != nil {
		return fmt.Errorf("cannot insert item: %w", err)
	}
	return nil
}

func (r *ItemRepo) Update(ctx context.Context, item *kds.ItemInstance) error {
	filter := bson.M{"_id": item.ID}
	update := bson.M{"$set": item}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("cannot update item: %w", err)
	}

	if result.MatchedCount == 0 {
		return kds.ErrNotFound
	}

	return nil
}

func (r *ItemRepo) FindByID(ctx context.Context, id kds.ItemID) (*kds.ItemInstance, error) {
	var item kds.ItemInstance
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, kds.ErrNotFound
		}
		return nil, fmt.Errorf("cannot find item: %w", err)
	}
	return &item, nil
}

func (r *ItemRepo) List(ctx context.Context, filter kds.ItemFilter) ([]kds.ItemInstance, error) {
	query := bson.M{}

	if filter.StationID != nil {
		query["station_id"] = *filter.StationID
	}

	if filter.OrderID != nil {
		query["order_id"] = *filter.OrderID
	}

	if filter.LineItemID != nil {
		query["line_item_id"] = *filter.LineItemID
	}

	if filter.State != nil {
		query["state"] = *filter.State
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "received_at", Value: 1}})

	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("cannot find items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []kds.ItemInstance
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("cannot decode items: %w", err)
	}

	return items, nil
}
