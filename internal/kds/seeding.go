package kds

import (
	"context"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/seed"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Seeds returns all seeds for the display service.
func Seeds(db *mongo.Database) []seed.Seed {
	return []seed.Seed{
		{
			ID:          "demo_stations_v1",
			Description: "Create the demo preparation stations",
			Run: func(ctx context.Context) error {
				return seedDemoStations(ctx, db)
			},
		},
	}
}

func seedDemoStations(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("stations")
	now := time.Now().UTC()

	stations := []bson.M{
		{
			"_id":                     uuid.MustParse("6f1b0a52-3f0e-4c0a-9b77-0d6f8c2a1e01"),
			"name":                    "Grill",
			"color_tag":               "red",
			"display_order":           1,
			"receives_all":            false,
			"filter_enabled":          true,
			"category_filter":         []uuid.UUID{uuid.MustParse("0b7d9c34-1a2e-4f5b-8c6d-7e8f9a0b1c21")},
			"alert_threshold_minutes": 5,
		},
		{
			"_id":                     uuid.MustParse("6f1b0a52-3f0e-4c0a-9b77-0d6f8c2a1e02"),
			"name":                    "Bar",
			"color_tag":               "blue",
			"display_order":           2,
			"receives_all":            false,
			"filter_enabled":          true,
			"category_filter":         []uuid.UUID{uuid.MustParse("0b7d9c34-1a2e-4f5b-8c6d-7e8f9a0b1c22")},
			"alert_threshold_minutes": 3,
		},
		{
			"_id":                     uuid.MustParse("6f1b0a52-3f0e-4c0a-9b77-0d6f8c2a1e03"),
			"name":                    "Expo",
			"color_tag":               "green",
			"display_order":           3,
			"receives_all":            true,
			"filter_enabled":          false,
			"alert_threshold_minutes": 10,
		},
	}

	for _, station := range stations {
		station["active"] = true
		station["schema_version"] = CurrentStationSchemaVersion
		station["created_at"] = now
		station["updated_at"] = now
		station["created_by"] = "demo-seed"
		station["updated_by"] = "demo-seed"

		_, err := collection.UpdateOne(
			ctx,
			bson.M{"_id": station["_id"]},
			bson.M{"$setOnInsert": station},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("cannot create demo station %s: %w", station["name"], err)
		}
	}

	return nil
}

// ApplyDemoSeeds applies demo seeds if enabled via config.
func ApplyDemoSeeds(ctx context.Context, config *apt.Config, dbFn func() *mongo.Database, logger apt.Logger) error {
	enabled, _ := config.GetString("seed.demo.enabled")
	if enabled != "true" {
		return nil
	}

	logger.Info("Demo seeding enabled, applying demo stations...")
	db := dbFn()
	tracker := seed.NewMongoTracker(db)
	seeds := Seeds(db)

	if err := seed.Apply(ctx, tracker, seeds, "kds"); err != nil {
		return fmt.Errorf("demo seed failed: %w", err)
	}

	logger.Info("Demo stations seeded successfully")
	return nil
}
