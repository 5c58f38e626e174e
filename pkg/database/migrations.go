package database

import (
	"context"
	"fmt"
	"time"

	"cargoride/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	ServicesCollection    = "services"
	OffersCollection      = "offers"
	AccountsCollection    = "driver_accounts"
	LedgerCollection      = "ledger_entries"
	MembershipsCollection = "organization_memberships"
)

type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
}

type Migrator struct {
	db         *mongo.Database
	migrations []Migration
	logger     *logger.Logger
}

func NewMigrator(db *mongo.Database, log *logger.Logger) *Migrator {
	return &Migrator{
		db:         db,
		migrations: getMigrations(),
		logger:     log,
	}
}

func (m *Migrator) Up() error {
	err := m.createMigrationsCollection()
	if err != nil {
		return err
	}

	currentVersion, err := m.getCurrentVersion()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if migration.Version <= currentVersion {
			continue
		}
		m.logger.Infof("Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(m.db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		if err := m.updateVersion(migration.Version); err != nil {
			return fmt.Errorf("failed to update migration version: %w", err)
		}
	}

	return nil
}

func (m *Migrator) createMigrationsCollection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collections, err := m.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return err
	}

	for _, name := range collections {
		if name == "migrations" {
			return nil
		}
	}

	return m.db.CreateCollection(ctx, "migrations")
}

func (m *Migrator) getCurrentVersion() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result struct {
		Version int `bson:"version"`
	}

	err := m.db.Collection("migrations").FindOne(ctx, bson.D{}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return 0, nil
		}
		return 0, err
	}

	return result.Version, nil
}

func (m *Migrator) updateVersion(version int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := m.db.Collection("migrations").ReplaceOne(
		ctx,
		bson.D{},
		bson.D{{Key: "version", Value: version}, {Key: "updated_at", Value: time.Now()}},
		options.Replace().SetUpsert(true),
	)

	return err
}

func getMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create services collection with indexes",
			Up:          createServicesIndexes,
		},
		{
			Version:     2,
			Description: "Create offers collection with indexes",
			Up:          createOffersIndexes,
		},
		{
			Version:     3,
			Description: "Create driver accounts and ledger collections with indexes",
			Up:          createLedgerIndexes,
		},
		{
			Version:     4,
			Description: "Create organization memberships collection with indexes",
			Up:          createMembershipsIndexes,
		},
		{
			Version:     5,
			Description: "Index services by the driver recorded on cancellation",
			Up:          createCancellationIndexes,
		},
	}
}

func createServicesIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(ServicesCollection)

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "requester_id", Value: 1}, {Key: "requested_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "requested_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "scheduled_for", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createCancellationIndexes(db *mongo.Database) error {
	_, err := db.Collection(ServicesCollection).Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "cancellation.driver_id", Value: 1}, {Key: "requested_at", Value: -1}},
		Options: options.Index().SetSparse(true),
	})
	return err
}

func createOffersIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(OffersCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "service_id", Value: 1}, {Key: "driver_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "service_id", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

func createLedgerIndexes(db *mongo.Database) error {
	ctx := context.Background()

	ledgerIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "service_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
	}
	if _, err := db.Collection(LedgerCollection).Indexes().CreateMany(ctx, ledgerIndexes); err != nil {
		return err
	}

	accountIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "status", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "owed_commission", Value: -1}},
		},
	}
	_, err := db.Collection(AccountsCollection).Indexes().CreateMany(ctx, accountIndexes)
	return err
}

func createMembershipsIndexes(db *mongo.Database) error {
	ctx := context.Background()
	collection := db.Collection(MembershipsCollection)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "driver_id", Value: 1}, {Key: "organization_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "driver_id", Value: 1}, {Key: "status", Value: 1}},
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
