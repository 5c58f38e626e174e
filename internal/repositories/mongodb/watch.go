package mongodb

import (
	"context"
	"errors"
	"fmt"

	"cargoride/internal/models"
	"cargoride/pkg/livefeed"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (s *Store) WatchService(ctx context.Context, id string) (*livefeed.Feed[*models.Service], error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"documentKey._id": id}}}}
	query := func(ctx context.Context) (*models.Service, error) {
		svc, err := decodeService(s.services.FindOne(ctx, bson.M{"_id": id}), id)
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return svc, err
	}
	return watchCollection(ctx, s.services, pipeline, query)
}

func (s *Store) WatchOffers(ctx context.Context, serviceID string) (*livefeed.Feed[[]*models.Offer], error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"fullDocument.service_id": serviceID}}}}
	query := func(ctx context.Context) ([]*models.Offer, error) {
		return findOffers(ctx, s.offers, serviceID)
	}
	return watchCollection(ctx, s.offers, pipeline, query)
}

func (s *Store) WatchServicesByRequester(ctx context.Context, requesterID string) (*livefeed.Feed[[]*models.Service], error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"fullDocument.requester_id": requesterID}}}}
	query := func(ctx context.Context) ([]*models.Service, error) {
		return s.findServices(ctx, bson.M{"requester_id": requesterID})
	}
	return watchCollection(ctx, s.services, pipeline, query)
}

func (s *Store) WatchServicesByDriver(ctx context.Context, driverID string) (*livefeed.Feed[[]*models.Service], error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"$or": bson.A{
		bson.M{"fullDocument.driver_id": driverID},
		bson.M{"fullDocument.cancellation.driver_id": driverID},
	}}}}}
	query := func(ctx context.Context) ([]*models.Service, error) {
		return s.findServices(ctx, driverFilter(driverID))
	}
	return watchCollection(ctx, s.services, pipeline, query)
}

// watchCollection opens the change stream before the first query so that no commit between
// the snapshot and the subscription is lost. Every batch of changes triggers one re-query.
func watchCollection[T any](ctx context.Context, collection *mongo.Collection, pipeline mongo.Pipeline, query func(context.Context) (T, error)) (*livefeed.Feed[T], error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	stream, err := collection.Watch(ctx, pipeline, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open change stream on %s: %w", collection.Name(), err)
	}

	feed := livefeed.Start(ctx, func(ctx context.Context, emit func(T) bool) error {
		defer stream.Close(context.Background())

		snapshot, err := query(ctx)
		if err != nil {
			return err
		}
		if !emit(snapshot) {
			return ctx.Err()
		}

		for stream.Next(ctx) {
			for stream.RemainingBatchLength() > 0 && stream.TryNext(ctx) {
			}
			snapshot, err := query(ctx)
			if err != nil {
				return err
			}
			if !emit(snapshot) {
				return ctx.Err()
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := stream.Err(); err != nil {
			return fmt.Errorf("change stream on %s failed: %w", collection.Name(), err)
		}
		return nil
	})
	return feed, nil
}
