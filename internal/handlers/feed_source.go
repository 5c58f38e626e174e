package handlers

import (
	"context"
	"errors"
	"fmt"

	"cargoride/internal/models"
	"cargoride/internal/services"
	"cargoride/pkg/livefeed"
	"cargoride/pkg/websocket"
)

const (
	FeedOffers  = "offers"
	FeedService = "service"
	FeedHistory = "history"
)

// FeedObserver tracks how many live feeds are open.
type FeedObserver interface {
	FeedOpened()
	FeedClosed()
}

// FeedSource opens the live feeds websocket clients subscribe to.
type FeedSource struct {
	offers    services.OfferService
	lifecycle services.ServiceLifecycleService
	history   services.HistoryService
	observer  FeedObserver
}

func NewFeedSource(offers services.OfferService, lifecycle services.ServiceLifecycleService, history services.HistoryService, observer FeedObserver) *FeedSource {
	return &FeedSource{
		offers:    offers,
		lifecycle: lifecycle,
		history:   history,
		observer:  observer,
	}
}

// errNotParticipant ends a feed the viewer may not, or may no longer, read.
var errNotParticipant = errors.New("not a participant of this service")

func (s *FeedSource) OpenFeed(ctx context.Context, viewer websocket.Viewer, sub websocket.Subscription) (*livefeed.Feed[any], error) {
	var feed *livefeed.Feed[any]
	switch sub.Feed {
	case FeedOffers:
		sortBy := services.OfferSort(sub.Sort)
		switch sortBy {
		case services.OfferSortDefault, services.OfferSortPrice, services.OfferSortETA:
		default:
			return nil, fmt.Errorf("unknown offer sort %q", sub.Sort)
		}
		svc, err := s.visibleService(ctx, viewer, sub.ServiceID)
		if err != nil {
			return nil, err
		}
		offers, err := s.offers.WatchOffers(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		feed = livefeed.Relay(ctx, offers, func(snapshot []*models.Offer) (any, error) {
			if !canViewOffers(svc, snapshot, viewer.UserID, viewer.Role) {
				return nil, errNotParticipant
			}
			services.SortOffers(snapshot, sortBy)
			return snapshot, nil
		})

	case FeedService:
		if _, err := s.visibleService(ctx, viewer, sub.ServiceID); err != nil {
			return nil, err
		}
		svc, err := s.lifecycle.WatchService(ctx, sub.ServiceID)
		if err != nil {
			return nil, err
		}
		feed = livefeed.Relay(ctx, svc, func(snapshot *models.Service) (any, error) {
			if !canView(snapshot, viewer.UserID, viewer.Role) {
				return nil, errNotParticipant
			}
			return snapshot, nil
		})

	case FeedHistory:
		// Always the caller's own history.
		history, err := s.history.WatchHistory(ctx, viewer.UserID)
		if err != nil {
			return nil, err
		}
		feed = livefeed.Pipe(ctx, history, func(snapshot []*models.Service) any { return snapshot })

	default:
		return nil, fmt.Errorf("unknown feed %q", sub.Feed)
	}

	if s.observer != nil {
		s.observer.FeedOpened()
		go func() {
			<-feed.Done()
			s.observer.FeedClosed()
		}()
	}
	return feed, nil
}

func (s *FeedSource) visibleService(ctx context.Context, viewer websocket.Viewer, serviceID string) (*models.Service, error) {
	svc, err := s.lifecycle.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !canView(svc, viewer.UserID, viewer.Role) {
		return nil, errNotParticipant
	}
	return svc, nil
}
