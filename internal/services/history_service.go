package services

import (
	"context"
	"fmt"
	"sort"

	"cargoride/internal/models"
	"cargoride/pkg/livefeed"
)

type HistoryService interface {
	// WatchHistory streams every service the viewer took part in, as requester or as driver.
	WatchHistory(ctx context.Context, viewerID string) (*livefeed.Feed[[]*models.Service], error)
	History(ctx context.Context, viewerID string) ([]*models.Service, error)
}

type historyService struct {
	*engine
}

func NewHistoryService(deps Dependencies) HistoryService {
	return &historyService{engine: newEngine(deps, "history")}
}

func (s *historyService) History(ctx context.Context, viewerID string) ([]*models.Service, error) {
	if viewerID == "" {
		return nil, models.NewValidationError("history", "viewer is required")
	}
	asRequester, err := s.store.ListServicesByRequester(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	asDriver, err := s.store.ListServicesByDriver(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	return MergeHistory(asRequester, asDriver), nil
}

func (s *historyService) WatchHistory(ctx context.Context, viewerID string) (*livefeed.Feed[[]*models.Service], error) {
	if viewerID == "" {
		return nil, models.NewValidationError("watch history", "viewer is required")
	}

	// Both legs hang off one context so closing the merged feed tears both down.
	legCtx, cancelLegs := context.WithCancel(ctx)
	requesterLeg, err := s.store.WatchServicesByRequester(legCtx, viewerID)
	if err != nil {
		cancelLegs()
		return nil, err
	}
	driverLeg, err := s.store.WatchServicesByDriver(legCtx, viewerID)
	if err != nil {
		cancelLegs()
		requesterLeg.Close()
		return nil, err
	}

	log := s.logger.WithUserID(viewerID)
	return livefeed.Start(ctx, func(ctx context.Context, emit func([]*models.Service) bool) error {
		defer func() {
			cancelLegs()
			requesterLeg.Close()
			driverLeg.Close()
		}()

		var asRequester, asDriver []*models.Service
		var haveRequester, haveDriver bool
		requesterUpdates, driverUpdates := requesterLeg.Updates(), driverLeg.Updates()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case snapshot, ok := <-requesterUpdates:
				if !ok {
					return legError(ctx, "requester", requesterLeg.Err())
				}
				asRequester, haveRequester = snapshot, true
			case snapshot, ok := <-driverUpdates:
				if !ok {
					return legError(ctx, "driver", driverLeg.Err())
				}
				asDriver, haveDriver = snapshot, true
			}
			// A frame built from one leg would show a partial history.
			if !haveRequester || !haveDriver {
				continue
			}

			merged := MergeHistory(asRequester, asDriver)
			log.WithField("services", len(merged)).Debug("History updated")
			if !emit(merged) {
				return nil
			}
		}
	}), nil
}

func legError(ctx context.Context, leg string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		return fmt.Errorf("history %s feed closed", leg)
	}
	return fmt.Errorf("history %s feed: %w", leg, err)
}

// MergeHistory unions the two legs by id, preferring the later snapshot of a service, and
// orders the result by end time (or request time) newest first.
func MergeHistory(asRequester, asDriver []*models.Service) []*models.Service {
	byID := make(map[string]*models.Service, len(asRequester)+len(asDriver))
	for _, leg := range [][]*models.Service{asRequester, asDriver} {
		for _, svc := range leg {
			if prev, ok := byID[svc.ID]; ok && prev.UpdatedAt.After(svc.UpdatedAt) {
				continue
			}
			byID[svc.ID] = svc
		}
	}

	merged := make([]*models.Service, 0, len(byID))
	for _, svc := range byID {
		merged = append(merged, svc)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		ti, tj := merged[i].HistoryTime(), merged[j].HistoryTime()
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return merged[i].ID < merged[j].ID
	})
	return merged
}
