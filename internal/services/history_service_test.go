package services

import (
	"context"
	"testing"
	"time"

	"cargoride/internal/models"
)

func TestMergeHistory(t *testing.T) {
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	ended := base.Add(3 * time.Hour)

	older := &models.Service{ID: "a", RequestedAt: base, UpdatedAt: base}
	newer := &models.Service{ID: "a", RequestedAt: base, EndedAt: &ended, UpdatedAt: ended}
	b := &models.Service{ID: "b", RequestedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)}
	c := &models.Service{ID: "c", RequestedAt: base.Add(2 * time.Hour), UpdatedAt: base.Add(2 * time.Hour)}

	merged := MergeHistory([]*models.Service{older, b}, []*models.Service{newer, c})

	if len(merged) != 3 {
		t.Fatalf("merged = %d services", len(merged))
	}
	want := []string{"a", "c", "b"}
	for i, svc := range merged {
		if svc.ID != want[i] {
			t.Errorf("merged[%d] = %s, want %s", i, svc.ID, want[i])
		}
	}
	if merged[0].EndedAt == nil {
		t.Error("later snapshot of a should win")
	}

	// Order of the legs must not matter.
	swapped := MergeHistory([]*models.Service{newer, c}, []*models.Service{older, b})
	if swapped[0].EndedAt == nil {
		t.Error("later snapshot of a should win regardless of leg")
	}
}

func TestMergeHistoryEmpty(t *testing.T) {
	if got := MergeHistory(nil, nil); len(got) != 0 {
		t.Errorf("merged = %v", got)
	}
}

func TestHistoryCombinesRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	asRequester := h.createService(t, "u1")
	h.clock.Advance(time.Minute)

	// u1 drives for someone else.
	other := h.createService(t, "r2")
	offer := h.submit(t, other.ID, "u1", 15, 10)
	h.accept(t, other.ID, offer.ID)

	h.createService(t, "stranger")

	history, err := h.history.History(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("history = %d services", len(history))
	}
	if history[0].ID != other.ID || history[1].ID != asRequester.ID {
		t.Errorf("history order = %s, %s", history[0].ID, history[1].ID)
	}

	_, err = h.history.History(ctx, "")
	assertKind(t, err, models.ErrValidation)
}

func TestWatchHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	own := h.createService(t, "u1")

	feed, err := h.history.WatchHistory(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}

	waitForHistory(t, feed.Updates(), func(s []*models.Service) bool {
		return len(s) == 1 && s[0].ID == own.ID
	})

	h.clock.Advance(time.Minute)
	driven := h.createService(t, "r2")
	offer := h.submit(t, driven.ID, "u1", 15, 10)
	h.accept(t, driven.ID, offer.ID)

	snapshot := waitForHistory(t, feed.Updates(), func(s []*models.Service) bool { return len(s) == 2 })
	seen := map[string]bool{}
	for _, svc := range snapshot {
		if seen[svc.ID] {
			t.Errorf("duplicate service %s in history", svc.ID)
		}
		seen[svc.ID] = true
	}
	if snapshot[0].ID != driven.ID {
		t.Errorf("newest service should come first, got %s", snapshot[0].ID)
	}

	// Completion reaches the view through the driver leg.
	if _, err := h.lifecycle.CompleteTrip(ctx, driven.ID, nil); err != nil {
		t.Fatal(err)
	}
	waitForHistory(t, feed.Updates(), func(s []*models.Service) bool {
		return len(s) == 2 && s[0].Status == models.ServiceStatusCompleted
	})

	feed.Close()
	select {
	case <-feed.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("history feed did not shut down")
	}
	if err := feed.Err(); err != nil {
		t.Errorf("feed error after close = %v", err)
	}
}

func TestWatchHistoryFirstFrameHasBothLegs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	own := h.createService(t, "u1")
	h.clock.Advance(time.Minute)
	driven := h.createService(t, "r2")
	h.accept(t, driven.ID, h.submit(t, driven.ID, "u1", 15, 10).ID)

	feed, err := h.history.WatchHistory(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	defer feed.Close()

	select {
	case first := <-feed.Updates():
		if len(first) != 2 || first[0].ID != driven.ID || first[1].ID != own.ID {
			t.Errorf("first frame = %v", historyIDs(first))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no history frame")
	}
}

func historyIDs(services []*models.Service) []string {
	ids := make([]string, len(services))
	for i, svc := range services {
		ids[i] = svc.ID
	}
	return ids
}

func TestWatchHistoryStopsWithContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())

	feed, err := h.history.WatchHistory(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	select {
	case <-feed.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("history feed ignored cancellation")
	}
}

func waitForHistory(t *testing.T, updates <-chan []*models.Service, done func([]*models.Service) bool) []*models.Service {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				t.Fatal("history feed closed")
			}
			if done(snapshot) {
				return snapshot
			}
		case <-deadline:
			t.Fatal("timed out waiting for history snapshot")
		}
	}
}
