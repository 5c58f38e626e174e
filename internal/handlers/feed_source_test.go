package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"cargoride/internal/handlers"
	"cargoride/internal/utils"
	"cargoride/pkg/livefeed"
	"cargoride/pkg/websocket"
)

func drain(t *testing.T, feed *livefeed.Feed[any]) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-feed.Updates():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("feed did not stop")
		}
	}
}

func TestFeedsRequireParticipant(t *testing.T) {
	a := newAPI(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serviceID := a.createService("r1", nil)
	offerID := a.submitOffer(serviceID, "d1", 30)

	stranger := websocket.Viewer{UserID: "x9", Role: utils.RoleRequester}
	for _, feed := range []string{handlers.FeedService, handlers.FeedOffers} {
		if _, err := a.feeds.OpenFeed(ctx, stranger, websocket.Subscription{Feed: feed, ServiceID: serviceID}); err == nil {
			t.Errorf("stranger opened the %s feed", feed)
		}
	}

	browsing := websocket.Viewer{UserID: "d3", Role: utils.RoleDriver}
	serviceFeed, err := a.feeds.OpenFeed(ctx, browsing, websocket.Subscription{Feed: handlers.FeedService, ServiceID: serviceID})
	if err != nil {
		t.Fatal(err)
	}
	offersFeed, err := a.feeds.OpenFeed(ctx, browsing, websocket.Subscription{Feed: handlers.FeedOffers, ServiceID: serviceID})
	if err != nil {
		t.Fatal(err)
	}
	owner, err := a.feeds.OpenFeed(ctx, websocket.Viewer{UserID: "r1", Role: utils.RoleRequester}, websocket.Subscription{Feed: handlers.FeedService, ServiceID: serviceID})
	if err != nil {
		t.Fatal(err)
	}
	defer owner.Close()

	if code, env := a.do(http.MethodPost, "/api/v1/services/"+serviceID+"/offers/"+offerID+"/accept", "r1", utils.RoleRequester, nil); code != http.StatusOK {
		t.Fatalf("accept: %d %+v", code, env.Error)
	}

	// The browsing driver loses both feeds once another driver is assigned.
	for _, feed := range []*livefeed.Feed[any]{serviceFeed, offersFeed} {
		drain(t, feed)
		if feed.Err() == nil {
			t.Error("feed ended without an error")
		}
	}

	select {
	case <-owner.Done():
		t.Errorf("owner feed stopped: %v", owner.Err())
	default:
	}
}
