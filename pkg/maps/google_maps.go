package maps

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"googlemaps.github.io/maps"
)

type GoogleMapsProvider struct {
	client *maps.Client
}

func NewGoogleMapsProvider(apiKey string) (*GoogleMapsProvider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}

	return &GoogleMapsProvider{
		client: client,
	}, nil
}

func (g *GoogleMapsProvider) EstimateRoute(ctx context.Context, request *RouteRequest) (*RouteEstimate, error) {
	req, err := buildDirectionsRequest(request)
	if err != nil {
		return nil, err
	}

	routes, _, err := g.client.Directions(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("directions request failed: %w", err)
	}
	if len(routes) == 0 {
		return nil, errors.New("no route found")
	}

	route := routes[0]
	var meters int
	var duration time.Duration
	for _, leg := range route.Legs {
		meters += leg.Distance.Meters
		duration += leg.Duration
	}
	return newRouteEstimate(meters, duration, route.Summary, route.OverviewPolyline.Points), nil
}

func buildDirectionsRequest(request *RouteRequest) (*maps.DirectionsRequest, error) {
	if request == nil || len(request.Stops) < 2 {
		return nil, errors.New("route needs an origin and a destination")
	}

	mode := maps.TravelModeDriving
	if request.Mode != "" {
		mode = maps.Mode(request.Mode)
	}

	stops := request.Stops
	req := &maps.DirectionsRequest{
		Origin:      formatStop(stops[0]),
		Destination: formatStop(stops[len(stops)-1]),
		Mode:        mode,
	}

	// Add waypoints if any
	for _, stop := range stops[1 : len(stops)-1] {
		req.Waypoints = append(req.Waypoints, formatStop(stop))
	}
	return req, nil
}

func formatStop(stop Stop) string {
	if stop.Location != nil {
		return fmt.Sprintf("%f,%f", stop.Location.Latitude, stop.Location.Longitude)
	}
	return stop.Address
}

func newRouteEstimate(meters int, duration time.Duration, summary, polyline string) *RouteEstimate {
	minutes := int(math.Ceil(duration.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &RouteEstimate{
		DistanceKm:      math.Round(float64(meters)/10) / 100,
		DurationMinutes: minutes,
		Summary:         summary,
		Polyline:        polyline,
	}
}
