package maps

import "context"

// RouteEstimator prices nothing; it only measures a route so that services can be created
// with a distance and an expected duration.
type RouteEstimator interface {
	EstimateRoute(ctx context.Context, request *RouteRequest) (*RouteEstimate, error)
}

type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Stop is one point of the route. Location wins over Address when both are set.
type Stop struct {
	Address  string    `json:"address"`
	Location *Location `json:"location,omitempty"`
}

type RouteRequest struct {
	Stops []Stop `json:"stops"`
	Mode  string `json:"mode"` // driving by default
}

type RouteEstimate struct {
	DistanceKm      float64 `json:"distance_km"`
	DurationMinutes int     `json:"duration_minutes"`
	Summary         string  `json:"summary"`
	Polyline        string  `json:"polyline"`
}
