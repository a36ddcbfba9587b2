package nav

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPPlanner asks the routing backend for a route between two points.
type HTTPPlanner struct {
	url    string
	client *http.Client
}

func NewHTTPPlanner(url string, timeout time.Duration) *HTTPPlanner {
	return &HTTPPlanner{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPPlanner) Plan(ctx context.Context, origin, destination Point) (Route, error) {
	if p.url == "" {
		return Route{}, fmt.Errorf("no routing backend configured")
	}
	url := fmt.Sprintf("%s/route?from=%f,%f&to=%f,%f",
		p.url, origin.Lat, origin.Lng, destination.Lat, destination.Lng)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("routing backend returned %d", resp.StatusCode)
	}

	var route Route
	if err := json.NewDecoder(resp.Body).Decode(&route); err != nil {
		return Route{}, fmt.Errorf("decode route: %w", err)
	}
	return route, nil
}
