// Package distance resolves the road distance and toll total between two
// coordinates. The routing/toll provider is an external collaborator; the
// engines only ever see an already-resolved Quote.
package distance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/fleet-pricing/internal/models"
)

// Quote is one resolved distance+toll lookup.
type Quote struct {
	DistanceKm decimal.Decimal `json:"distance_km"`
	TollTotal  decimal.Decimal `json:"toll_total"`
	TollCount  int             `json:"toll_count"`
}

// Provider is the interface the contract workflow uses to get quotes.
type Provider interface {
	Quote(ctx context.Context, from, to models.Coord) (Quote, error)
}

// HTTPProvider queries a routing service's route endpoint for distance and
// toll totals between two points.
type HTTPProvider struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewHTTPProvider(endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (p *HTTPProvider) Quote(ctx context.Context, from, to models.Coord) (Quote, error) {
	url := fmt.Sprintf("%s/route/v3?point=%.6f,%.6f&point=%.6f,%.6f&toll=true",
		p.Endpoint, from.Lat, from.Lon, to.Lat, to.Lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Quote{}, err
	}
	if p.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.APIKey)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("distance: route request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("distance: route request: status %d", resp.StatusCode)
	}

	var out struct {
		Paths []struct {
			DistanceMeters float64 `json:"distance"`
			Toll           struct {
				Total float64 `json:"total"`
				Count int     `json:"count"`
			} `json:"toll"`
		} `json:"paths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Quote{}, fmt.Errorf("distance: decode route response: %w", err)
	}
	if len(out.Paths) == 0 {
		return Quote{}, fmt.Errorf("distance: no route between %.6f,%.6f and %.6f,%.6f", from.Lat, from.Lon, to.Lat, to.Lon)
	}
	path := out.Paths[0]
	return Quote{
		DistanceKm: decimal.NewFromFloat(path.DistanceMeters / 1000.0).Round(2),
		TollTotal:  decimal.NewFromFloat(path.Toll.Total).Round(0),
		TollCount:  path.Toll.Count,
	}, nil
}

// FallbackEstimate produces a straight-line haversine estimate with no toll
// information. Only for degraded mode when the provider is unreachable and
// the caller explicitly accepts an estimate.
func FallbackEstimate(from, to models.Coord) Quote {
	return Quote{DistanceKm: decimal.NewFromFloat(HaversineKm(from, to)).Round(2)}
}

// EstimateProvider serves FallbackEstimate behind the Provider interface, for
// local runs without a routing endpoint.
type EstimateProvider struct{}

func (EstimateProvider) Quote(ctx context.Context, from, to models.Coord) (Quote, error) {
	return FallbackEstimate(from, to), nil
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(a, b models.Coord) float64 {
	const earthRadiusKm = 6371.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}
