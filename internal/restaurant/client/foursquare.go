// Package client implements the Foursquare places search collaborator.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"dinemate/internal/platform/config"
	"dinemate/internal/restaurant/models"
	"dinemate/pkg/platform/circuit"
	"dinemate/pkg/platform/sentinel"
)

// Searcher is the venue search seam the recommendation service consumes.
type Searcher interface {
	Search(ctx context.Context, params models.SearchParams) ([]models.Restaurant, error)
}

// probeEvery is how often an open circuit lets a call through to test
// whether the API recovered.
const probeEvery = 10

// Foursquare calls the places search API. A circuit breaker sheds load
// while the API is failing so recommendation requests degrade fast instead
// of stacking up behind timeouts; every probeEvery-th call probes for
// recovery.
type Foursquare struct {
	baseURL string
	apiKey  string
	client  *http.Client
	breaker *circuit.Breaker
	skipped atomic.Uint64
	logger  *slog.Logger
}

// NewFoursquare builds the client. Returns nil when no API key is
// configured; callers treat a nil Searcher as search disabled.
func NewFoursquare(cfg config.Search, logger *slog.Logger) *Foursquare {
	if cfg.APIKey == "" {
		return nil
	}
	return &Foursquare{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: circuit.New("foursquare",
			circuit.WithFailureThreshold(5),
			circuit.WithSuccessThreshold(2),
		),
		logger: logger,
	}
}

type searchResponse struct {
	Results []placeResult `json:"results"`
}

type placeResult struct {
	FsqID      string `json:"fsq_id"`
	Name       string `json:"name"`
	Categories []struct {
		Name string `json:"name"`
	} `json:"categories"`
	Location struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"location"`
	Price    int     `json:"price"`
	Distance int     `json:"distance"`
	Rating   float64 `json:"rating"`
}

// Search runs one places search. Server-side failures and an open circuit
// surface as sentinel.ErrUnavailable so the service layer can translate
// them uniformly.
func (f *Foursquare) Search(ctx context.Context, params models.SearchParams) ([]models.Restaurant, error) {
	if f.breaker.IsOpen() && f.skipped.Add(1)%probeEvery != 0 {
		return nil, sentinel.ErrUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/places/search", nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", f.apiKey)
	req.Header.Set("Accept", "application/json")
	req.URL.RawQuery = buildQuery(params).Encode()

	resp, err := f.client.Do(req)
	if err != nil {
		f.recordFailure()
		return nil, fmt.Errorf("call places search: %w", sentinel.ErrUnavailable)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		f.recordFailure()
		return nil, fmt.Errorf("places search status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	default:
		// Client-side errors (bad key, bad params) are not the API's
		// fault; they must not trip the breaker.
		return nil, fmt.Errorf("places search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		f.recordFailure()
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	if _, change := f.breaker.RecordSuccess(); change.Closed {
		f.logger.Info("places search circuit closed", "breaker", f.breaker.Name())
	}

	restaurants := make([]models.Restaurant, 0, len(parsed.Results))
	for _, place := range parsed.Results {
		restaurants = append(restaurants, normalizePlace(place))
	}
	return restaurants, nil
}

func (f *Foursquare) recordFailure() {
	if _, change := f.breaker.RecordFailure(); change.Opened {
		f.logger.Warn("places search circuit opened", "breaker", f.breaker.Name())
	}
}

func buildQuery(params models.SearchParams) url.Values {
	query := url.Values{}
	query.Set("categories", "13000") // dining and drinking
	query.Set("limit", strconv.Itoa(params.Limit))
	if params.Query != "" {
		query.Set("query", params.Query)
	}
	if params.MinPrice > 0 {
		query.Set("min_price", strconv.Itoa(params.MinPrice))
	}
	if params.MaxPrice > 0 {
		query.Set("max_price", strconv.Itoa(params.MaxPrice))
	}
	if params.RadiusMeters > 0 {
		query.Set("radius", strconv.Itoa(params.RadiusMeters))
	}
	if params.Latitude != 0 || params.Longitude != 0 {
		query.Set("ll", fmt.Sprintf("%f,%f", params.Latitude, params.Longitude))
	}
	return query
}

func normalizePlace(place placeResult) models.Restaurant {
	categories := make([]string, 0, len(place.Categories))
	for _, category := range place.Categories {
		categories = append(categories, category.Name)
	}
	return models.Restaurant{
		ID:             place.FsqID,
		Name:           place.Name,
		Categories:     categories,
		Address:        place.Location.FormattedAddress,
		PriceTier:      place.Price,
		DistanceMeters: place.Distance,
		Rating:         place.Rating,
	}
}
