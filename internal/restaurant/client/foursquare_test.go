package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"dinemate/internal/platform/config"
	"dinemate/internal/restaurant/models"
	"dinemate/pkg/platform/sentinel"
)

const searchFixture = `{
	"results": [
		{
			"fsq_id": "abc123",
			"name": "Thai Basil",
			"categories": [{"name": "Thai Restaurant"}, {"name": "Asian Restaurant"}],
			"location": {"formatted_address": "12 Main St"},
			"price": 2,
			"distance": 850,
			"rating": 8.7
		},
		{
			"fsq_id": "def456",
			"name": "Green Curry House",
			"categories": [{"name": "Thai Restaurant"}],
			"location": {"formatted_address": "99 Oak Ave"},
			"price": 1,
			"distance": 1200
		}
	]
}`

type FoursquareSuite struct {
	suite.Suite
}

func TestFoursquareSuite(t *testing.T) {
	suite.Run(t, new(FoursquareSuite))
}

func (s *FoursquareSuite) newClient(baseURL string) *Foursquare {
	return NewFoursquare(config.Search{
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 2 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *FoursquareSuite) TestDisabledWithoutAPIKey() {
	s.Nil(NewFoursquare(config.Search{BaseURL: "https://example.com"}, slog.Default()))
}

func (s *FoursquareSuite) TestSearchBuildsRequestAndNormalizesResults() {
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchFixture))
	}))
	defer server.Close()

	restaurants, err := s.newClient(server.URL).Search(context.Background(), models.SearchParams{
		Query:        "thai vegetarian",
		MaxPrice:     2,
		RadiusMeters: 5000,
		Latitude:     40.7128,
		Longitude:    -74.006,
		Limit:        10,
	})
	s.Require().NoError(err)

	s.Run("request carries auth and parameters", func() {
		s.Equal("/places/search", captured.URL.Path)
		s.Equal("test-key", captured.Header.Get("Authorization"))

		query := captured.URL.Query()
		s.Equal("thai vegetarian", query.Get("query"))
		s.Equal("2", query.Get("max_price"))
		s.Equal("5000", query.Get("radius"))
		s.Equal("13000", query.Get("categories"))
		s.Equal("10", query.Get("limit"))
		s.NotEmpty(query.Get("ll"))
		s.Empty(query.Get("min_price"), "zero bounds are omitted")
	})

	s.Run("results are normalized", func() {
		s.Require().Len(restaurants, 2)
		s.Equal(models.Restaurant{
			ID:             "abc123",
			Name:           "Thai Basil",
			Categories:     []string{"Thai Restaurant", "Asian Restaurant"},
			Address:        "12 Main St",
			PriceTier:      2,
			DistanceMeters: 850,
			Rating:         8.7,
		}, restaurants[0])
		s.Zero(restaurants[1].Rating, "missing rating stays zero")
	})
}

func (s *FoursquareSuite) TestServerErrorIsUnavailable() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := s.newClient(server.URL).Search(context.Background(), models.SearchParams{Limit: 5})
	s.ErrorIs(err, sentinel.ErrUnavailable)
}

func (s *FoursquareSuite) TestRepeatedFailuresOpenTheCircuit() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := s.newClient(server.URL)
	for i := 0; i < 5; i++ {
		_, err := client.Search(context.Background(), models.SearchParams{Limit: 5})
		s.Require().Error(err)
	}

	server.Close()
	_, err := client.Search(context.Background(), models.SearchParams{Limit: 5})
	s.ErrorIs(err, sentinel.ErrUnavailable, "open circuit fails fast without dialing")
}

func (s *FoursquareSuite) TestClientErrorDoesNotTripTheBreaker() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := s.newClient(server.URL)
	for i := 0; i < 10; i++ {
		_, err := client.Search(context.Background(), models.SearchParams{Limit: 5})
		s.Require().Error(err)
		s.NotErrorIs(err, sentinel.ErrUnavailable)
	}
}
