// Package models defines the restaurant search types: the parameters sent
// to the venue API and the normalized results returned to clients.
package models

import (
	"strings"

	prefmodels "dinemate/internal/preference/models"
)

// DefaultLimit bounds a recommendation response when the caller does not
// ask for a specific count.
const DefaultLimit = 10

// maxQueryCuisines caps how many top-ranked cuisines feed the search query.
// Beyond the top few the vote weights are noise, and long queries degrade
// venue API relevance.
const maxQueryCuisines = 3

// SearchParams is the venue API query derived from a group profile.
type SearchParams struct {
	// Query is the free-text search term: top-ranked cuisines plus dietary
	// restrictions.
	Query string
	// MinPrice and MaxPrice bound the venue price tier (1 cheapest .. 4
	// priciest). Zero means unbounded.
	MinPrice int
	MaxPrice int
	// RadiusMeters limits distance from the search origin. Zero means the
	// API default.
	RadiusMeters int
	// Latitude and Longitude anchor the search. Both zero means the API
	// falls back to IP geolocation.
	Latitude  float64
	Longitude float64
	Limit     int
}

// Restaurant is one normalized venue result.
type Restaurant struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Categories     []string `json:"categories"`
	Address        string   `json:"address"`
	PriceTier      int      `json:"price_tier,omitempty"`
	DistanceMeters int      `json:"distance_meters,omitempty"`
	Rating         float64  `json:"rating,omitempty"`
}

// ParamsFromProfile translates a group profile into search parameters.
// Hard constraints bound the search (price ceiling, radius); soft
// preferences shape the query text. Conflicting dimensions contribute
// nothing: the profile's HardConstraints view already excludes them.
func ParamsFromProfile(profile *prefmodels.GroupProfile, limit int) SearchParams {
	if limit <= 0 {
		limit = DefaultLimit
	}
	params := SearchParams{Limit: limit}

	hc := profile.HardConstraints()
	if hc.BudgetCeiling != nil {
		params.MaxPrice = *hc.BudgetCeiling
	}
	if hc.RadiusKm != nil {
		params.RadiusMeters = *hc.RadiusKm * 1000
	}

	var terms []string
	ranked := profile.RankedPreferences()[prefmodels.DimensionCuisine]
	for i, rv := range ranked {
		if i == maxQueryCuisines {
			break
		}
		terms = append(terms, rv.Value)
	}
	terms = append(terms, hc.Dietary...)
	params.Query = strings.Join(terms, " ")

	return params
}
