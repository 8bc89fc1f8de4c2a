// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"log/slog"
)

const defaultRestaurantResults = 5

// RestaurantTool searches restaurants by location and criteria. Mock mode
// fabricates a ranked result list until a places backend is wired.
type RestaurantTool struct{}

// NewRestaurant builds the restaurant search capability.
func NewRestaurant() *RestaurantTool {
	return &RestaurantTool{}
}

func (t *RestaurantTool) Schema() Schema {
	return Schema{
		Name:        "restaurant_search",
		Description: "Search for restaurants by location, cuisine, and other criteria",
		Parameters: []Parameter{
			{Name: "location", Type: "string", Description: "Location to search (city, neighborhood, address)", Required: true},
			{Name: "cuisine", Type: "string", Description: "Type of cuisine (Italian, Chinese, etc.)"},
			{Name: "price_range", Type: "string", Description: "Price range", Enum: []string{"$", "$$", "$$$", "$$$$"}},
			{Name: "party_size", Type: "integer", Description: "Number of people in the group"},
			{Name: "max_results", Type: "integer", Description: "Maximum number of results to return", Default: defaultRestaurantResults},
		},
		Metadata: Metadata{
			ReadOnly:   true,
			Idempotent: true,
			OpenWorld:  true,
			MockMode:   true,
		},
	}
}

func (t *RestaurantTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	location, err := stringParam(params, "location")
	if err != nil {
		return nil, err
	}
	cuisine := optionalString(params, "cuisine")
	maxResults := intParam(params, "max_results", defaultRestaurantResults)
	if maxResults > defaultRestaurantResults {
		maxResults = defaultRestaurantResults
	}

	cuisineLabel := cuisine
	if cuisineLabel == "" {
		cuisineLabel = "Various"
	}
	resultCuisine := cuisine
	if resultCuisine == "" {
		resultCuisine = "Mixed"
	}

	restaurants := make([]map[string]any, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		price := "$$"
		if i >= 3 {
			price = "$$$"
		}
		restaurants = append(restaurants, map[string]any{
			"name":        fmt.Sprintf("%s Bistro %d", cuisineLabel, i+1),
			"address":     fmt.Sprintf("%d Main St, %s", i*100+10, location),
			"rating":      4.0 + float64(i)*0.1,
			"price_level": price,
			"cuisine":     resultCuisine,
			"phone":       fmt.Sprintf("+1-555-%d", 1000+i),
			"url":         fmt.Sprintf("https://example.com/restaurant-%d", i+1),
		})
	}

	slog.InfoContext(ctx, "tool.restaurant.mock_search", "location", location, "count", len(restaurants))

	return map[string]any{
		"restaurants":  restaurants,
		"result_count": len(restaurants),
	}, nil
}

var _ Tool = (*RestaurantTool)(nil)
