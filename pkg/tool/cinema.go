// SPDX-License-Identifier: Apache-2.0

package tool

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CinemaTool searches movies and showtimes near a location. Purely mock data
// until a listings backend exists.
type CinemaTool struct {
	// now is replaceable in tests; defaults to time.Now.
	now func() time.Time
}

// NewCinema builds the cinema search capability.
func NewCinema() *CinemaTool {
	return &CinemaTool{now: time.Now}
}

func (t *CinemaTool) Schema() Schema {
	return Schema{
		Name:        "cinema_search",
		Description: "Search for movies and showtimes at nearby cinemas",
		Parameters: []Parameter{
			{Name: "location", Type: "string", Description: "Location to search for cinemas", Required: true},
			{Name: "date", Type: "string", Description: "Date to search for showtimes (ISO8601)"},
			{Name: "movie_title", Type: "string", Description: "Specific movie title to search for"},
		},
		Metadata: Metadata{
			ReadOnly:   true,
			Idempotent: true,
			OpenWorld:  true,
			MockMode:   true,
		},
	}
}

func (t *CinemaTool) Execute(ctx context.Context, params map[string]any) (map[string]any, error) {
	location, err := stringParam(params, "location")
	if err != nil {
		return nil, err
	}

	target := t.now()
	if raw := optionalString(params, "date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", raw, err)
		}
		target = parsed
	}

	movieTitle := optionalString(params, "movie_title")
	showtimes := []string{"14:00", "16:30", "19:00", "21:30"}
	genres := []string{"Action", "Comedy", "Drama", "Thriller"}

	movies := make([]map[string]any, 0, 3)
	for i := 0; i < 3; i++ {
		title := movieTitle
		if title == "" {
			title = fmt.Sprintf("Popular Movie %d", i+1)
		}
		movies = append(movies, map[string]any{
			"title":     title,
			"genre":     genres[i%len(genres)],
			"rating":    "PG-13",
			"showtimes": showtimes,
			"theater":   fmt.Sprintf("Cinema %s - Theater %d", location, i+1),
			"address":   fmt.Sprintf("%d Movie Boulevard, %s", (i+1)*100, location),
			"price":     "$12.00",
		})
	}

	slog.InfoContext(ctx, "tool.cinema.mock_search", "location", location, "count", len(movies))

	return map[string]any{
		"movies": movies,
		"date":   target.Format("2006-01-02"),
	}, nil
}

var _ Tool = (*CinemaTool)(nil)
