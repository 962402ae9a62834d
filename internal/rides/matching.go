package rides

import (
	"sort"

	geoclient "github.com/poolride/carpool/internal/geo"
	"github.com/poolride/carpool/pkg/geo"
	"github.com/poolride/carpool/pkg/models"
)

// FilterByProximity computes great-circle distances from the query endpoints
// to each candidate's endpoints, drops candidates where either distance
// exceeds maxDistanceKm, and ranks the rest by combined distance ascending.
//
// Candidates whose coordinates were never geocoded are kept unfiltered and
// appended after the ranked results, preserving their query order. When the
// query itself carries no coordinates no filtering happens at all.
func FilterByProximity(candidates []*models.SearchRideResult, start, end *geoclient.Coordinates, maxDistanceKm float64) []*models.SearchRideResult {
	if start == nil || end == nil {
		return candidates
	}

	ranked := make([]*models.SearchRideResult, 0, len(candidates))
	unranked := make([]*models.SearchRideResult, 0)

	for _, candidate := range candidates {
		if !candidate.HasCoordinates() {
			unranked = append(unranked, candidate)
			continue
		}

		startDist := geo.Haversine(start.Latitude, start.Longitude,
			*candidate.StartLatitude, *candidate.StartLongitude)
		endDist := geo.Haversine(end.Latitude, end.Longitude,
			*candidate.EndLatitude, *candidate.EndLongitude)

		if startDist > maxDistanceKm || endDist > maxDistanceKm {
			continue
		}

		candidate.StartDistanceKm = &startDist
		candidate.EndDistanceKm = &endDist
		ranked = append(ranked, candidate)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].StartDistanceKm+*ranked[i].EndDistanceKm <
			*ranked[j].StartDistanceKm+*ranked[j].EndDistanceKm
	})

	return append(ranked, unranked...)
}
