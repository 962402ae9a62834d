package rides

import "math"

// CalculateFare prices a trip from routed distance and duration:
// distance × ratePerKm + duration × ratePerMinute, rounded to 2 decimals.
// The fare is fixed at ride creation and re-computed only when the route
// changes on edit.
func CalculateFare(distanceKm float64, durationMin int, ratePerKm, ratePerMinute float64) float64 {
	fare := distanceKm*ratePerKm + float64(durationMin)*ratePerMinute
	return math.Round(fare*100) / 100
}
