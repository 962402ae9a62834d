package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		expected               float64
	}{
		{
			name: "berlin to munich",
			lat1: 52.5200, lon1: 13.4050,
			lat2: 48.1351, lon2: 11.5820,
			expected: 504.42,
		},
		{
			name: "same point",
			lat1: 52.5200, lon1: 13.4050,
			lat2: 52.5200, lon2: 13.4050,
			expected: 0,
		},
		{
			name: "short hop across town",
			lat1: 52.5200, lon1: 13.4050,
			lat2: 52.5300, lon2: 13.4200,
			expected: 1.51,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, got, 1.0)
		})
	}
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 60, EstimateDuration(40))
	assert.Equal(t, 90, EstimateDuration(60))
	assert.Equal(t, 0, EstimateDuration(0))
	assert.Equal(t, 8, EstimateDuration(5.5))
}
