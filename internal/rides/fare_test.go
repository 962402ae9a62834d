package rides

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateFare(t *testing.T) {
	tests := []struct {
		name          string
		distanceKm    float64
		durationMin   int
		ratePerKm     float64
		ratePerMinute float64
		want          float64
	}{
		{
			name:          "standard trip",
			distanceKm:    100,
			durationMin:   90,
			ratePerKm:     0.50,
			ratePerMinute: 0.10,
			want:          59.00,
		},
		{
			name:          "short hop",
			distanceKm:    2.5,
			durationMin:   8,
			ratePerKm:     0.50,
			ratePerMinute: 0.10,
			want:          2.05,
		},
		{
			name:          "rounds to two decimals",
			distanceKm:    3.333,
			durationMin:   10,
			ratePerKm:     0.50,
			ratePerMinute: 0.10,
			want:          2.67,
		},
		{
			name:          "zero distance",
			distanceKm:    0,
			durationMin:   0,
			ratePerKm:     0.50,
			ratePerMinute: 0.10,
			want:          0,
		},
		{
			name:          "custom rates",
			distanceKm:    10,
			durationMin:   15,
			ratePerKm:     1.20,
			ratePerMinute: 0.25,
			want:          15.75,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateFare(tt.distanceKm, tt.durationMin, tt.ratePerKm, tt.ratePerMinute)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}
