package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		in       Params
		expected Params
	}{
		{name: "defaults applied", in: Params{}, expected: Params{Limit: DefaultLimit, Offset: 0}},
		{name: "valid passthrough", in: Params{Limit: 50, Offset: 100}, expected: Params{Limit: 50, Offset: 100}},
		{name: "limit capped", in: Params{Limit: 500}, expected: Params{Limit: MaxLimit}},
		{name: "negative values reset", in: Params{Limit: -1, Offset: -10}, expected: Params{Limit: DefaultLimit, Offset: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Clamp(tt.in))
		})
	}
}

func TestBuildMeta(t *testing.T) {
	meta := BuildMeta(20, 40, 95)

	assert.Equal(t, 20, meta.Limit)
	assert.Equal(t, 40, meta.Offset)
	assert.Equal(t, int64(95), meta.Total)
	assert.Equal(t, 5, meta.TotalPages)
}

func TestBuildMeta_ZeroTotal(t *testing.T) {
	meta := BuildMeta(20, 0, 0)

	assert.Equal(t, 0, meta.TotalPages)
}
