package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		amount float64
		want   int64
	}{
		{amount: 10, want: 1000},
		{amount: 20.5, want: 2050},
		{amount: 19.99, want: 1999},
		{amount: 0.1 + 0.2, want: 30},
		{amount: 1.005, want: 101},
		{amount: 0, want: 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MinorUnits(tt.amount), "amount %v", tt.amount)
	}
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" EUR ")
	require.NoError(t, err)
	assert.Equal(t, "eur", code)

	_, err = NormalizeCurrency("EURO")
	assert.Error(t, err)
}
