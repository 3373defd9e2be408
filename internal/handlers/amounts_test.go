package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(f float64) *float64 { return &f }

func TestItemTotal(t *testing.T) {
	total, err := itemTotal("totalAmount", 19.99, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 59.97, total)

	total, err = itemTotal("totalAmount", 0.1, 3, ptr(0.3))
	require.NoError(t, err)
	assert.Equal(t, 0.3, total)

	_, err = itemTotal("items[1].totalAmount", 10, 2, ptr(25))
	assert.EqualError(t, err, "items[1].totalAmount must equal unitAmount × quantity (20.00)")
}

func TestSumAmounts(t *testing.T) {
	assert.Equal(t, 0.6, sumAmounts([]float64{0.1, 0.2, 0.3}))
	assert.Zero(t, sumAmounts(nil))
}
