package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	key := Key{Layer: "stage1/bn0", Direction: Forward, Quantity: QuantityMean}
	assert.Equal(t, "stage1_bn0.Forward.Mean", key.String())

	key = Key{Layer: "stage1/bn0", Direction: Backward, Quantity: QuantityGradProd}
	assert.Equal(t, "stage1_bn0.Backward.GradProd", key.String())

	// Forward/backward and per-quantity keys of the same layer never collide.
	seen := make(map[string]bool)
	for _, dir := range DirectionValues() {
		for _, q := range QuantityValues() {
			s := Key{Layer: "bn", Direction: dir, Quantity: q}.String()
			assert.False(t, seen[s], "duplicate key %q", s)
			seen[s] = true
		}
	}
}

func TestEnums(t *testing.T) {
	assert.Equal(t, "Forward", Forward.String())
	assert.Equal(t, "Backward", Backward.String())
	assert.Equal(t, "Variance", QuantityVariance.String())
	assert.Equal(t, "GradSum", QuantityGradSum.String())

	dir, err := DirectionString("Backward")
	require.NoError(t, err)
	assert.Equal(t, Backward, dir)

	q, err := QuantityString("mean")
	require.NoError(t, err)
	assert.Equal(t, QuantityMean, q)

	_, err = QuantityString("bogus")
	require.Error(t, err)
}
