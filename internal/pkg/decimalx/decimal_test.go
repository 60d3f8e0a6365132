package decimalx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromAndClamp(t *testing.T) {
	assert.True(t, From(math.NaN()).IsZero())
	assert.True(t, From(math.Inf(1)).IsZero())
	assert.Equal(t, 1.0, Float(Clamp(From(1.3), Zero, One)))
	assert.Equal(t, 0.0, Float(Clamp(From(-0.1), Zero, One)))
	assert.Equal(t, 0.3, Float(From(0.1).Add(From(0.2))))
	assert.True(t, GT(0.3, 0.1+0.2-1e-12))
	assert.Equal(t, 0.33, Round(1.0/3, 2))
}
