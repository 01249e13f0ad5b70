package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceIDSource(t *testing.T) {
	ids := NewSequenceIDSource("report")
	assert.Equal(t, "report-0001", ids.NewID())
	assert.Equal(t, "report-0002", ids.NewID())

	ids.Reset()
	assert.Equal(t, "report-0001", ids.NewID())
}

func TestFixedJitter_Clamped(t *testing.T) {
	j := FixedJitter(100)
	assert.Equal(t, int64(100), j(1000))
	assert.Equal(t, int64(49), j(50))
	assert.Equal(t, int64(0), j(0))
}
