package dcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryCentreWidth1Idx0(t *testing.T) {
	// idx=0, width=1, B=4MHz: centre = bottom + 500 kHz.
	centreKHz := uint32(900_000)
	bottom := int64(centreKHz) - 4*500
	centre, ok := primaryChannelCentreKHz(centreKHz, 4, 1, 0)
	assert.True(t, ok)
	assert.Equal(t, uint32(bottom+500), centre)
}

func TestPrimaryCentreWidth2Idx3(t *testing.T) {
	// idx=3, width=2, B=4MHz: centre = bottom + 2000 + 1000 kHz.
	centreKHz := uint32(900_000)
	bottom := int64(centreKHz) - 4*500
	centre, ok := primaryChannelCentreKHz(centreKHz, 4, 2, 3)
	assert.True(t, ok)
	assert.Equal(t, uint32(bottom+2000+1000), centre)
}

func TestPrimaryCentreMustLieStrictlyBelowTop(t *testing.T) {
	// An index large enough to push the derived centre past the top edge
	// of the operating channel must be rejected as a program error.
	_, ok := primaryChannelCentreKHz(900_000, 1, 1, 10)
	assert.False(t, ok)
}

func TestSecondaryChannelOffset(t *testing.T) {
	assert.Equal(t, 0, secondaryChannelOffset(1, 0))
	assert.Equal(t, 0, secondaryChannelOffset(1, 1))
	assert.Equal(t, 1, secondaryChannelOffset(2, 0))
	assert.Equal(t, -1, secondaryChannelOffset(2, 1))
}
