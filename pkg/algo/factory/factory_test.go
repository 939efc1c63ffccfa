package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryResolvesBothAlgorithms(t *testing.T) {
	r := NewDefaultRegistry()

	ewmaAlgo, err := r.New("ewma")
	require.NoError(t, err)
	assert.NotNil(t, ewmaAlgo)

	shAlgo, err := r.New("sample_and_hold")
	require.NoError(t, err)
	assert.NotNil(t, shAlgo)

	_, err = r.New("nonexistent")
	assert.Error(t, err)
}
