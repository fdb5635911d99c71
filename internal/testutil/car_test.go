package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kvorm/internal/meta"
)

func TestCarRegistry_Resolves(t *testing.T) {
	md, err := CarRegistry().Resolve("Car")
	require.NoError(t, err)

	assert.Equal(t, "Car", md.Prefix)
	assert.Equal(t, "id", md.Identifier.Name)
	require.Len(t, md.Indexes, 2)
	assert.Equal(t, "color", md.Indexes[0].Name)
	assert.Equal(t, meta.Equality, md.Indexes[0].Kind)
	assert.Equal(t, "manufactureDate", md.Indexes[1].Name)
	assert.Equal(t, meta.SortedSet, md.Indexes[1].Kind)
	assert.True(t, md.Indexes[1].Temporal)
}

func TestDate(t *testing.T) {
	assert.Equal(t, int64(1356998400), Date("2013-01-01T00:00:00Z").Unix())
	assert.Panics(t, func() { Date("yesterday") })
}
