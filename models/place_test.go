package models

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/runesim/kaun/geometry"
	"github.com/stretchr/testify/require"
)

func TestPlaceAssign(t *testing.T) {
	t.Run("assigns an agent", func(t *testing.T) {
		p := NewPlace(1, PlaceHome, geometry.NewVec2D(5, 5), 2)

		err := p.Assign(10)
		require.NoError(t, err)
		require.True(t, p.IsAssigned(10))
		require.Equal(t, 1, p.Occupancy())
	})

	t.Run("assigning the same agent twice is a no-op", func(t *testing.T) {
		p := NewPlace(1, PlaceHome, geometry.Vec2D{}, 1)

		require.NoError(t, p.Assign(10))
		require.NoError(t, p.Assign(10))
		require.Equal(t, 1, p.Occupancy())
	})

	t.Run("assigning beyond capacity fails", func(t *testing.T) {
		p := NewPlace(1, PlaceWork, geometry.Vec2D{}, 2)

		require.NoError(t, p.Assign(10))
		require.NoError(t, p.Assign(11))

		err := p.Assign(12)
		require.Error(t, err)
		require.Equal(t, ErrTypePlaceFull, errors.Type(err))
		require.Equal(t, 2, p.Occupancy())
	})

	t.Run("zero capacity is unlimited", func(t *testing.T) {
		p := NewPlace(1, PlaceSchool, geometry.Vec2D{}, 0)

		for id := uint32(1); id <= 100; id++ {
			require.NoError(t, p.Assign(id))
		}
		require.Equal(t, 100, p.Occupancy())
	})
}

func TestPlaceVacate(t *testing.T) {
	p := NewPlace(1, PlaceHome, geometry.Vec2D{}, 2)
	require.NoError(t, p.Assign(10))

	require.True(t, p.Vacate(10))
	require.False(t, p.IsAssigned(10))
	require.Zero(t, p.Occupancy())

	require.False(t, p.Vacate(10))
}

func TestPlaceRegistryAdd(t *testing.T) {
	t.Run("adds a place", func(t *testing.T) {
		var reg PlaceRegistry

		p := NewPlace(reg.NewID(), PlaceHome, geometry.NewVec2D(1, 1), 4)
		reg.Add(p)

		got, ok := reg.Get(p.ID)
		require.True(t, ok)
		require.Equal(t, p, got)
		require.Equal(t, 1, reg.Len())
	})

	t.Run("adding the same id twice keeps the first", func(t *testing.T) {
		var reg PlaceRegistry

		p := NewPlace(1, PlaceHome, geometry.Vec2D{}, 4)
		reg.Add(p)
		reg.Add(NewPlace(1, PlaceWork, geometry.Vec2D{}, 4))

		got, _ := reg.Get(1)
		require.Equal(t, PlaceHome, got.Kind)
		require.Equal(t, 1, reg.Len())
	})

	t.Run("getting an unknown place fails", func(t *testing.T) {
		var reg PlaceRegistry

		_, ok := reg.Get(42)
		require.False(t, ok)
	})
}

func TestPlaceRegistryByKind(t *testing.T) {
	var reg PlaceRegistry

	reg.Add(NewPlace(reg.NewID(), PlaceHome, geometry.Vec2D{}, 4))
	reg.Add(NewPlace(reg.NewID(), PlaceHome, geometry.Vec2D{}, 4))
	reg.Add(NewPlace(reg.NewID(), PlaceWork, geometry.Vec2D{}, 4))

	require.Len(t, reg.ByKind(PlaceHome), 2)
	require.Len(t, reg.ByKind(PlaceWork), 1)
	require.Empty(t, reg.ByKind(PlaceSchool))
}

func TestPlaceRegistryPlaces(t *testing.T) {
	var reg PlaceRegistry

	reg.Add(NewPlace(3, PlaceWork, geometry.Vec2D{}, 4))
	reg.Add(NewPlace(1, PlaceHome, geometry.Vec2D{}, 4))
	reg.Add(NewPlace(2, PlaceHome, geometry.Vec2D{}, 4))

	places := reg.Places()
	require.Len(t, places, 3)
	require.Equal(t, uint32(1), places[0].ID)
	require.Equal(t, uint32(2), places[1].ID)
	require.Equal(t, uint32(3), places[2].ID)
}

func TestPlaceRegistryAssign(t *testing.T) {
	t.Run("assigns an agent to a place", func(t *testing.T) {
		var reg PlaceRegistry

		p := NewPlace(1, PlaceHome, geometry.Vec2D{}, 2)
		reg.Add(p)

		require.NoError(t, reg.Assign(10, 1))
		require.True(t, p.IsAssigned(10))

		occupancy, err := reg.Occupancy(1)
		require.NoError(t, err)
		require.Equal(t, 1, occupancy)
	})

	t.Run("assigning to an unknown place fails", func(t *testing.T) {
		var reg PlaceRegistry

		err := reg.Assign(10, 42)
		require.Error(t, err)
		require.Equal(t, ErrTypePlaceUnknown, errors.Type(err))
	})

	t.Run("assigning to a full place fails", func(t *testing.T) {
		var reg PlaceRegistry

		reg.Add(NewPlace(1, PlaceHome, geometry.Vec2D{}, 1))
		require.NoError(t, reg.Assign(10, 1))

		err := reg.Assign(11, 1)
		require.Error(t, err)
		require.Equal(t, ErrTypePlaceFull, errors.Type(err))
	})
}

func TestPlaceRegistryVacate(t *testing.T) {
	var reg PlaceRegistry

	p := NewPlace(1, PlaceHome, geometry.Vec2D{}, 2)
	reg.Add(p)
	require.NoError(t, reg.Assign(10, 1))

	reg.Vacate(10, 1)
	require.False(t, p.IsAssigned(10))

	reg.Vacate(10, 1)
	reg.Vacate(10, 42)
}

func TestPlaceRegistryOccupancy(t *testing.T) {
	var reg PlaceRegistry

	_, err := reg.Occupancy(42)
	require.Error(t, err)
	require.Equal(t, ErrTypePlaceUnknown, errors.Type(err))
}
