package service

import (
	"context"
	"testing"

	"fixora/internal/models"
	"fixora/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func professionalAt(id, profession string, lat, lng float64) models.Professional {
	return models.Professional{
		ID:           id,
		Name:         id,
		Profession:   profession,
		Location:     models.Location{Coordinate: models.NewCoordinate(lat, lng)},
		Rating:       4.5,
		Availability: models.AvailabilityAvailable,
	}
}

func TestMatchingService_FindProfessionals(t *testing.T) {
	ctx := context.Background()
	shared := newShared(store.NewMemoryBackend())
	origin := models.NewCoordinate(models.DefaultLatitude, models.DefaultLongitude)
	svc := NewMatchingService(shared, origin, testLogger())

	chennai := professionalAt("chennai", models.ProfessionPlumber, 13.0827, 80.2707)
	local := professionalAt("local", models.ProfessionPlumber, models.DefaultLatitude, models.DefaultLongitude)
	away := professionalAt("away", models.ProfessionPlumber, 12.9716, 77.6)
	away.Availability = models.AvailabilityUnavailable
	carpenter := professionalAt("carpenter", models.ProfessionCarpenter, 12.98, 77.6)
	require.NoError(t, shared.Professionals().ReplaceAll(ctx, map[string]models.Professional{
		chennai.ID: chennai, local.ID: local, away.ID: away, carpenter.ID: carpenter,
	}))

	t.Run("NearestFirst", func(t *testing.T) {
		got := svc.FindProfessionals(ctx, models.ProfessionPlumber, origin)
		require.Len(t, got, 2)
		assert.Equal(t, "local", got[0].ID)
		assert.InDelta(t, 0, got[0].DistanceKm, 1e-9)
		assert.Equal(t, "chennai", got[1].ID)
		assert.InDelta(t, 290, got[1].DistanceKm, 5)
	})

	t.Run("ProfessionIsCaseInsensitive", func(t *testing.T) {
		got := svc.FindProfessionals(ctx, "pLuMbEr", origin)
		assert.Len(t, got, 2)
	})

	t.Run("EmptyProfessionReturnsAllAvailable", func(t *testing.T) {
		got := svc.FindProfessionals(ctx, "", origin)
		require.Len(t, got, 3)
		assert.Equal(t, "local", got[0].ID)
		assert.Equal(t, "carpenter", got[1].ID)
	})

	t.Run("UnknownProfession", func(t *testing.T) {
		got := svc.FindProfessionals(ctx, "Painter", origin)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("MissingOriginUsesDefault", func(t *testing.T) {
		got := svc.FindProfessionals(ctx, models.ProfessionPlumber, models.Coordinate{})
		require.Len(t, got, 2)
		assert.Equal(t, "local", got[0].ID)
	})
}

func TestMatchingService_TiesAreDeterministic(t *testing.T) {
	ctx := context.Background()
	shared := newShared(store.NewMemoryBackend())
	svc := NewMatchingService(shared, models.Coordinate{}, testLogger())

	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, shared.Professionals().Insert(ctx, id, professionalAt(id, models.ProfessionElectrician, 1, 1)))
	}

	for i := 0; i < 5; i++ {
		got := svc.FindProfessionals(ctx, models.ProfessionElectrician, models.NewCoordinate(0, 0))
		require.Len(t, got, 3)
		assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	}
}

func TestMatchingService_Upsert(t *testing.T) {
	ctx := context.Background()
	svc := NewMatchingService(newShared(store.NewMemoryBackend()), models.Coordinate{}, testLogger())

	p := professionalAt("p1", "electrician", 1, 2)
	p.Availability = ""
	saved, err := svc.Upsert(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, models.ProfessionElectrician, saved.Profession)
	assert.Equal(t, models.AvailabilityAvailable, saved.Availability)

	saved.Rating = 3.9
	_, err = svc.Upsert(ctx, *saved)
	require.NoError(t, err)

	got, err := svc.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3.9, got.Rating)

	bad := professionalAt("", "Painter", 0, 0)
	bad.Rating = 7
	bad.Pricing.HourlyRate = -1
	_, err = svc.Upsert(ctx, bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	fields := make([]string, 0, len(verr.Fields))
	for _, f := range verr.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{"id", "name", "profession", "rating", "pricing"}, fields)

	_, err = svc.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMatchingService_SeedDemo(t *testing.T) {
	ctx := context.Background()
	shared := newShared(store.NewMemoryBackend())
	svc := NewMatchingService(shared, models.Coordinate{}, testLogger())

	added, err := svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	edited, err := svc.Get(ctx, "plumber_demo")
	require.NoError(t, err)
	edited.Availability = models.AvailabilityUnavailable
	_, err = svc.Upsert(ctx, *edited)
	require.NoError(t, err)

	added, err = svc.SeedDemo(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	got, err := svc.Get(ctx, "plumber_demo")
	require.NoError(t, err)
	assert.Equal(t, models.AvailabilityUnavailable, got.Availability, "seeding keeps existing profiles")

	plumbers := svc.FindProfessionals(ctx, "Plumber", models.Coordinate{})
	assert.Empty(t, plumbers)
	assert.Len(t, svc.FindProfessionals(ctx, "", models.Coordinate{}), 2)
}
