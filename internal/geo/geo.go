// Package geo ranks professionals by great-circle distance.
package geo

import (
	"math"
	"sort"

	"fixora/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by the Haversine formula.
const EarthRadiusKm = 6371.0

// DefaultCoordinate substitutes for missing coordinates so that an
// incompletely profiled professional can still be ranked.
var DefaultCoordinate = models.NewCoordinate(models.DefaultLatitude, models.DefaultLongitude)

// Ranked pairs an item with its distance from the ranking origin.
type Ranked[T any] struct {
	Item       T
	DistanceKm float64
}

// DistanceKm returns the Haversine distance between two coordinates.
func DistanceKm(origin, destination models.Coordinate) float64 {
	lat1, lon1 := resolve(origin)
	lat2, lon2 := resolve(destination)

	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// Rank orders items by ascending distance from origin. Ties keep input order.
// The input slice is not modified.
func Rank[T any](origin models.Coordinate, items []T, coordinateOf func(T) models.Coordinate) []Ranked[T] {
	ranked := make([]Ranked[T], len(items))
	for i, item := range items {
		ranked[i] = Ranked[T]{Item: item, DistanceKm: DistanceKm(origin, coordinateOf(item))}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].DistanceKm < ranked[j].DistanceKm
	})
	return ranked
}

// resolve fills each missing component from DefaultCoordinate independently.
func resolve(c models.Coordinate) (lat, lng float64) {
	lat, lng = *DefaultCoordinate.Lat, *DefaultCoordinate.Lng
	if c.Lat != nil {
		lat = *c.Lat
	}
	if c.Lng != nil {
		lng = *c.Lng
	}
	return lat, lng
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
