package report

import (
	"context"
	"math"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance between two coordinates.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Nearby returns reports with coordinates inside radiusKm of a point,
// newest first.
func (s *Service) Nearby(ctx context.Context, lat, lng, radiusKm float64) ([]Report, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	nearby := make([]Report, 0)
	for _, r := range all {
		if r.Location == nil || (r.Location.Lat == 0 && r.Location.Lng == 0) {
			continue
		}
		if DistanceKm(lat, lng, r.Location.Lat, r.Location.Lng) <= radiusKm {
			nearby = append(nearby, r)
		}
	}
	return nearby, nil
}
