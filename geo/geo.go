// Package geo provides pure great-circle math over GPS trails. No smoothing
// or denoising: trail length is the straight-line sum between consecutive
// samples.
package geo

import "math"

const earthRadiusKm = 6371.0

// Point is a single coordinate sample.
type Point struct {
	Latitude  float64
	Longitude float64
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineKm returns the great-circle distance between two points in
// kilometers using the spherical law of haversines.
func HaversineKm(a, b Point) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	deltaLat := lat2 - lat1
	deltaLng := toRadians(b.Longitude - a.Longitude)

	sinLat := math.Sin(deltaLat / 2)
	sinLng := math.Sin(deltaLng / 2)

	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// TrailKm sums the pairwise distance over an ordered trail. Fewer than two
// points yield zero; callers that need "unmeasurable" semantics must check
// the sample count themselves.
func TrailKm(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1], points[i])
	}
	return total
}
