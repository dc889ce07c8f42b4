package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// DefaultCirclePoints is the ring resolution used for overlays.
const DefaultCirclePoints = 64

// CirclePolygon approximates a circle of radiusM meters around center.
// Offsets are computed in local degree space with longitude degrees scaled by
// cos(center.Lat). The ring holds pointCount+1 points; the last repeats the first.
func CirclePolygon(center Point, radiusM float64, pointCount int) []Point {
	if pointCount < 3 {
		pointCount = DefaultCirclePoints
	}

	radiusKm := radiusM / 1000
	degLat := radiusKm / kmPerDegree
	degLon := radiusKm / (kmPerDegree * math.Cos(toRad(center.Lat)))

	points := make([]Point, 0, pointCount+1)
	for i := 0; i < pointCount; i++ {
		angle := float64(i) / float64(pointCount) * 2 * math.Pi
		points = append(points, Point{
			Lat: center.Lat + degLat*math.Sin(angle),
			Lon: center.Lon + degLon*math.Cos(angle),
		})
	}
	// Close the loop
	points = append(points, points[0])
	return points
}

// Ring converts a point sequence into an orb ring (lon, lat order).
func Ring(points []Point) orb.Ring {
	ring := make(orb.Ring, len(points))
	for i, p := range points {
		ring[i] = orb.Point{p.Lon, p.Lat}
	}
	return ring
}

// CircleFeature builds a GeoJSON polygon feature for a circle overlay.
func CircleFeature(center Point, radiusM float64, pointCount int) *geojson.Feature {
	ring := Ring(CirclePolygon(center, radiusM, pointCount))
	return geojson.NewFeature(orb.Polygon{ring})
}

// EmptyPolygonFeature is the cleared state of a radius source.
func EmptyPolygonFeature() *geojson.Feature {
	return geojson.NewFeature(orb.Polygon{orb.Ring{}})
}
