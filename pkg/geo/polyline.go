package geo

import (
	polyline "github.com/twpayne/go-polyline"
)

// PolylineFromCoords encodes the coordinates with the Google polyline
// algorithm for compact transport in API responses.
func PolylineFromCoords(coords []Coordinate) string {
	latLngs := make([][]float64, 0, len(coords))
	for _, c := range coords {
		latLngs = append(latLngs, []float64{c.GetLat(), c.GetLon()})
	}
	return string(polyline.EncodeCoords(latLngs))
}
