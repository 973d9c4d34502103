package geo

import (
	"github.com/golang/geo/s2"
)

// ProjectPointToLineCoord projects snap onto the great-circle segment
// (pointA, pointB) and returns the closest point on the segment.
func ProjectPointToLineCoord(pointA Coordinate, pointB Coordinate,
	snap Coordinate) Coordinate {
	pointAS2 := s2.PointFromLatLng(s2.LatLngFromDegrees(pointA.Lat, pointA.Lon))
	pointBS2 := s2.PointFromLatLng(s2.LatLngFromDegrees(pointB.Lat, pointB.Lon))
	snapS2 := s2.PointFromLatLng(s2.LatLngFromDegrees(snap.Lat, snap.Lon))
	projection := s2.Project(snapS2, pointAS2, pointBS2)
	projectLatLng := s2.LatLngFromPoint(projection)
	return NewCoordinate(projectLatLng.Lat.Degrees(), projectLatLng.Lng.Degrees())
}
