package geo

import (
	"math"

	"github.com/lintang-b-s/transitx/pkg/util"
)

/*
BearingTo. initial bearing in degrees for the segment (p1,p2).
https://www.movable-type.co.uk/scripts/latlong.html
*/
func BearingTo(p1Lat, p1Lon, p2Lat, p2Lon float64) float64 {

	dLon := util.DegreeToRadians(p2Lon - p1Lon)

	lat1 := util.DegreeToRadians(p1Lat)
	lat2 := util.DegreeToRadians(p2Lat)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) -
		math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	brng := math.Mod(util.RadiansToDegree(math.Atan2(y, x))+360, 360.0)

	return brng
}

// HeadingDelta returns the absolute angular difference between two compass
// headings in degrees, always in [0, 180].
func HeadingDelta(h1, h2 float64) float64 {
	d := math.Mod(math.Abs(h1-h2), 360.0)
	if d > 180.0 {
		d = 360.0 - d
	}
	return d
}
