package geo

import "math"

const earthRadiusKm = 6371.0

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineKm(lat1, lng1, lat2, lng2) * 1000
}

// BearingDeg returns the initial bearing from point 1 to point 2 in [0, 360).
func BearingDeg(lat1, lng1, lat2, lng2 float64) float64 {
	dLng := rad(lng2 - lng1)
	y := math.Sin(dLng) * math.Cos(rad(lat2))
	x := math.Cos(rad(lat1))*math.Sin(rad(lat2)) -
		math.Sin(rad(lat1))*math.Cos(rad(lat2))*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DistanceToSegmentM returns the distance in meters from point p to the
// segment (a, b). The segment is short enough in navigation use that a
// planar approximation around its latitude is accurate to well under a
// meter, which is all a corridor check needs.
func DistanceToSegmentM(pLat, pLng, aLat, aLng, bLat, bLng float64) float64 {
	// Scale longitude by cos(latitude) so degrees are locally isotropic.
	scale := math.Cos(rad(aLat))
	ax, ay := aLng*scale, aLat
	bx, by := bLng*scale, bLat
	px, py := pLng*scale, pLat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	cx, cy := ax+t*dx, ay+t*dy
	return HaversineM(py, px/scale, cy, cx/scale)
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}
