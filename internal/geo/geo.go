// Package geo implements point-in-polygon containment and point-to-boundary
// distance for small geographic areas (a neighborhood, not a continent).
package geo

import (
	"fmt"
	"math"
)

const earthRadiusM = 6371000

// boundaryEps is the planar tolerance, in degrees, under which a point is
// considered to lie exactly on a polygon edge. ~0.1mm at the equator.
const boundaryEps = 1e-9

type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Polygon is an ordered, implicitly closed vertex ring. Immutable once built.
type Polygon struct {
	vertices []Point
}

// NewPolygon validates the ring. Fewer than 3 distinct vertices is a
// configuration error and must be rejected at startup, not per record.
func NewPolygon(vertices []Point) (Polygon, error) {
	distinct := make(map[Point]struct{}, len(vertices))
	for _, v := range vertices {
		distinct[v] = struct{}{}
	}
	if len(distinct) < 3 {
		return Polygon{}, fmt.Errorf("polygon needs at least 3 distinct vertices, got %d", len(distinct))
	}
	vs := make([]Point, len(vertices))
	copy(vs, vertices)
	return Polygon{vertices: vs}, nil
}

// Vertices returns a copy of the ring.
func (p Polygon) Vertices() []Point {
	vs := make([]Point, len(p.vertices))
	copy(vs, p.vertices)
	return vs
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Point) float64 {
	phi1 := a.Lat * math.Pi / 180
	phi2 := b.Lat * math.Pi / 180
	dphi := (b.Lat - a.Lat) * math.Pi / 180
	dlam := (b.Lng - a.Lng) * math.Pi / 180
	s := math.Sin(dphi/2)*math.Sin(dphi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dlam/2)*math.Sin(dlam/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
}

// Contains reports whether pt is inside the polygon. Points exactly on a
// boundary edge count as inside. Interior determination is a ray cast to
// +infinity longitude with the half-open edge test, so a ray passing through
// a shared vertex is counted exactly once.
func (p Polygon) Contains(pt Point) bool {
	if p.onBoundary(pt) {
		return true
	}
	inside := false
	n := len(p.vertices)
	for i := 0; i < n; i++ {
		a := p.vertices[i]
		b := p.vertices[(i+1)%n]
		if (a.Lat > pt.Lat) == (b.Lat > pt.Lat) {
			continue
		}
		crossLng := a.Lng + (pt.Lat-a.Lat)*(b.Lng-a.Lng)/(b.Lat-a.Lat)
		if crossLng > pt.Lng {
			inside = !inside
		}
	}
	return inside
}

// DistanceMeters returns 0 for points inside or on the boundary, otherwise
// the minimum distance to any edge. The nearest point on each edge is found
// with a cheap planar clamp under a local equirectangular projection and the
// final distance is the exact haversine to that projected point; a purely
// planar distance drifts noticeably over a few kilometers.
func (p Polygon) DistanceMeters(pt Point) float64 {
	if p.Contains(pt) {
		return 0
	}
	min := math.MaxFloat64
	n := len(p.vertices)
	for i := 0; i < n; i++ {
		q := nearestOnSegment(pt, p.vertices[i], p.vertices[(i+1)%n])
		if d := Haversine(pt, q); d < min {
			min = d
		}
	}
	return min
}

func (p Polygon) onBoundary(pt Point) bool {
	n := len(p.vertices)
	for i := 0; i < n; i++ {
		q := nearestOnSegment(pt, p.vertices[i], p.vertices[(i+1)%n])
		if math.Abs(q.Lat-pt.Lat) < boundaryEps && math.Abs(q.Lng-pt.Lng) < boundaryEps {
			return true
		}
	}
	return false
}

// nearestOnSegment projects pt onto the segment a-b after scaling longitude
// by cos(mean latitude), clamping the projection parameter to [0,1].
func nearestOnSegment(pt, a, b Point) Point {
	meanLat := (pt.Lat + a.Lat + b.Lat) / 3
	scale := math.Cos(meanLat * math.Pi / 180)

	ax, ay := a.Lng*scale, a.Lat
	bx, by := b.Lng*scale, b.Lat
	px, py := pt.Lng*scale, pt.Lat

	dx, dy := bx-ax, by-ay
	if dx == 0 && dy == 0 {
		return a
	}
	t := ((px-ax)*dx + (py-ay)*dy) / (dx*dx + dy*dy)
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return Point{Lat: ay + t*dy, Lng: (ax + t*dx) / scale}
}
