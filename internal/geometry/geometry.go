// Package geometry validates submitted GeoJSON features and derives the
// representative point stored alongside a completed step.
package geometry

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Validate runs structural GeoJSON checks over a decoded feature and returns
// every problem found. An empty slice means the feature is valid. Checks that
// the decoder already enforces (type tags, coordinate arity) are not
// repeated here.
func Validate(feature *geojson.Feature) []string {
	if feature == nil {
		return []string{"feature is required"}
	}
	if feature.Geometry == nil {
		return nil
	}
	return validateGeometry(feature.Geometry)
}

func validateGeometry(g orb.Geometry) []string {
	var problems []string
	switch geom := g.(type) {
	case orb.Point:
		// Arity is fixed by the type.
	case orb.MultiPoint:
		if len(geom) == 0 {
			problems = append(problems, "MultiPoint must contain at least one position")
		}
	case orb.LineString:
		problems = append(problems, validateLine(geom, "LineString")...)
	case orb.MultiLineString:
		for i, line := range geom {
			problems = append(problems, validateLine(line, fmt.Sprintf("MultiLineString[%d]", i))...)
		}
	case orb.Polygon:
		problems = append(problems, validatePolygon(geom, "Polygon")...)
	case orb.MultiPolygon:
		for i, polygon := range geom {
			problems = append(problems, validatePolygon(polygon, fmt.Sprintf("MultiPolygon[%d]", i))...)
		}
	case orb.Collection:
		for _, member := range geom {
			problems = append(problems, validateGeometry(member)...)
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported geometry type %q", g.GeoJSONType()))
	}
	return problems
}

func validateLine(line orb.LineString, label string) []string {
	if len(line) < 2 {
		return []string{fmt.Sprintf("%s must contain at least two positions", label)}
	}
	return nil
}

func validatePolygon(polygon orb.Polygon, label string) []string {
	var problems []string
	if len(polygon) == 0 {
		return []string{fmt.Sprintf("%s must contain at least one ring", label)}
	}
	for i, ring := range polygon {
		if len(ring) < 4 {
			problems = append(problems, fmt.Sprintf("%s ring %d must contain at least four positions", label, i))
			continue
		}
		if !ring.Closed() {
			problems = append(problems, fmt.Sprintf("%s ring %d is not closed", label, i))
		}
	}
	return problems
}

// Centroid computes the unweighted arithmetic mean of the geometry's vertex
// coordinates. Polygon rings drop their duplicated closing position so it is
// not counted twice. Returns false for empty or unsupported geometry.
func Centroid(g orb.Geometry) (orb.Point, bool) {
	var sum orb.Point
	var count int
	accumulate(g, &sum, &count)
	if count == 0 {
		return orb.Point{}, false
	}
	return orb.Point{sum[0] / float64(count), sum[1] / float64(count)}, true
}

func accumulate(g orb.Geometry, sum *orb.Point, count *int) {
	switch geom := g.(type) {
	case orb.Point:
		addPoint(geom, sum, count)
	case orb.MultiPoint:
		for _, p := range geom {
			addPoint(p, sum, count)
		}
	case orb.LineString:
		for _, p := range geom {
			addPoint(p, sum, count)
		}
	case orb.MultiLineString:
		for _, line := range geom {
			accumulate(line, sum, count)
		}
	case orb.Polygon:
		for _, ring := range geom {
			addRing(ring, sum, count)
		}
	case orb.MultiPolygon:
		for _, polygon := range geom {
			accumulate(polygon, sum, count)
		}
	}
}

func addRing(ring orb.Ring, sum *orb.Point, count *int) {
	points := []orb.Point(ring)
	if len(points) > 1 && points[0] == points[len(points)-1] {
		points = points[:len(points)-1]
	}
	for _, p := range points {
		addPoint(p, sum, count)
	}
}

func addPoint(p orb.Point, sum *orb.Point, count *int) {
	sum[0] += p[0]
	sum[1] += p[1]
	*count++
}
