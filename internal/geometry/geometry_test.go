package geometry

import (
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestValidatePointFeature(t *testing.T) {
	feature := geojson.NewFeature(orb.Point{1, 2})
	if problems := Validate(feature); len(problems) != 0 {
		t.Errorf("expected valid point feature, got %v", problems)
	}
}

func TestValidateFeatureWithoutGeometry(t *testing.T) {
	feature := &geojson.Feature{}
	if problems := Validate(feature); len(problems) != 0 {
		t.Errorf("geometry is optional, got %v", problems)
	}
}

func TestValidateShortLineString(t *testing.T) {
	feature := geojson.NewFeature(orb.LineString{{1, 2}})
	problems := Validate(feature)
	if len(problems) != 1 {
		t.Fatalf("expected one problem, got %v", problems)
	}
	if !strings.Contains(problems[0], "two positions") {
		t.Errorf("unexpected message: %q", problems[0])
	}
}

func TestValidatePolygonCollectsEveryProblem(t *testing.T) {
	polygon := orb.Polygon{
		{{0, 0}, {1, 0}},                 // too short
		{{0, 0}, {4, 0}, {4, 4}, {1, 1}}, // long enough but open
	}
	problems := Validate(geojson.NewFeature(polygon))
	if len(problems) != 2 {
		t.Fatalf("expected both ring problems reported, got %v", problems)
	}
	if !strings.Contains(problems[0], "ring 0") || !strings.Contains(problems[1], "ring 1") {
		t.Errorf("messages do not identify rings: %v", problems)
	}
	if !strings.Contains(problems[1], "not closed") {
		t.Errorf("expected closure problem, got %q", problems[1])
	}
}

func TestValidateClosedPolygon(t *testing.T) {
	polygon := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 0}}}
	if problems := Validate(geojson.NewFeature(polygon)); len(problems) != 0 {
		t.Errorf("expected valid polygon, got %v", problems)
	}
}

func TestValidateMultiLineString(t *testing.T) {
	geom := orb.MultiLineString{
		{{0, 0}, {1, 1}},
		{{2, 2}},
	}
	problems := Validate(geojson.NewFeature(geom))
	if len(problems) != 1 || !strings.Contains(problems[0], "MultiLineString[1]") {
		t.Errorf("expected second line flagged, got %v", problems)
	}
}

func TestCentroidPoint(t *testing.T) {
	point, ok := Centroid(orb.Point{1, 2})
	if !ok {
		t.Fatal("expected centroid for a point")
	}
	if point != (orb.Point{1, 2}) {
		t.Errorf("expected point itself, got %v", point)
	}
}

func TestCentroidLineString(t *testing.T) {
	point, ok := Centroid(orb.LineString{{0, 0}, {2, 0}, {4, 6}})
	if !ok {
		t.Fatal("expected centroid")
	}
	if point != (orb.Point{2, 2}) {
		t.Errorf("expected (2,2), got %v", point)
	}
}

func TestCentroidPolygonSkipsClosingPosition(t *testing.T) {
	polygon := orb.Polygon{{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {0, 0}}}
	point, ok := Centroid(polygon)
	if !ok {
		t.Fatal("expected centroid")
	}
	if point != (orb.Point{2, 2}) {
		t.Errorf("expected (2,2) with closing vertex dropped, got %v", point)
	}
}

func TestCentroidEmptyGeometry(t *testing.T) {
	if _, ok := Centroid(orb.MultiPoint{}); ok {
		t.Error("expected no centroid for empty geometry")
	}
	if _, ok := Centroid(orb.Collection{}); ok {
		t.Error("expected no centroid for unsupported geometry")
	}
}

func TestCentroidDeterministic(t *testing.T) {
	line := orb.LineString{{0.1, 0.2}, {0.3, 0.4}, {-1, 7}}
	first, _ := Centroid(line)
	second, _ := Centroid(line)
	if first != second {
		t.Errorf("centroid not deterministic: %v vs %v", first, second)
	}
}
