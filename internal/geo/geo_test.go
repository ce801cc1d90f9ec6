package geo

import "testing"

func TestDistanceMeters_KnownPoints(t *testing.T) {
	// (0,0)→(0,0.01) at the equator is ~1113 m; the 5m tolerance covers the small deviation
	// between the mean-radius haversine value and the geodesic reference value.
	d := DistanceMeters(0, 0, 0, 0.01)
	rounded := RoundMeters(d)
	diff := rounded - 1113
	if diff < -5 || diff > 5 {
		t.Fatalf("expected within 5m of 1113, got %d (raw %f)", rounded, d)
	}
}

func TestDistanceMeters_SamePoint(t *testing.T) {
	d := DistanceMeters(37.7749, -122.4194, 37.7749, -122.4194)
	if d != 0 {
		t.Fatalf("expected 0m for identical points, got %f", d)
	}
}

func TestWithinRadius_BoundaryCases(t *testing.T) {
	if !WithinRadius(2000, 2000) {
		t.Fatalf("distance equal to radius must pass")
	}
	if WithinRadius(2001, 2000) {
		t.Fatalf("distance radius+1 must fail")
	}
}

func TestDistanceMeters_NearbyCourierWithinRadius(t *testing.T) {
	// pickup (37.7749,-122.4194) vs. courier (37.7750,-122.4193): about 14m apart, well within
	// the default 2000m geofence radius.
	d := DistanceMeters(37.7749, -122.4194, 37.7750, -122.4193)
	if d > 20 || d < 5 {
		t.Fatalf("expected distance near 14m, got %f", d)
	}
}

func TestDistanceMeters_DistantCourierOutsideRadius(t *testing.T) {
	// ~3.5km apart, well outside the default 2000m geofence radius.
	d := DistanceMeters(37.7749, -122.4194, 37.80, -122.42)
	if WithinRadius(d, DefaultRadiusMeters) {
		t.Fatalf("expected radius breach, got distance %f within default radius", d)
	}
}
