package geo

import "testing"

func TestClampRadius(t *testing.T) {
	cases := []struct {
		name string
		in   float64
		want float64
	}{
		{"zero uses default", 0, DefaultRadiusKM},
		{"negative uses default", -5, DefaultRadiusKM},
		{"below min clamps up", 0.01, MinRadiusKM},
		{"at min stays", 0.1, MinRadiusKM},
		{"within range unchanged", 15, 15},
		{"above max clamps down", 900, MaxRadiusKM},
		{"at max stays", 500, MaxRadiusKM},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ClampRadius(c.in); got != c.want {
				t.Errorf("ClampRadius(%v) = %v, want %v", c.in, got, c.want)
			}
		})
	}
}

func TestHaversineSamePointIsZero(t *testing.T) {
	d := HaversineKM(52.3676, 4.9041, 52.3676, 4.9041)
	if d != 0 {
		t.Errorf("HaversineKM same point = %v, want 0", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Amsterdam to Haarlem, roughly 18-20km apart.
	d := HaversineKM(52.3676, 4.9041, 52.3874, 4.6462)
	if d < 15 || d > 25 {
		t.Errorf("Amsterdam-Haarlem distance = %.1fkm, expected roughly 15-25km", d)
	}
}

func TestBoxContainsReferencePoint(t *testing.T) {
	box := Box(52.3676, 4.9041, 25)
	if !box.Contains(52.3676, 4.9041) {
		t.Errorf("box must contain its own reference point")
	}
}

func TestBoxExcludesFarPoint(t *testing.T) {
	box := Box(52.3676, 4.9041, 10)
	// Rotterdam is roughly 60km from Amsterdam.
	if box.Contains(51.9244, 4.4777) {
		t.Errorf("box with 10km radius should not contain a point ~60km away")
	}
}

func TestBoxSupersetOfHaversineRadius(t *testing.T) {
	// The bounding box must never exclude a point genuinely within the
	// Haversine radius (it is a coarse, conservative cull).
	lat, lon, radius := 52.3676, 4.9041, 25.0
	box := Box(lat, lon, radius)

	candidates := []struct{ lat, lon float64 }{
		{52.3874, 4.6462}, // Haarlem, within range
		{52.0907, 5.1214}, // Utrecht, ~34km away, outside range
	}
	for _, c := range candidates {
		if HaversineKM(lat, lon, c.lat, c.lon) <= radius && !box.Contains(c.lat, c.lon) {
			t.Errorf("point (%v,%v) within Haversine radius but outside bounding box", c.lat, c.lon)
		}
	}
}

func TestRoundKM(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.04, 1.0},
		{1.05, 1.1},
		{1.449, 1.4},
		{0, 0},
	}
	for _, c := range cases {
		if got := RoundKM(c.in); got != c.want {
			t.Errorf("RoundKM(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}
