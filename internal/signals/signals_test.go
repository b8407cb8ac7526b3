package signals

import "testing"

func TestQuantityFor_KnownSignals(t *testing.T) {
	c := New(nil, 1)

	cases := map[string]int{
		"G_BOX":   1,
		"R_BOX":   1,
		"2G_BOX":  2,
		"2R_BOX":  2,
		"1G_BOX":  1,
		"1R_BOX":  1,
		"2GR_BOX": 1,
		"2RG_BOX": 1,
	}
	for signal, want := range cases {
		if got := c.QuantityFor(signal); got != want {
			t.Errorf("QuantityFor(%q) = %d, want %d", signal, got, want)
		}
	}
}

func TestQuantityFor_UnknownDefaultsToOne(t *testing.T) {
	c := New(nil, 1)

	for _, signal := range []string{"", "UNKNOWN", "g_box", "3G_BOX"} {
		if got := c.QuantityFor(signal); got != 1 {
			t.Errorf("QuantityFor(%q) = %d, want 1", signal, got)
		}
	}
}

func TestNew_Overrides(t *testing.T) {
	c := New(map[string]int{"2G_BOX": 5, "CUSTOM": 3, "BAD": 0}, 1)

	if got := c.QuantityFor("2G_BOX"); got != 5 {
		t.Errorf("override not applied: got %d, want 5", got)
	}
	if got := c.QuantityFor("CUSTOM"); got != 3 {
		t.Errorf("new signal not added: got %d, want 3", got)
	}
	// Non-positive overrides are ignored
	if got := c.QuantityFor("BAD"); got != 1 {
		t.Errorf("invalid override should fall back to default: got %d", got)
	}
	// Untouched entries survive the merge
	if got := c.QuantityFor("2R_BOX"); got != 2 {
		t.Errorf("built-in entry lost after merge: got %d, want 2", got)
	}
}

func TestNew_DefaultQtyClamped(t *testing.T) {
	c := New(nil, 0)
	if got := c.QuantityFor("NOPE"); got != 1 {
		t.Errorf("expected clamped default 1, got %d", got)
	}
}
