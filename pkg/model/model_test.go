package model

import "testing"

func TestContentHash(t *testing.T) {
	tests := []struct {
		name  string
		a     string
		b     string
		equal bool
	}{
		{name: "identical", a: "Payment due in 30 days.", b: "Payment due in 30 days.", equal: true},
		{name: "whitespace normalized", a: "Payment  due\nin 30 days.", b: "Payment due in 30 days.", equal: true},
		{name: "case insensitive", a: "GOVERNING LAW", b: "governing law", equal: true},
		{name: "different text", a: "Payment due in 30 days.", b: "Payment due in 60 days.", equal: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ha, hb := ContentHash(tc.a), ContentHash(tc.b)
			if (ha == hb) != tc.equal {
				t.Fatalf("ContentHash(%q) == ContentHash(%q): got %v want %v", tc.a, tc.b, ha == hb, tc.equal)
			}
		})
	}
}

func TestContentHashStable(t *testing.T) {
	if ContentHash("x") != ContentHash("x") {
		t.Fatal("hash must be deterministic")
	}
	if ContentHash("") == ContentHash("x") {
		t.Fatal("distinct inputs must not collide trivially")
	}
}
