package domain

import "testing"

func TestIntensity(t *testing.T) {
	tests := []struct {
		name       string
		base       int
		confidence float64
		want       int
	}{
		{"half confidence", 30, 0.5, 15},
		{"full confidence", 80, 1.0, 80},
		{"floors fractional product", 30, 0.99, 29},
		{"clamps low to 1", 30, 0.0, 1},
		{"near-zero confidence still delivers", 30, 0.01, 1},
		{"over-range product clamps to 100", 80, 1.5, 100},
		{"exact ceiling", 100, 1.0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Intensity(tt.base, tt.confidence); got != tt.want {
				t.Errorf("Intensity(%d, %v) = %d, want %d", tt.base, tt.confidence, got, tt.want)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		in   string
		want Verdict
	}{
		{"true", VerdictTrue},
		{"false", VerdictFalse},
		{"misleading", VerdictMisleading},
		{"unverifiable", VerdictUnverifiable},
		{"  TRUE  ", VerdictTrue},
		{"False", VerdictFalse},
		{"", VerdictUnverifiable},
		{"mostly true", VerdictUnverifiable},
		{"garbage", VerdictUnverifiable},
	}
	for _, tt := range tests {
		if got := ParseVerdict(tt.in); got != tt.want {
			t.Errorf("ParseVerdict(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
