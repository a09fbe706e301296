package candidate

import "testing"

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"coffee", "coffee", 0},
		{"coffee", "coffe", 1},
		{"bolt", "bolts", 1},
		{"kitten", "sitting", 3},
		{"", "abc", 3},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestSimilarityThreshold(t *testing.T) {
	// One typo in a six-letter word stays above the fuzzy cutoff.
	if sim := similarity("coffee", "coffea"); sim < 0.75 {
		t.Errorf("similarity(coffee, coffea) = %v, want >= 0.75", sim)
	}
	// Unrelated words fall well below it.
	if sim := similarity("coffee", "bolts"); sim >= 0.75 {
		t.Errorf("similarity(coffee, bolts) = %v, want < 0.75", sim)
	}
	if sim := similarity("", ""); sim != 1 {
		t.Errorf("similarity of empty strings = %v, want 1", sim)
	}
}
