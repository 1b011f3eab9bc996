package structurer

import (
	"math/rand"
	"strings"
	"testing"
)

func TestStructure_EmptyInput(t *testing.T) {
	if got := Structure(nil, 0); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := Structure([]Fragment{}, 0); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestStructure_SingleRow(t *testing.T) {
	frags := []Fragment{
		{Text: "world", X: 40, Y: 100, Width: 30},
		{Text: "Hello", X: 0, Y: 100, Width: 30},
	}
	if got := Structure(frags, 0); got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}
}

func TestStructure_RowsSortedTopToBottom(t *testing.T) {
	frags := []Fragment{
		{Text: "bottom", X: 0, Y: 300, Width: 40},
		{Text: "top", X: 0, Y: 10, Width: 20},
		{Text: "middle", X: 0, Y: 150, Width: 40},
	}
	want := "top\nmiddle\nbottom"
	if got := Structure(frags, 0); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestStructure_ToleranceBandClustersRow(t *testing.T) {
	// Y values 100 and 107 are within the 8-unit tolerance band.
	frags := []Fragment{
		{Text: "left", X: 0, Y: 100, Width: 20},
		{Text: "right", X: 25, Y: 107, Width: 20},
	}
	got := Structure(frags, 0)
	if strings.Count(got, "\n") != 0 {
		t.Errorf("expected one line, got %q", got)
	}
}

func TestStructure_FewerThanTwoRowsWithinTolerance(t *testing.T) {
	frags := []Fragment{
		{Text: "a", X: 0, Y: 0, Width: 5},
		{Text: "b", X: 10, Y: 5, Width: 5},
		{Text: "c", X: 0, Y: 30, Width: 5},
	}
	got := Structure(frags, 0)
	if lines := strings.Split(got, "\n"); len(lines) > 2 {
		t.Errorf("expected at most 2 lines, got %d: %q", len(lines), got)
	}
}

func TestStructure_GapThresholds(t *testing.T) {
	tests := []struct {
		name string
		gap  float64
		want string
	}{
		{"contiguous", 0, "ab"},
		{"word gap", 10, "a b"},
		{"column gap", 16, "a | b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frags := []Fragment{
				{Text: "a", X: 0, Y: 50, Width: 10},
				{Text: "b", X: 10 + tt.gap, Y: 50, Width: 10},
			}
			if got := Structure(frags, 0); got != tt.want {
				t.Errorf("gap %.0f: expected %q, got %q", tt.gap, tt.want, got)
			}
		})
	}
}

func TestStructure_GapExactlyFifteenIsSpace(t *testing.T) {
	frags := []Fragment{
		{Text: "a", X: 0, Y: 50, Width: 10},
		{Text: "b", X: 25, Y: 50, Width: 10}, // gap exactly 15
	}
	if got := Structure(frags, 0); got != "a b" {
		t.Errorf("expected %q, got %q", "a b", got)
	}
}

func TestStructure_StableUnderPermutation(t *testing.T) {
	frags := []Fragment{
		{Text: "Model", X: 0, Y: 10, Width: 40},
		{Text: "XJ-900", X: 60, Y: 12, Width: 50},
		{Text: "Weight", X: 0, Y: 40, Width: 45},
		{Text: "12kg", X: 60, Y: 38, Width: 30},
		{Text: "Power", X: 0, Y: 70, Width: 40},
		{Text: "230V", X: 60, Y: 71, Width: 30},
	}
	want := Structure(frags, 0)

	r := rand.New(rand.NewSource(12))
	for i := 0; i < 20; i++ {
		shuffled := make([]Fragment, len(frags))
		copy(shuffled, frags)
		r.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if got := Structure(shuffled, 0); got != want {
			t.Fatalf("permutation changed output:\nwant %q\ngot  %q", want, got)
		}
	}
}

func TestStructure_SkipsEmptyFragments(t *testing.T) {
	frags := []Fragment{
		{Text: "", X: 0, Y: 10, Width: 5},
		{Text: "kept", X: 0, Y: 50, Width: 20},
	}
	if got := Structure(frags, 0); got != "kept" {
		t.Errorf("expected %q, got %q", "kept", got)
	}
}

func TestStructure_CollapsesInternalWhitespace(t *testing.T) {
	frags := []Fragment{
		{Text: "two   spaced\twords", X: 0, Y: 10, Width: 80},
	}
	if got := Structure(frags, 0); got != "two spaced words" {
		t.Errorf("expected collapsed whitespace, got %q", got)
	}
}

func TestStructure_PageHeightFlipsPDFCoordinates(t *testing.T) {
	// In PDF space larger Y is closer to the page top.
	frags := []Fragment{
		{Text: "header", X: 0, Y: 780, Width: 40},
		{Text: "footer", X: 0, Y: 20, Width: 40},
	}
	want := "header\nfooter"
	if got := Structure(frags, 800); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestStructure_DefaultedCoordinatesClusterAtTop(t *testing.T) {
	frags := []Fragment{
		{Text: "orphan", X: 0, Y: 0, Width: 30},
		{Text: "body", X: 0, Y: 200, Width: 30},
	}
	want := "orphan\nbody"
	if got := Structure(frags, 0); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
