package linescan

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// filled builds a rows x cols matrix with distinct values so tests can
// verify that padding never displaces original data.
func filled(rows, cols int, base float64) *mat.Dense {
	m := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.Set(r, c, base+float64(r*cols+c))
		}
	}
	return m
}

func TestNormalizePadsToMaxWidth(t *testing.T) {
	// Widths 120, 135 and 128 must all come out at 135, with 15 and 7
	// NaN columns appended to the narrow scans.
	scans := []*mat.Dense{
		filled(4, 120, 0),
		filled(4, 135, 1000),
		filled(4, 128, 2000),
	}

	out, err := Normalize(scans)
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 scans, got %d", len(out))
	}

	originalWidths := []int{120, 135, 128}
	for i, scan := range out {
		rows, cols := scan.Dims()
		if rows != 4 || cols != 135 {
			t.Errorf("scan %d: got shape %dx%d, want 4x135", i, rows, cols)
		}

		// Original values are unchanged in place.
		for r := 0; r < rows; r++ {
			for c := 0; c < originalWidths[i]; c++ {
				if got, want := scan.At(r, c), scans[i].At(r, c); got != want {
					t.Fatalf("scan %d (%d,%d): value changed from %v to %v", i, r, c, want, got)
				}
			}
			// Padded cells are NaN.
			for c := originalWidths[i]; c < cols; c++ {
				if !math.IsNaN(scan.At(r, c)) {
					t.Fatalf("scan %d (%d,%d): padding is %v, want NaN", i, r, c, scan.At(r, c))
				}
			}
		}
	}
}

func TestNormalizeUniformWidthIsIdempotent(t *testing.T) {
	scans := []*mat.Dense{filled(3, 50, 0), filled(3, 50, 100)}

	once, err := Normalize(scans)
	if err != nil {
		t.Fatalf("first Normalize failed: %v", err)
	}
	twice, err := Normalize(once)
	if err != nil {
		t.Fatalf("second Normalize failed: %v", err)
	}

	for i := range twice {
		if !mat.Equal(once[i], twice[i]) {
			t.Errorf("scan %d: normalizing twice changed the result", i)
		}
		if _, cols := twice[i].Dims(); cols != 50 {
			t.Errorf("scan %d: width changed to %d on uniform input", i, cols)
		}
	}
}

func TestNormalizeSingleScan(t *testing.T) {
	out, err := Normalize([]*mat.Dense{filled(2, 10, 0)})
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if rows, cols := out[0].Dims(); rows != 2 || cols != 10 {
		t.Errorf("single scan reshaped to %dx%d", rows, cols)
	}
}

func TestNormalizeRejectsBadInput(t *testing.T) {
	if _, err := Normalize(nil); err == nil {
		t.Error("expected error for empty collection")
	}
	if _, err := Normalize([]*mat.Dense{}); err == nil {
		t.Error("expected error for empty collection")
	}
}

func TestStackPreservesElementCount(t *testing.T) {
	scans := []*mat.Dense{filled(3, 7, 0), filled(3, 7, 100), filled(3, 7, 200)}

	stack, err := Stack(scans)
	if err != nil {
		t.Fatalf("Stack failed: %v", err)
	}

	wantScans, wantLines, wantSamples := 3, 3, 7
	if s, l, w := stack.Dims(); s != wantScans || l != wantLines || w != wantSamples {
		t.Fatalf("got dims %dx%dx%d, want %dx%dx%d", s, l, w, wantScans, wantLines, wantSamples)
	}
	if len(stack.Data) != wantScans*wantLines*wantSamples {
		t.Errorf("element count %d does not match dims", len(stack.Data))
	}

	// Spot-check positions across all three scans.
	for i, scan := range scans {
		for l := 0; l < wantLines; l++ {
			for w := 0; w < wantSamples; w++ {
				if got, want := stack.At(i, l, w), scan.At(l, w); got != want {
					t.Fatalf("stack(%d,%d,%d) = %v, want %v", i, l, w, got, want)
				}
			}
		}
	}
}

func TestStackRejectsShapeMismatch(t *testing.T) {
	scans := []*mat.Dense{filled(3, 7, 0), filled(3, 8, 0)}
	if _, err := Stack(scans); err == nil {
		t.Error("expected error for mismatched scan shapes")
	}
}

func TestStackDeltaF(t *testing.T) {
	// Stored as lines x scans: 4 lines, 2 scans.
	deltaF := mat.NewDense(4, 2, []float64{
		1, 10,
		2, 20,
		3, 30,
		4, 40,
	})

	stack, err := StackDeltaF(deltaF)
	if err != nil {
		t.Fatalf("StackDeltaF failed: %v", err)
	}

	if s, l, w := stack.Dims(); s != 2 || l != 4 || w != 1 {
		t.Fatalf("got dims %dx%dx%d, want 2x4x1", s, l, w)
	}
	// Scan 0 is the first column, scan 1 the second.
	if stack.At(0, 2, 0) != 3 {
		t.Errorf("stack(0,2,0) = %v, want 3", stack.At(0, 2, 0))
	}
	if stack.At(1, 3, 0) != 40 {
		t.Errorf("stack(1,3,0) = %v, want 40", stack.At(1, 3, 0))
	}
}

func TestStackDeltaFRejectsMissing(t *testing.T) {
	if _, err := StackDeltaF(nil); err == nil {
		t.Error("expected error for missing trace")
	}
}
