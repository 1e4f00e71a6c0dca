// Package linescan normalizes and reshapes two-photon linescan data.
//
// A region's linescan set arrives as one 2D matrix per scan event
// (lines x samples). The sample count varies between scans because the
// scanned dendritic width is adjusted during the experiment, so the set
// has to be padded to a common width before it can be stacked into the
// dense 3D layout the output container expects.
package linescan

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"caimg2nwb/internal/models"
)

// Normalize pads every scan in the set with NaN columns on the trailing
// edge so all scans share the width of the widest scan. Data is never
// truncated and original values keep their positions; scans already at
// the maximum width are returned as-is. Normalizing an already uniform
// set is a no-op apart from allocation.
//
// An empty collection or a scan with zero rows or columns is a
// validation error naming the offending scan.
func Normalize(scans []*mat.Dense) ([]*mat.Dense, error) {
	if len(scans) == 0 {
		return nil, fmt.Errorf("linescan set is empty")
	}

	maxWidth := 0
	for i, scan := range scans {
		rows, cols := scan.Dims()
		if rows == 0 || cols == 0 {
			return nil, fmt.Errorf("linescan %d has degenerate shape %dx%d", i, rows, cols)
		}
		if cols > maxWidth {
			maxWidth = cols
		}
	}

	out := make([]*mat.Dense, len(scans))
	for i, scan := range scans {
		rows, cols := scan.Dims()
		if cols == maxWidth {
			out[i] = scan
			continue
		}

		padded := mat.NewDense(rows, maxWidth, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				padded.Set(r, c, scan.At(r, c))
			}
			for c := cols; c < maxWidth; c++ {
				padded.Set(r, c, math.NaN())
			}
		}
		out[i] = padded
	}
	return out, nil
}

// Stack assembles identically-shaped 2D scans into a dense 3D stack with
// the scan index as the leading dimension. All scans must share the same
// shape; a mismatch is a precondition failure naming the offending scan.
// The total element count is preserved.
func Stack(scans []*mat.Dense) (*models.LinescanStack, error) {
	if len(scans) == 0 {
		return nil, fmt.Errorf("linescan set is empty")
	}

	lines, samples := scans[0].Dims()
	if lines == 0 || samples == 0 {
		return nil, fmt.Errorf("linescan 0 has degenerate shape %dx%d", lines, samples)
	}

	stack := &models.LinescanStack{
		Data:    make([]float64, len(scans)*lines*samples),
		Scans:   len(scans),
		Lines:   lines,
		Samples: samples,
	}
	for i, scan := range scans {
		r, c := scan.Dims()
		if r != lines || c != samples {
			return nil, fmt.Errorf("linescan %d has shape %dx%d, expected %dx%d",
				i, r, c, lines, samples)
		}
		base := i * lines * samples
		for l := 0; l < lines; l++ {
			for s := 0; s < samples; s++ {
				stack.Data[base+l*samples+s] = scan.At(l, s)
			}
		}
	}
	return stack, nil
}

// StackDeltaF converts a width-averaged delta-fluorescence trace, stored
// by the analysis as (lines x scans), into the container's 3D layout:
// transposed to (scans x lines) with a trailing singleton sample
// dimension.
func StackDeltaF(deltaF *mat.Dense) (*models.LinescanStack, error) {
	if deltaF == nil {
		return nil, fmt.Errorf("delta-F trace is missing")
	}
	lines, scans := deltaF.Dims()
	if lines == 0 || scans == 0 {
		return nil, fmt.Errorf("delta-F trace has degenerate shape %dx%d", lines, scans)
	}

	stack := &models.LinescanStack{
		Data:    make([]float64, scans*lines),
		Scans:   scans,
		Lines:   lines,
		Samples: 1,
	}
	for s := 0; s < scans; s++ {
		for l := 0; l < lines; l++ {
			stack.Data[s*lines+l] = deltaF.At(l, s)
		}
	}
	return stack, nil
}
