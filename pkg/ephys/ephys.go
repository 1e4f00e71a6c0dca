// Package ephys slices the session's intracellular electrophysiology data
// into per-region sweep windows.
//
// Each region's analysed file carries the full current-clamp sweep block
// for the session; the sweeps belonging to a region are identified by
// position, not by markers in the data. The per-region sweep counts come
// from the number of linescans recorded at each region, and the block is
// partitioned by cumulative offset in the fixed acquisition order
// bottom, middle, top.
package ephys

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"caimg2nwb/internal/models"
)

// SweepCounts holds the number of current-clamp sweeps recorded at each
// region, indexed in acquisition order (bottom, middle, top).
type SweepCounts [3]int

// Total returns the summed sweep count across all regions.
func (c SweepCounts) Total() int {
	return c[0] + c[1] + c[2]
}

// Window returns the half-open sweep index range [start, end) belonging
// to the given region. The windows of the three regions cover
// [0, Total()) contiguously with no gaps or overlaps.
func (c SweepCounts) Window(region models.Region) (start, end int, err error) {
	for _, n := range c {
		if n < 0 {
			return 0, 0, fmt.Errorf("negative sweep count in %v", c)
		}
	}
	switch region {
	case models.Bottom:
		return 0, c[0], nil
	case models.Middle:
		return c[0], c[0] + c[1], nil
	case models.Top:
		return c[0] + c[1], c[0] + c[1] + c[2], nil
	}
	return 0, 0, fmt.Errorf("unknown region %v", region)
}

// Partition extracts the given region's sweep window from the full sweep
// block (sweep x sample). The window is validated against the block's
// actual sweep axis: a window extending past the recorded sweeps means
// the counts disagree with the data, which is an input error rather than
// grounds for silent truncation.
func Partition(sweeps *mat.Dense, counts SweepCounts, region models.Region) (*mat.Dense, error) {
	if sweeps == nil {
		return nil, fmt.Errorf("sweep block is missing")
	}
	start, end, err := counts.Window(region)
	if err != nil {
		return nil, err
	}
	if start == end {
		return nil, fmt.Errorf("region %v has no sweeps (counts %v)", region, counts)
	}

	rows, cols := sweeps.Dims()
	if end > rows {
		return nil, fmt.Errorf("region %v sweep window [%d,%d) out of range: block has %d sweeps",
			region, start, end, rows)
	}

	window := mat.NewDense(end-start, cols, nil)
	for i := start; i < end; i++ {
		for j := 0; j < cols; j++ {
			window.Set(i-start, j, sweeps.At(i, j))
		}
	}
	return window, nil
}

// TimeToSeconds converts a millisecond sweep time vector to seconds, the
// unit the output container's timestamps are declared in.
func TimeToSeconds(ms []float64) []float64 {
	sec := make([]float64, len(ms))
	for i, v := range ms {
		sec[i] = v / 1000.0
	}
	return sec
}
