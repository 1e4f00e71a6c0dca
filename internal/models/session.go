package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Region identifies one of the three imaged dendritic regions of the cell.
// The imaging protocol always visits the regions in the same anatomical
// order, and that order also fixes how electrophysiology sweeps are
// partitioned between regions.
type Region int

const (
	Bottom Region = iota
	Middle
	Top
)

// Regions lists all regions in their canonical acquisition order.
var Regions = []Region{Bottom, Middle, Top}

// String returns the lowercase region name used in descriptions.
func (r Region) String() string {
	switch r {
	case Bottom:
		return "bottom"
	case Middle:
		return "middle"
	case Top:
		return "top"
	}
	return fmt.Sprintf("Region(%d)", int(r))
}

// Index returns the numeric suffix used in acquisition record names,
// starting at 1 for the bottom dendrite.
func (r Region) Index() int {
	return int(r) + 1
}

// ParseRegion converts a region name into a Region value.
// Only exact lowercase matches are accepted.
func ParseRegion(s string) (Region, error) {
	switch s {
	case "bottom":
		return Bottom, nil
	case "middle":
		return Middle, nil
	case "top":
		return Top, nil
	}
	return 0, fmt.Errorf("unknown region %q (must be bottom, middle or top)", s)
}

// Channel identifies the optical channel a linescan was recorded on.
// Green carries the calcium-sensitive indicator, red the structural dye.
type Channel int

const (
	Green Channel = iota
	Red
)

// Channels lists both optical channels.
var Channels = []Channel{Green, Red}

// String returns the capitalized channel name used in acquisition record names.
func (c Channel) String() string {
	switch c {
	case Green:
		return "Green"
	case Red:
		return "Red"
	}
	return fmt.Sprintf("Channel(%d)", int(c))
}

// LinescanStack is a dense 3D array of linescan data stored as a flat
// row-major slice. The first dimension indexes individual linescans
// (time), the second indexes lines along the dendrite, and the third
// indexes samples across the dendritic width.
type LinescanStack struct {
	// Data holds Scans*Lines*Samples values in row-major order
	Data []float64

	// Scans is the number of linescan events in the stack
	Scans int

	// Lines is the number of scanned lines per linescan
	Lines int

	// Samples is the common sample count per line after width
	// normalization
	Samples int
}

// At returns the value at scan s, line l, sample w.
func (k *LinescanStack) At(s, l, w int) float64 {
	return k.Data[s*k.Lines*k.Samples+l*k.Samples+w]
}

// Dims returns the stack dimensions as (scans, lines, samples).
func (k *LinescanStack) Dims() (int, int, int) {
	return k.Scans, k.Lines, k.Samples
}

// Image is a reference image stored as a flat row-major float64 array.
// Grayscale images have dims [height, width]; RGB images have dims
// [height, width, 3].
type Image struct {
	Data []float64
	Dims []int
}

// RegionData holds the decoded contents of one region's analysed MAT-file.
// The two linescan sets are ragged: individual scans within a set may
// differ in width until normalized.
type RegionData struct {
	// Region identifies which dendrite this data belongs to
	Region Region

	// Green holds the raw denoised green-channel linescans, one
	// (lines x samples) matrix per scan event
	Green []*mat.Dense

	// Red holds the raw denoised red-channel linescans
	Red []*mat.Dense

	// DeltaF is the width-averaged delta-fluorescence trace stored as
	// (lines x scans), as exported by the analysis
	DeltaF *mat.Dense

	// EphysTime is the shared current-clamp sweep time vector in
	// milliseconds
	EphysTime []float64

	// Sweeps is the full current-clamp sweep block (sweep x sample)
	// covering all three regions' sweeps
	Sweeps *mat.Dense

	// ROI is the grayscale image of this region's dendritic ROI
	ROI *Image

	// Neuron is the RGB image of the full cell. Only populated for the
	// bottom region's file, which carries the session-wide image.
	Neuron *Image
}
