package conversion

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"caimg2nwb/internal/models"
	"caimg2nwb/pkg/ephys"
	"caimg2nwb/pkg/nwb"
)

// Container object names shared between the metadata descriptors and the
// acquisition records that reference them.
const (
	imagingDeviceName   = "2P_microscope"
	amplifierDeviceName = "Amplifier_Multiclamp_700A"
	electrodeName       = "icephys_electrode"
	greenPlaneName      = "green_imaging_plane"
	redPlaneName        = "red_imaging_plane"
	imageCollectionName = "ImageCollection"
)

// twoPhotonParams carries everything needed to build one raw-intensity
// linescan record.
type twoPhotonParams struct {
	// Region is the dendrite the linescans were recorded at
	Region models.Region

	// Channel selects the optical channel and with it the record name
	Channel models.Channel

	// Indicator is the dye name on that channel
	Indicator string

	// ImagingPlane is the name of the plane descriptor the record
	// references
	ImagingPlane string

	// ImagingRate is the linescan repetition rate in Hz
	ImagingRate float64

	// LineRate is the within-linescan line frequency in Hz
	LineRate float64

	// Stack is the normalized (scan x line x sample) payload
	Stack *models.LinescanStack
}

// buildTwoPhotonSeries constructs a raw fluorescence intensity record.
// The record name encodes the data kind, optical channel and numeric
// region suffix, e.g. TwoPhotonSeriesGreen1.
func buildTwoPhotonSeries(p twoPhotonParams) *nwb.TwoPhotonSeries {
	return &nwb.TwoPhotonSeries{
		TimeSeries: nwb.TimeSeries{
			Name: fmt.Sprintf("TwoPhotonSeries%s%d", p.Channel, p.Region.Index()),
			Description: fmt.Sprintf("%s linescans of the %s dendrite",
				p.Indicator, p.Region),
			Comments: fmt.Sprintf("This two-photon series contains %s linescans of the %s (ROI) "+
				"with the first dimension corresponding to time (or to individual linescans). "+
				"Each linescan is 1-sec in duration with 20-sec intervals between two linescans. "+
				"The second dimension corresponds to individual lines spanning the length of the "+
				"dendrite in the ROI. The third dimension corresponds to the width of the dendrite. "+
				"Some linescans may contain appended NaN values to make widths of different "+
				"linescans be equal within the same ROI.   data_continuity = step",
				p.Indicator, p.Region),
			Unit:         "a.u.",
			Data:         p.Stack.Data,
			Dims:         []int{p.Stack.Scans, p.Stack.Lines, p.Stack.Samples},
			StartingTime: 0.0,
			Rate:         p.ImagingRate,
		},
		ImagingPlane: p.ImagingPlane,
		ScanLineRate: p.LineRate,
	}
}

// deltaFParams carries everything needed to build one delta-fluorescence
// record.
type deltaFParams struct {
	Region       models.Region
	Indicator    string
	ImagingPlane string
	ImagingRate  float64
	LineRate     float64

	// Stack is the (scan x line x 1) width-averaged payload
	Stack *models.LinescanStack
}

// buildDeltaFSeries constructs a delta-fluorescence record, e.g.
// TwoPhotonDeltaFSeries1.
func buildDeltaFSeries(p deltaFParams) *nwb.TwoPhotonSeries {
	return &nwb.TwoPhotonSeries{
		TimeSeries: nwb.TimeSeries{
			Name: fmt.Sprintf("TwoPhotonDeltaFSeries%d", p.Region.Index()),
			Description: fmt.Sprintf("Delta F data for the %s calculated based on %s.",
				p.Region, p.Indicator),
			Comments: fmt.Sprintf("This two-photon series contains delta F data calculated based "+
				"on %s for the %s (ROI) with the first dimension corresponding to time "+
				"(or to individual linescans). Each linescan is 1-sec in duration with 20-sec "+
				"intervals between two linescans. The second dimension corresponds to individual "+
				"lines spanning the length of the dendrite in the ROI. The data is averaged "+
				"across the dendritic width.   data_continuity = step",
				p.Indicator, p.Region),
			Unit:         "normalised",
			Data:         p.Stack.Data,
			Dims:         []int{p.Stack.Scans, p.Stack.Lines, p.Stack.Samples},
			StartingTime: 0.0,
			Rate:         p.ImagingRate,
		},
		ImagingPlane: p.ImagingPlane,
		ScanLineRate: p.LineRate,
	}
}

// currentClampParams carries everything needed to build one region's
// current-clamp record.
type currentClampParams struct {
	Region models.Region

	// TimeMs is the single-sweep time vector in milliseconds
	TimeMs []float64

	// Counts gives the per-region sweep counts partitioning the block
	Counts ephys.SweepCounts

	// Sweeps is the full (sweep x sample) block for the session
	Sweeps *mat.Dense

	// Electrode names the electrode descriptor the record references
	Electrode string

	// ImagingRate is recorded in the comments so the explicit per-sample
	// timestamps can be combined with the sweep repetition rate
	ImagingRate float64
}

// buildCurrentClampSeries slices the region's sweep window out of the
// block and constructs its somatic current clamp record, e.g.
// CurrentClampSeries1. The millisecond time vector is converted to
// seconds before it is attached.
func buildCurrentClampSeries(p currentClampParams) (*nwb.CurrentClampSeries, error) {
	window, err := ephys.Partition(p.Sweeps, p.Counts, p.Region)
	if err != nil {
		return nil, err
	}

	rows, cols := window.Dims()
	data := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			data[i*cols+j] = window.At(i, j)
		}
	}

	description := fmt.Sprintf("Somatic current clamp recording corresponding to the initial "+
		"part of the calcium imaging period at %s dendrite.", p.Region)

	return &nwb.CurrentClampSeries{
		TimeSeries: nwb.TimeSeries{
			Name:        fmt.Sprintf("CurrentClampSeries%d", p.Region.Index()),
			Description: description,
			Comments: description + " The first dimension corresponds to individual recording " +
				"sweeps. The second dimension corresponds to individual sweep data samples. " +
				"The associated timestamps variable provides timestamps for the second dimension. " +
				"This variable has to be combined with starting_time and rate variables to get " +
				"absolute timestamps for each data point.   data_continuity = step.   " +
				fmt.Sprintf("rate = %g", p.ImagingRate),
			Unit: "millivolt",
			Data: data,
			Dims: []int{rows, cols},
		},
		Electrode:           p.Electrode,
		Gain:                1.0,
		StimulusDescription: "N/A",
		Timestamps:          ephys.TimeToSeconds(p.TimeMs),
	}, nil
}
