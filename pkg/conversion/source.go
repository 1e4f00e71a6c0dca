package conversion

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"caimg2nwb/internal/models"
	"caimg2nwb/pkg/config"
	"caimg2nwb/pkg/matfile"
)

// Field keys of the Analysed_data struct inside each region's MAT-file.
// The analysis pipeline writes these names; a missing key is a fatal
// input error.
const (
	varAnalysed = "Analysed_data"
	fieldGreen  = "Flur5_denoised"
	fieldRed    = "Alexa_denoised"
	fieldDeltaF = "Calcium_deltaF"
	fieldTime   = "Ephys_Time"
	fieldSweeps = "Ephys_data"
	fieldROI    = "ROI_img"
	fieldNeuron = "Neuron"
)

// Source supplies one region's decoded recording data. The production
// source reads the analysed MAT-files; tests substitute in-memory data.
type Source interface {
	Load(region models.Region) (*models.RegionData, error)
}

// matSource loads region data from the per-region MAT-files named in the
// configuration.
type matSource struct {
	cfg *config.Config
}

// NewMatSource returns a Source backed by the configured MAT-files.
func NewMatSource(cfg *config.Config) Source {
	return &matSource{cfg: cfg}
}

func (s *matSource) Load(region models.Region) (*models.RegionData, error) {
	path := s.cfg.InputPath(region.String())
	f, err := matfile.Open(path)
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}

	root, err := f.Var(varAnalysed)
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}

	data := &models.RegionData{Region: region}

	if data.Green, err = linescanSet(root, fieldGreen); err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}
	if data.Red, err = linescanSet(root, fieldRed); err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}

	deltaF, err := root.Field(fieldDeltaF)
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}
	if data.DeltaF, err = deltaF.Matrix(); err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}

	tv, err := root.Field(fieldTime)
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}
	if data.EphysTime, err = tv.Vector(); err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}

	// The sweep block is stored sample-major; transpose so the first
	// dimension indexes sweeps.
	sweeps, err := root.Field(fieldSweeps)
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}
	stored, err := sweeps.Matrix()
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}
	data.Sweeps = mat.DenseCopyOf(stored.T())

	roi, err := root.Field(fieldROI)
	if err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}
	if data.ROI, err = toImage(roi, 2); err != nil {
		return nil, fmt.Errorf("region %v: %w", region, err)
	}

	// The full-neuron RGB image lives in the bottom region's file.
	if region == models.Bottom {
		neuron, err := root.Field(fieldNeuron)
		if err != nil {
			return nil, fmt.Errorf("region %v: %w", region, err)
		}
		if data.Neuron, err = toImage(neuron, 3); err != nil {
			return nil, fmt.Errorf("region %v: %w", region, err)
		}
	}

	return data, nil
}

// linescanSet decodes a cell array of 2D linescan matrices.
func linescanSet(root *matfile.Array, field string) ([]*mat.Dense, error) {
	arr, err := root.Field(field)
	if err != nil {
		return nil, err
	}
	cells, err := arr.Cells()
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", field, err)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("field %q contains no linescans", field)
	}
	scans := make([]*mat.Dense, len(cells))
	for i, cell := range cells {
		m, err := cell.Matrix()
		if err != nil {
			return nil, fmt.Errorf("field %q, linescan %d: %w", field, i, err)
		}
		scans[i] = m
	}
	return scans, nil
}

// toImage decodes a reference image with the expected dimensionality.
func toImage(arr *matfile.Array, wantDims int) (*models.Image, error) {
	if len(arr.Dims) != wantDims {
		return nil, fmt.Errorf("image %q has %d dimensions, expected %d",
			arr.Name, len(arr.Dims), wantDims)
	}
	vals, err := arr.Float64s()
	if err != nil {
		return nil, err
	}
	dims := make([]int, len(arr.Dims))
	copy(dims, arr.Dims)
	return &models.Image{Data: vals, Dims: dims}, nil
}
