// Package visualization exports the session's reference images as JPEG
// previews so the converted data can be eyeballed without an NWB reader.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	"caimg2nwb/internal/models"
)

// Exporter writes preview images into a single output directory.
type Exporter struct {
	// outputDir is created on first export if it does not exist
	outputDir string
}

// NewExporter creates a preview exporter targeting the given directory.
func NewExporter(outputDir string) *Exporter {
	return &Exporter{outputDir: outputDir}
}

// ExportNeuron renders the full-neuron RGB image. The data is expected
// row-major with dimensions (height x width x 3).
func (e *Exporter) ExportNeuron(img *models.Image, name string) (string, error) {
	if img == nil {
		return "", fmt.Errorf("neuron image is missing")
	}
	if len(img.Dims) != 3 || img.Dims[2] != 3 {
		return "", fmt.Errorf("neuron image has dimensions %v, expected (height x width x 3)", img.Dims)
	}

	height, width := img.Dims[0], img.Dims[1]
	lo, hi := valueRange(img.Data)

	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			base := y*width*3 + x*3
			out.SetRGBA(x, y, color.RGBA{
				R: scaleTo8(img.Data[base], lo, hi),
				G: scaleTo8(img.Data[base+1], lo, hi),
				B: scaleTo8(img.Data[base+2], lo, hi),
				A: 255,
			})
		}
	}

	return e.save(out, name)
}

// ExportROI renders a region's grayscale ROI image. The data is expected
// row-major with dimensions (height x width).
func (e *Exporter) ExportROI(img *models.Image, name string) (string, error) {
	if img == nil {
		return "", fmt.Errorf("ROI image is missing")
	}
	if len(img.Dims) != 2 {
		return "", fmt.Errorf("ROI image has dimensions %v, expected (height x width)", img.Dims)
	}

	height, width := img.Dims[0], img.Dims[1]
	lo, hi := valueRange(img.Data)

	out := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			value := scaleTo16(img.Data[y*width+x], lo, hi)
			out.SetGray16(x, y, color.Gray16{Y: value})
		}
	}

	return e.save(out, name)
}

// ExportSession writes previews for every reference image in the session:
// the full neuron plus each region's dendrite ROI.
func (e *Exporter) ExportSession(regions map[models.Region]*models.RegionData) ([]string, error) {
	var paths []string

	neuron := regions[models.Bottom].Neuron
	path, err := e.ExportNeuron(neuron, "neuron")
	if err != nil {
		return nil, err
	}
	paths = append(paths, path)

	for _, region := range models.Regions {
		path, err := e.ExportROI(regions[region].ROI, fmt.Sprintf("dendrite%d", region.Index()))
		if err != nil {
			return nil, fmt.Errorf("region %v: %w", region, err)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

// save encodes the image as JPEG under the output directory.
func (e *Exporter) save(img image.Image, name string) (string, error) {
	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(e.outputDir, name+".jpg")
	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := jpeg.Encode(file, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", err
	}
	return path, nil
}

// valueRange finds the finite min and max of the data, ignoring NaNs.
func valueRange(data []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range data {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo > hi {
		return 0, 0
	}
	return lo, hi
}

// scaleTo8 maps a value in [lo, hi] onto the 8-bit range.
func scaleTo8(v, lo, hi float64) uint8 {
	return uint8(scale(v, lo, hi) * 255)
}

// scaleTo16 maps a value in [lo, hi] onto the 16-bit range.
func scaleTo16(v, lo, hi float64) uint16 {
	return uint16(scale(v, lo, hi) * 65535)
}

func scale(v, lo, hi float64) float64 {
	if math.IsNaN(v) || hi <= lo {
		return 0
	}
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}
