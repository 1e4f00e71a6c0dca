package visualization

import (
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"caimg2nwb/internal/models"
)

func grayImage(rows, cols int) *models.Image {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i)
	}
	return &models.Image{Data: data, Dims: []int{rows, cols}}
}

func rgbImage(rows, cols int) *models.Image {
	data := make([]float64, rows*cols*3)
	for i := range data {
		data[i] = float64(i % 256)
	}
	return &models.Image{Data: data, Dims: []int{rows, cols, 3}}
}

func TestExportROI(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir)

	path, err := exporter.ExportROI(grayImage(4, 6), "dendrite1")
	if err != nil {
		t.Fatalf("ExportROI failed: %v", err)
	}
	if want := filepath.Join(dir, "dendrite1.jpg"); path != want {
		t.Errorf("path = %q, want %q", path, want)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open preview: %v", err)
	}
	defer file.Close()
	img, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("preview is not a valid JPEG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 6 || bounds.Dy() != 4 {
		t.Errorf("preview is %dx%d, want 6x4", bounds.Dx(), bounds.Dy())
	}
}

func TestExportROIRejectsWrongDims(t *testing.T) {
	exporter := NewExporter(t.TempDir())
	if _, err := exporter.ExportROI(rgbImage(2, 2), "bad"); err == nil {
		t.Error("expected error for 3D data passed as ROI image")
	}
	if _, err := exporter.ExportROI(nil, "nil"); err == nil {
		t.Error("expected error for nil image")
	}
}

func TestExportNeuron(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir)

	path, err := exporter.ExportNeuron(rgbImage(3, 5), "neuron")
	if err != nil {
		t.Fatalf("ExportNeuron failed: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open preview: %v", err)
	}
	defer file.Close()
	img, err := jpeg.Decode(file)
	if err != nil {
		t.Fatalf("preview is not a valid JPEG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 5 || bounds.Dy() != 3 {
		t.Errorf("preview is %dx%d, want 5x3", bounds.Dx(), bounds.Dy())
	}
}

func TestExportNeuronRejectsWrongDims(t *testing.T) {
	exporter := NewExporter(t.TempDir())
	if _, err := exporter.ExportNeuron(grayImage(2, 2), "bad"); err == nil {
		t.Error("expected error for 2D data passed as neuron image")
	}
}

func TestExportSession(t *testing.T) {
	dir := t.TempDir()
	exporter := NewExporter(dir)

	regions := map[models.Region]*models.RegionData{
		models.Bottom: {Region: models.Bottom, ROI: grayImage(2, 2), Neuron: rgbImage(2, 2)},
		models.Middle: {Region: models.Middle, ROI: grayImage(2, 2)},
		models.Top:    {Region: models.Top, ROI: grayImage(2, 2)},
	}

	paths, err := exporter.ExportSession(regions)
	if err != nil {
		t.Fatalf("ExportSession failed: %v", err)
	}
	if len(paths) != 4 {
		t.Fatalf("expected 4 previews, got %d", len(paths))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("preview %q not written: %v", path, err)
		}
	}
}

func TestExportSessionFailsWithoutNeuron(t *testing.T) {
	exporter := NewExporter(t.TempDir())
	regions := map[models.Region]*models.RegionData{
		models.Bottom: {Region: models.Bottom, ROI: grayImage(2, 2)},
		models.Middle: {Region: models.Middle, ROI: grayImage(2, 2)},
		models.Top:    {Region: models.Top, ROI: grayImage(2, 2)},
	}
	if _, err := exporter.ExportSession(regions); err == nil {
		t.Error("expected error when neuron image is missing")
	}
}
