// Package conversion drives the session conversion: it loads the three
// per-region analysed MAT-files, normalizes the imaging and
// electrophysiology arrays, assembles the NWB container and writes it to
// disk as a single unit of work.
package conversion

import (
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"caimg2nwb/internal/models"
	"caimg2nwb/pkg/config"
	"caimg2nwb/pkg/ephys"
	"caimg2nwb/pkg/linescan"
	"caimg2nwb/pkg/nwb"
	"caimg2nwb/pkg/visualization"
)

// Params holds the conversion parameters.
type Params struct {
	// Config is the validated session configuration
	Config *config.Config

	// Source supplies per-region recording data. When nil, the
	// MAT-file source built from Config is used.
	Source Source

	// Verbose enables staged progress output
	Verbose bool
}

// RegionSummary describes one region's contribution to the container.
type RegionSummary struct {
	// Scans is the number of linescan events recorded at the region
	Scans int

	// SweepStart and SweepEnd give the region's half-open window into
	// the current-clamp sweep block
	SweepStart int
	SweepEnd   int

	// MeanDeltaF and PeakDeltaF summarize the region's normalized
	// delta-fluorescence trace
	MeanDeltaF float64
	PeakDeltaF float64
}

// Summary reports what a completed conversion produced.
type Summary struct {
	// OutputPath is where the container was written
	OutputPath string

	// SeriesRecords is the number of time-series acquisition records
	SeriesRecords int

	// ImageRecords is the number of images in the reference collection
	ImageRecords int

	// Regions holds per-region statistics in acquisition order
	Regions [3]RegionSummary
}

// Converter performs one session's conversion. It is single-threaded:
// the container is appended to sequentially and the converter must not
// be shared between goroutines while Process is running.
type Converter struct {
	params  *Params
	cfg     *config.Config
	source  Source
	summary Summary
}

// NewConverter creates a converter for the given parameters.
func NewConverter(params *Params) *Converter {
	source := params.Source
	if source == nil {
		source = NewMatSource(params.Config)
	}
	return &Converter{
		params: params,
		cfg:    params.Config,
		source: source,
	}
}

func (c *Converter) logf(format string, args ...interface{}) {
	if c.params.Verbose {
		fmt.Printf(format+"\n", args...)
	}
}

// Process runs the complete conversion pipeline and writes the container
// to {output dir}/{session ID}.nwb.
func (c *Converter) Process() error {
	sessionID := c.cfg.SessionID()
	outputPath := filepath.Join(c.cfg.Output.Dir, sessionID+".nwb")

	// Step 1: Load the three per-region analysed files.
	c.logf("Step 1: Loading analysed region data...")
	regions := make(map[models.Region]*models.RegionData, len(models.Regions))
	for _, region := range models.Regions {
		data, err := c.source.Load(region)
		if err != nil {
			return fmt.Errorf("failed to load region data: %w", err)
		}
		regions[region] = data
	}

	// Step 2: Normalize linescan widths and stack into dense 3D arrays.
	// The per-region scan counts double as the sweep counts partitioning
	// the electrophysiology block.
	c.logf("Step 2: Normalizing linescan widths...")
	type stacked struct {
		green  *models.LinescanStack
		red    *models.LinescanStack
		deltaF *models.LinescanStack
	}
	stacks := make(map[models.Region]*stacked, len(models.Regions))
	var counts ephys.SweepCounts
	for _, region := range models.Regions {
		data := regions[region]

		green, err := c.stackChannel(data.Green)
		if err != nil {
			return fmt.Errorf("region %v, %s: %w", region, fieldGreen, err)
		}
		red, err := c.stackChannel(data.Red)
		if err != nil {
			return fmt.Errorf("region %v, %s: %w", region, fieldRed, err)
		}
		deltaF, err := linescan.StackDeltaF(data.DeltaF)
		if err != nil {
			return fmt.Errorf("region %v, %s: %w", region, fieldDeltaF, err)
		}

		stacks[region] = &stacked{green: green, red: red, deltaF: deltaF}
		counts[int(region)] = green.Scans
		c.logf("  %s dendrite: %d scans, %d lines, width %d",
			region, green.Scans, green.Lines, green.Samples)
	}

	// Step 3: Assemble session metadata.
	c.logf("Step 3: Assembling session metadata...")
	file := c.buildMetadata(sessionID)

	// Step 4: Build and append acquisition records.
	c.logf("Step 4: Building acquisition records...")
	for _, channel := range models.Channels {
		for _, region := range models.Regions {
			p := twoPhotonParams{
				Region:      region,
				Channel:     channel,
				Indicator:   c.indicator(channel),
				ImagingRate: c.cfg.Imaging.ImagingRate,
				LineRate:    c.cfg.Imaging.LineRate,
			}
			switch channel {
			case models.Green:
				p.ImagingPlane = greenPlaneName
				p.Stack = stacks[region].green
			case models.Red:
				p.ImagingPlane = redPlaneName
				p.Stack = stacks[region].red
			}
			if err := file.AddAcquisition(buildTwoPhotonSeries(p)); err != nil {
				return fmt.Errorf("failed to append two-photon series: %w", err)
			}
		}
	}

	// Delta F is computed from the red structural channel.
	for _, region := range models.Regions {
		series := buildDeltaFSeries(deltaFParams{
			Region:       region,
			Indicator:    c.cfg.Imaging.RedIndicator,
			ImagingPlane: redPlaneName,
			ImagingRate:  c.cfg.Imaging.ImagingRate,
			LineRate:     c.cfg.Imaging.LineRate,
			Stack:        stacks[region].deltaF,
		})
		if err := file.AddAcquisition(series); err != nil {
			return fmt.Errorf("failed to append delta F series: %w", err)
		}
	}

	for _, region := range models.Regions {
		series, err := buildCurrentClampSeries(currentClampParams{
			Region:      region,
			TimeMs:      regions[region].EphysTime,
			Counts:      counts,
			Sweeps:      regions[region].Sweeps,
			Electrode:   electrodeName,
			ImagingRate: c.cfg.Imaging.ImagingRate,
		})
		if err != nil {
			return fmt.Errorf("failed to build current clamp series: %w", err)
		}
		if err := file.AddAcquisition(series); err != nil {
			return fmt.Errorf("failed to append current clamp series: %w", err)
		}
	}

	images, err := buildImageCollection(regions)
	if err != nil {
		return fmt.Errorf("failed to build image collection: %w", err)
	}
	if err := file.AddAcquisition(images); err != nil {
		return fmt.Errorf("failed to append image collection: %w", err)
	}

	// Step 5: Write the container in one unit of work.
	c.logf("Step 5: Writing NWB container to %s...", outputPath)
	if err := file.Write(outputPath); err != nil {
		return err
	}

	// Step 6: Optionally export reference image previews.
	if c.cfg.Output.SavePreviews {
		c.logf("Step 6: Exporting reference image previews to %s...", c.cfg.Output.PreviewDir)
		exporter := visualization.NewExporter(c.cfg.Output.PreviewDir)
		if _, err := exporter.ExportSession(regions); err != nil {
			return fmt.Errorf("failed to export previews: %w", err)
		}
	}

	// Step 7: Summarize what was produced.
	c.logf("Step 7: Summarizing conversion...")
	seriesCount := 0
	for _, a := range file.Acquisitions() {
		if _, ok := a.(*nwb.Images); !ok {
			seriesCount++
		}
	}
	c.summarize(outputPath, stacks[models.Bottom].deltaF, stacks[models.Middle].deltaF,
		stacks[models.Top].deltaF, counts, seriesCount, len(images.Images))

	return nil
}

// stackChannel normalizes one channel's ragged linescan set and stacks it.
func (c *Converter) stackChannel(scans []*mat.Dense) (*models.LinescanStack, error) {
	normalized, err := linescan.Normalize(scans)
	if err != nil {
		return nil, err
	}
	return linescan.Stack(normalized)
}

// indicator maps an optical channel to its configured dye name.
func (c *Converter) indicator(channel models.Channel) string {
	if channel == models.Green {
		return c.cfg.Imaging.GreenIndicator
	}
	return c.cfg.Imaging.RedIndicator
}

// buildMetadata assembles the container's session, subject, device,
// electrode and imaging plane descriptors from the configuration.
func (c *Converter) buildMetadata(sessionID string) *nwb.File {
	cfg := c.cfg

	file := nwb.NewFile(sessionID, cfg.Session.Description, cfg.StartTime())
	file.SessionID = sessionID
	file.Experimenter = cfg.Project.Experimenter
	file.Institution = cfg.Project.Institution
	file.Lab = cfg.Project.Lab
	file.Notes = cfg.Session.Notes
	file.RelatedPublications = cfg.Project.Publications

	file.Subject = &nwb.Subject{
		SubjectID:   cfg.Animal.ID,
		Age:         cfg.Age(),
		Description: cfg.Animal.Description,
		Species:     cfg.Animal.Species,
		Sex:         cfg.Animal.Sex,
		Strain:      cfg.Animal.Strain,
	}

	file.AddDevice(nwb.Device{
		Name:         imagingDeviceName,
		Description:  "Two-photon microscope",
		Manufacturer: "Scientifica",
	})
	file.AddDevice(nwb.Device{
		Name:         amplifierDeviceName,
		Description:  "Amplifier for recording current clamp data.",
		Manufacturer: "Molecular Devices",
	})

	file.AddElectrode(nwb.Electrode{
		Name:        electrodeName,
		Description: "A patch clamp electrode",
		Location:    "Cell soma in CA1-2 of hippocampus",
		Slice:       fmt.Sprintf("slice #%d", cfg.Session.SliceNumber),
		Device:      amplifierDeviceName,
	})

	file.AddImagingPlane(nwb.ImagingPlane{
		Name:             greenPlaneName,
		Description:      fmt.Sprintf("The plane for imaging calcium indicator %s.", cfg.Imaging.GreenIndicator),
		Indicator:        cfg.Imaging.GreenIndicator,
		Location:         cfg.Project.BrainArea,
		ExcitationLambda: cfg.Imaging.ExcitationLambda,
		ImagingRate:      cfg.Imaging.ImagingRate,
		Device:           imagingDeviceName,
		OpticalChannel: nwb.OpticalChannel{
			Description:    fmt.Sprintf("green channel corresponding to %s", cfg.Imaging.GreenIndicator),
			EmissionLambda: cfg.Imaging.GreenEmissionLambda,
		},
	})
	file.AddImagingPlane(nwb.ImagingPlane{
		Name:             redPlaneName,
		Description:      fmt.Sprintf("The plane for imaging calcium indicator %s.", cfg.Imaging.RedIndicator),
		Indicator:        cfg.Imaging.RedIndicator,
		Location:         cfg.Project.BrainArea,
		ExcitationLambda: cfg.Imaging.ExcitationLambda,
		ImagingRate:      cfg.Imaging.ImagingRate,
		Device:           imagingDeviceName,
		OpticalChannel: nwb.OpticalChannel{
			Description:    fmt.Sprintf("red channel corresponding to %s", cfg.Imaging.RedIndicator),
			EmissionLambda: cfg.Imaging.RedEmissionLambda,
		},
	})

	return file
}

// buildImageCollection gathers the session's reference images: the full
// neuron RGB image from the bottom region's file plus each region's
// grayscale ROI image.
func buildImageCollection(regions map[models.Region]*models.RegionData) (*nwb.Images, error) {
	neuron := regions[models.Bottom].Neuron
	if neuron == nil {
		return nil, fmt.Errorf("region bottom: missing %s image", fieldNeuron)
	}

	collection := &nwb.Images{
		Name:        imageCollectionName,
		Description: "A collection of neuron and dendrite images.",
		Images: []nwb.Image{{
			Name:        "neuron_image",
			Description: "RGB image of the full neuron.",
			Data:        neuron.Data,
			Dims:        neuron.Dims,
		}},
	}

	for _, region := range models.Regions {
		roi := regions[region].ROI
		if roi == nil {
			return nil, fmt.Errorf("region %v: missing %s image", region, fieldROI)
		}
		collection.Images = append(collection.Images, nwb.Image{
			Name:        fmt.Sprintf("dendrite%d_image", region.Index()),
			Description: fmt.Sprintf("Grayscale image of the %s dendrite.", region),
			Data:        roi.Data,
			Dims:        roi.Dims,
		})
	}
	return collection, nil
}

// summarize records post-run statistics over the delta-F traces.
func (c *Converter) summarize(outputPath string, bottom, middle, top *models.LinescanStack,
	counts ephys.SweepCounts, seriesCount, imageCount int) {

	c.summary = Summary{
		OutputPath:    outputPath,
		SeriesRecords: seriesCount,
		ImageRecords:  imageCount,
	}
	traces := []*models.LinescanStack{bottom, middle, top}
	for i, region := range models.Regions {
		start, end, err := counts.Window(region)
		if err != nil {
			continue
		}
		c.summary.Regions[i] = RegionSummary{
			Scans:      counts[i],
			SweepStart: start,
			SweepEnd:   end,
			MeanDeltaF: stat.Mean(traces[i].Data, nil),
			PeakDeltaF: floats.Max(traces[i].Data),
		}
	}
}

// GetSummary returns the statistics recorded by the last Process run.
func (c *Converter) GetSummary() Summary {
	return c.summary
}
