// Package config provides configuration loading and management for caimg2nwb.
// It handles loading session metadata from YAML files and provides default
// values describing the reference recording session.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents one recording session's conversion parameters loaded
// from YAML. The defaults reproduce the original session so an existing
// conversion keeps working without a config file; any field can be
// overridden for other sessions.
type Config struct {
	// Project holds experiment-level metadata
	Project struct {
		// Name is the full project (experiment) title
		Name string `yaml:"name"`

		// Experimenter is the person who ran the recording
		Experimenter string `yaml:"experimenter"`

		Institution  string `yaml:"institution"`
		Lab          string `yaml:"lab"`
		Publications string `yaml:"publications"`

		// BrainArea is the recorded anatomical location
		BrainArea string `yaml:"brainArea"`
	} `yaml:"project"`

	// Animal holds subject metadata
	Animal struct {
		// ID is the animal identifier used in the session ID
		ID string `yaml:"id"`

		// AgeDays is the animal's age in days, written out in ISO 8601
		// duration form (P<n>D)
		AgeDays int `yaml:"ageDays"`

		Strain  string `yaml:"strain"`
		Sex     string `yaml:"sex"`
		Species string `yaml:"species"`

		// Description is the animal testing order
		Description string `yaml:"description"`
	} `yaml:"animal"`

	// Session holds per-session metadata
	Session struct {
		// Year, Month and Day give the session start date
		Year  int `yaml:"year"`
		Month int `yaml:"month"`
		Day   int `yaml:"day"`

		// SliceNumber and CellNumber identify the recorded cell
		SliceNumber int `yaml:"sliceNumber"`
		CellNumber  int `yaml:"cellNumber"`

		Description string `yaml:"description"`
		Notes       string `yaml:"notes"`
	} `yaml:"session"`

	// Imaging holds two-photon acquisition parameters
	Imaging struct {
		// GreenIndicator is the calcium-sensitive dye on the green channel
		GreenIndicator string `yaml:"greenIndicator"`

		// RedIndicator is the structural dye on the red channel
		RedIndicator string `yaml:"redIndicator"`

		// ImagingRate is the rate at which full linescans repeat, in Hz
		ImagingRate float64 `yaml:"imagingRate"`

		// LineRate is the number of lines scanned per second
		LineRate float64 `yaml:"lineRate"`

		// ExcitationLambda is the two-photon excitation wavelength in nm
		ExcitationLambda float64 `yaml:"excitationLambda"`

		// GreenEmissionLambda and RedEmissionLambda are the emission
		// wavelengths of the two optical channels in nm
		GreenEmissionLambda float64 `yaml:"greenEmissionLambda"`
		RedEmissionLambda   float64 `yaml:"redEmissionLambda"`
	} `yaml:"imaging"`

	// Input holds the per-region analysed MAT-file paths
	Input struct {
		Bottom string `yaml:"bottom"`
		Middle string `yaml:"middle"`
		Top    string `yaml:"top"`
	} `yaml:"input"`

	// Output parameters
	Output struct {
		// Dir is the directory the NWB file is written into
		Dir string `yaml:"dir"`

		// SavePreviews controls whether reference images are exported
		// as JPEG previews alongside the container
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is the directory preview images are saved into
		PreviewDir string `yaml:"previewDir"`

		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`
	} `yaml:"output"`
}

// DefaultConfig returns a configuration describing the reference session.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Project.Name = "Intracellular Ca2+ dynamics during plateau potentials triggered by Schaffer collateral stimulation"
	cfg.Project.Experimenter = "Matt Udakis"
	cfg.Project.Institution = "University of Bristol"
	cfg.Project.Lab = "Jack Mellor lab"
	cfg.Project.Publications = "In preparation"
	cfg.Project.BrainArea = "Hippocampus CA1-2"

	cfg.Animal.ID = "m1"
	cfg.Animal.AgeDays = 100
	cfg.Animal.Strain = "C57BL/6J"
	cfg.Animal.Sex = "M"
	cfg.Animal.Species = "Mus musculus"
	cfg.Animal.Description = "001"

	cfg.Session.Year = 2020
	cfg.Session.Month = 12
	cfg.Session.Day = 4
	cfg.Session.SliceNumber = 2
	cfg.Session.CellNumber = 1
	cfg.Session.Description = "Single cell imaging in a slice combined with somatic current clamp recordings and the stimulation of Schaffer collaterals"
	cfg.Session.Notes = "201204 - Slice 2 Imaging 3 dendrite regions roughly in the SO SR and SLM regions   " +
		"Same line scan with same intensity of stim (2.3V) at different locations along the cell   " +
		"Ephys frames to match up with linescans   " +
		"Frames   " +
		"1-8 Bottom Den   " +
		"10-19 Middle Den   " +
		"22-28 Top Dendrite   " +
		"Missed a few of the imaging with the ephys so more Ephys traces than linescans   " +
		"by the end of the experiment the top or neuron started to bleb."

	// A single linescan lasts 1 sec with a 20 sec interval between
	// linescans, giving one full scan every 21 seconds.
	cfg.Imaging.GreenIndicator = "Fluo5f"
	cfg.Imaging.RedIndicator = "Alexa594"
	cfg.Imaging.ImagingRate = 1.0 / 21.0
	cfg.Imaging.LineRate = 1000.0
	cfg.Imaging.ExcitationLambda = 810.0
	cfg.Imaging.GreenEmissionLambda = 516.0
	cfg.Imaging.RedEmissionLambda = 616.0

	cfg.Output.Dir = "."
	cfg.Output.SavePreviews = false
	cfg.Output.PreviewDir = "previews"
	cfg.Output.Verbose = true

	return cfg
}

// LoadConfig loads configuration from a YAML file.
// If the file doesn't exist, it returns the default configuration.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration can drive a conversion.
func (c *Config) Validate() error {
	if c.Animal.ID == "" {
		return fmt.Errorf("animal.id must be set")
	}
	if c.Session.Year < 2000 || c.Session.Month < 1 || c.Session.Month > 12 ||
		c.Session.Day < 1 || c.Session.Day > 31 {
		return fmt.Errorf("session date %04d-%02d-%02d is not valid",
			c.Session.Year, c.Session.Month, c.Session.Day)
	}
	if c.Session.SliceNumber < 1 || c.Session.CellNumber < 1 {
		return fmt.Errorf("slice and cell numbers must be positive")
	}
	if c.Imaging.ImagingRate <= 0 {
		return fmt.Errorf("imaging.imagingRate must be positive")
	}
	if c.Imaging.LineRate <= 0 {
		return fmt.Errorf("imaging.lineRate must be positive")
	}
	if c.Imaging.GreenIndicator == "" || c.Imaging.RedIndicator == "" {
		return fmt.Errorf("both indicator names must be set")
	}
	if c.Input.Bottom == "" || c.Input.Middle == "" || c.Input.Top == "" {
		return fmt.Errorf("input paths for all three regions must be set")
	}
	return nil
}

// SessionID composes the session identifier from the animal ID, the
// two-digit date and the slice and cell indices, e.g. m1_201204_s2_c1.
func (c *Config) SessionID() string {
	return fmt.Sprintf("%s_%02d%02d%02d_s%d_c%d",
		c.Animal.ID, c.Session.Year%100, c.Session.Month, c.Session.Day,
		c.Session.SliceNumber, c.Session.CellNumber)
}

// StartTime returns the session start date as a timestamp.
func (c *Config) StartTime() time.Time {
	return time.Date(c.Session.Year, time.Month(c.Session.Month), c.Session.Day,
		0, 0, 0, 0, time.UTC)
}

// Age returns the animal's age as an ISO 8601 duration string.
func (c *Config) Age() string {
	return fmt.Sprintf("P%dD", c.Animal.AgeDays)
}

// InputPath returns the analysed MAT-file path for a region name
// ("bottom", "middle" or "top").
func (c *Config) InputPath(region string) string {
	switch region {
	case "bottom":
		return c.Input.Bottom
	case "middle":
		return c.Input.Middle
	case "top":
		return c.Input.Top
	}
	return ""
}
