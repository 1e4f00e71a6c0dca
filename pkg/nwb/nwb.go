// Package nwb models a Neurodata Without Borders session container and
// serializes it to an HDF5 file.
//
// Only the parts of the NWB schema this conversion produces are modelled:
// session and subject metadata, device / electrode / imaging-plane
// descriptors, time-series acquisition records and an image collection.
// Acquisition records are append-once: a record is never replaced or
// removed after it has been added.
package nwb

import (
	"fmt"
	"time"
)

// Subject describes the experimental animal.
type Subject struct {
	SubjectID   string
	Age         string
	Description string
	Species     string
	Sex         string
	Strain      string
}

// Device describes a piece of recording hardware.
type Device struct {
	Name         string
	Description  string
	Manufacturer string
}

// Electrode describes an intracellular recording electrode.
type Electrode struct {
	Name        string
	Description string
	Location    string
	Slice       string
	Device      string
}

// OpticalChannel describes one emission channel of an imaging plane.
type OpticalChannel struct {
	Description    string
	EmissionLambda float64
}

// ImagingPlane describes an optical imaging plane for one indicator.
type ImagingPlane struct {
	Name             string
	Description      string
	Indicator        string
	Location         string
	ExcitationLambda float64
	ImagingRate      float64
	Device           string
	OpticalChannel   OpticalChannel
}

// Acquisition is any record that can be appended to the container's
// acquisition group.
type Acquisition interface {
	// Label returns the record's unique name within the container.
	Label() string

	// validate checks internal consistency before the record is
	// accepted into the container.
	validate() error
}

// TimeSeries holds the fields shared by all time-series records. Data is
// stored flat in row-major order with explicit dimensions.
type TimeSeries struct {
	Name         string
	Description  string
	Comments     string
	Unit         string
	Data         []float64
	Dims         []int
	StartingTime float64
	Rate         float64
}

// Label implements Acquisition.
func (ts *TimeSeries) Label() string { return ts.Name }

func (ts *TimeSeries) validate() error {
	if ts.Name == "" {
		return fmt.Errorf("time series has no name")
	}
	if ts.Unit == "" {
		return fmt.Errorf("time series %q has no unit", ts.Name)
	}
	want := 1
	for _, d := range ts.Dims {
		want *= d
	}
	if len(ts.Dims) == 0 || len(ts.Data) != want {
		return fmt.Errorf("time series %q: %d values for shape %v", ts.Name, len(ts.Data), ts.Dims)
	}
	return nil
}

// TwoPhotonSeries is a linescan imaging record tied to an imaging plane.
type TwoPhotonSeries struct {
	TimeSeries
	ImagingPlane string
	ScanLineRate float64
}

func (s *TwoPhotonSeries) validate() error {
	if err := s.TimeSeries.validate(); err != nil {
		return err
	}
	if s.ImagingPlane == "" {
		return fmt.Errorf("two-photon series %q has no imaging plane", s.Name)
	}
	return nil
}

// CurrentClampSeries is an intracellular recording tied to an electrode.
// Timestamps are explicit, in seconds, and describe the sample axis.
type CurrentClampSeries struct {
	TimeSeries
	Electrode           string
	Gain                float64
	StimulusDescription string
	Timestamps          []float64
}

func (s *CurrentClampSeries) validate() error {
	if err := s.TimeSeries.validate(); err != nil {
		return err
	}
	if s.Electrode == "" {
		return fmt.Errorf("current clamp series %q has no electrode", s.Name)
	}
	if len(s.Timestamps) == 0 {
		return fmt.Errorf("current clamp series %q has no timestamps", s.Name)
	}
	if len(s.Dims) != 2 {
		return fmt.Errorf("current clamp series %q has shape %v, expected (sweep x sample)",
			s.Name, s.Dims)
	}
	// The timestamps describe the sample axis.
	if len(s.Timestamps) != s.Dims[1] {
		return fmt.Errorf("current clamp series %q: %d timestamps for %d samples per sweep",
			s.Name, len(s.Timestamps), s.Dims[1])
	}
	return nil
}

// Image is one reference image in an image collection.
type Image struct {
	Name        string
	Description string
	Data        []float64
	Dims        []int
}

// Images is a named collection of reference images.
type Images struct {
	Name        string
	Description string
	Images      []Image
}

// Label implements Acquisition.
func (im *Images) Label() string { return im.Name }

func (im *Images) validate() error {
	if im.Name == "" {
		return fmt.Errorf("image collection has no name")
	}
	seen := make(map[string]bool)
	for _, img := range im.Images {
		if img.Name == "" {
			return fmt.Errorf("image collection %q contains an unnamed image", im.Name)
		}
		if seen[img.Name] {
			return fmt.Errorf("image collection %q has duplicate image %q", im.Name, img.Name)
		}
		seen[img.Name] = true
		want := 1
		for _, d := range img.Dims {
			want *= d
		}
		if len(img.Dims) == 0 || len(img.Data) != want {
			return fmt.Errorf("image %q: %d values for shape %v", img.Name, len(img.Data), img.Dims)
		}
	}
	return nil
}

// File is an NWB session container being assembled in memory.
type File struct {
	Identifier          string
	SessionDescription  string
	SessionStartTime    time.Time
	SessionID           string
	Experimenter        string
	Institution         string
	Lab                 string
	Notes               string
	RelatedPublications string

	Subject *Subject

	devices       []Device
	electrodes    []Electrode
	imagingPlanes []ImagingPlane
	acquisitions  []Acquisition
	names         map[string]bool
}

// NewFile creates an empty container with the given identity fields.
func NewFile(identifier, sessionDescription string, startTime time.Time) *File {
	return &File{
		Identifier:         identifier,
		SessionDescription: sessionDescription,
		SessionStartTime:   startTime,
		names:              make(map[string]bool),
	}
}

// AddDevice registers a recording device descriptor.
func (f *File) AddDevice(d Device) {
	f.devices = append(f.devices, d)
}

// AddElectrode registers an intracellular electrode descriptor.
func (f *File) AddElectrode(e Electrode) {
	f.electrodes = append(f.electrodes, e)
}

// AddImagingPlane registers an imaging plane descriptor.
func (f *File) AddImagingPlane(p ImagingPlane) {
	f.imagingPlanes = append(f.imagingPlanes, p)
}

// AddAcquisition appends a record to the acquisition group. Appending is
// atomic from the caller's perspective: a record that fails validation is
// not partially added. Duplicate record names are rejected because a
// record can never be replaced once appended.
func (f *File) AddAcquisition(a Acquisition) error {
	if err := a.validate(); err != nil {
		return err
	}
	if f.names == nil {
		f.names = make(map[string]bool)
	}
	if f.names[a.Label()] {
		return fmt.Errorf("acquisition %q already exists in the container", a.Label())
	}
	f.names[a.Label()] = true
	f.acquisitions = append(f.acquisitions, a)
	return nil
}

// Acquisitions returns the appended records in append order.
func (f *File) Acquisitions() []Acquisition {
	return f.acquisitions
}
