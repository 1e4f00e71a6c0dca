package nwb

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/scigolib/hdf5"
)

// Write serializes the container to an HDF5 file at the given path.
//
// The file is written as a single unit of work: if any dataset fails to
// write, the file handle is closed and the partial file is removed so a
// truncated container is never left behind. Numeric payloads are written
// as float64 datasets with explicit dimensions; text fields are written
// as byte datasets.
func (f *File) Write(path string) error {
	fw, err := hdf5.CreateForWrite(path, hdf5.CreateTruncate)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	var werr error
	fail := func(p string, err error) {
		if werr == nil {
			werr = fmt.Errorf("failed to write %s: %w", p, err)
		}
	}

	// Groups have to exist before a dataset can be linked into them, and
	// parents have to be created before their children.
	created := make(map[string]bool)
	ensureParent := func(p string) {
		if werr != nil {
			return
		}
		segments := strings.Split(strings.Trim(p, "/"), "/")
		group := ""
		for _, segment := range segments[:len(segments)-1] {
			group += "/" + segment
			if created[group] {
				continue
			}
			if _, err := fw.CreateGroup(group); err != nil {
				fail(group, err)
				return
			}
			created[group] = true
		}
	}

	writeFloats := func(p string, vals []float64, dims []uint64) {
		if werr != nil {
			return
		}
		ensureParent(p)
		if werr != nil {
			return
		}
		ds, err := fw.CreateDataset(p, hdf5.Float64, dims)
		if err != nil {
			fail(p, err)
			return
		}
		if err := ds.Write(vals); err != nil {
			fail(p, err)
		}
	}
	writeScalar := func(p string, v float64) {
		writeFloats(p, []float64{v}, []uint64{1})
	}
	writeString := func(p, s string) {
		if werr != nil || s == "" {
			return
		}
		ensureParent(p)
		if werr != nil {
			return
		}
		ds, err := fw.CreateDataset(p, hdf5.Uint8, []uint64{uint64(len(s))})
		if err != nil {
			fail(p, err)
			return
		}
		if err := ds.Write([]byte(s)); err != nil {
			fail(p, err)
		}
	}

	// Top-level session identity.
	writeString("/identifier", f.Identifier)
	writeString("/session_description", f.SessionDescription)
	writeString("/session_start_time", f.SessionStartTime.Format(time.RFC3339))
	writeString("/file_create_date", time.Now().Format(time.RFC3339))

	// General metadata group.
	writeString("/general/experimenter", f.Experimenter)
	writeString("/general/institution", f.Institution)
	writeString("/general/lab", f.Lab)
	writeString("/general/notes", f.Notes)
	writeString("/general/related_publications", f.RelatedPublications)
	writeString("/general/session_id", f.SessionID)

	if f.Subject != nil {
		writeString("/general/subject/subject_id", f.Subject.SubjectID)
		writeString("/general/subject/age", f.Subject.Age)
		writeString("/general/subject/description", f.Subject.Description)
		writeString("/general/subject/species", f.Subject.Species)
		writeString("/general/subject/sex", f.Subject.Sex)
		writeString("/general/subject/strain", f.Subject.Strain)
	}

	for _, d := range f.devices {
		base := "/general/devices/" + d.Name
		writeString(base+"/description", d.Description)
		writeString(base+"/manufacturer", d.Manufacturer)
	}

	for _, e := range f.electrodes {
		base := "/general/intracellular_ephys/" + e.Name
		writeString(base+"/description", e.Description)
		writeString(base+"/location", e.Location)
		writeString(base+"/slice", e.Slice)
		writeString(base+"/device", e.Device)
	}

	for _, p := range f.imagingPlanes {
		base := "/general/optophysiology/" + p.Name
		writeString(base+"/description", p.Description)
		writeString(base+"/indicator", p.Indicator)
		writeString(base+"/location", p.Location)
		writeString(base+"/device", p.Device)
		writeScalar(base+"/excitation_lambda", p.ExcitationLambda)
		writeScalar(base+"/imaging_rate", p.ImagingRate)
		writeString(base+"/optical_channel/description", p.OpticalChannel.Description)
		writeScalar(base+"/optical_channel/emission_lambda", p.OpticalChannel.EmissionLambda)
	}

	for _, a := range f.acquisitions {
		base := "/acquisition/" + a.Label()
		switch rec := a.(type) {
		case *TwoPhotonSeries:
			writeFloats(base+"/data", rec.Data, toUint64(rec.Dims))
			writeString(base+"/description", rec.Description)
			writeString(base+"/comments", rec.Comments)
			writeString(base+"/unit", rec.Unit)
			writeString(base+"/imaging_plane", rec.ImagingPlane)
			writeScalar(base+"/starting_time", rec.StartingTime)
			writeScalar(base+"/rate", rec.Rate)
			writeScalar(base+"/scan_line_rate", rec.ScanLineRate)

		case *CurrentClampSeries:
			writeFloats(base+"/data", rec.Data, toUint64(rec.Dims))
			writeFloats(base+"/timestamps", rec.Timestamps, []uint64{uint64(len(rec.Timestamps))})
			writeString(base+"/description", rec.Description)
			writeString(base+"/comments", rec.Comments)
			writeString(base+"/unit", rec.Unit)
			writeString(base+"/electrode", rec.Electrode)
			writeString(base+"/stimulus_description", rec.StimulusDescription)
			writeScalar(base+"/gain", rec.Gain)

		case *TimeSeries:
			writeFloats(base+"/data", rec.Data, toUint64(rec.Dims))
			writeString(base+"/description", rec.Description)
			writeString(base+"/comments", rec.Comments)
			writeString(base+"/unit", rec.Unit)
			writeScalar(base+"/starting_time", rec.StartingTime)
			writeScalar(base+"/rate", rec.Rate)

		case *Images:
			writeString(base+"/description", rec.Description)
			for _, img := range rec.Images {
				writeFloats(base+"/"+img.Name, img.Data, toUint64(img.Dims))
				writeString(base+"/"+img.Name+"_description", img.Description)
			}

		default:
			fail(base, fmt.Errorf("unknown acquisition type %T", a))
		}
	}

	if werr != nil {
		fw.Close()
		os.Remove(path)
		return werr
	}
	if err := fw.Close(); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to finalize output file %s: %w", path, err)
	}
	return nil
}

func toUint64(dims []int) []uint64 {
	out := make([]uint64, len(dims))
	for i, d := range dims {
		out[i] = uint64(d)
	}
	return out
}
