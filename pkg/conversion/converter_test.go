package conversion

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"caimg2nwb/internal/models"
	"caimg2nwb/pkg/config"
	"caimg2nwb/pkg/ephys"
	"caimg2nwb/pkg/linescan"
)

// fakeSource synthesizes a full session in memory: three regions with
// scan counts 8, 10 and 7, ragged linescan widths, and a shared 25-sweep
// current-clamp block.
type fakeSource struct {
	scanCounts  [3]int
	totalSweeps int
	dropNeuron  bool
}

func defaultFakeSource() *fakeSource {
	return &fakeSource{scanCounts: [3]int{8, 10, 7}, totalSweeps: 25}
}

func (s *fakeSource) Load(region models.Region) (*models.RegionData, error) {
	nScans := s.scanCounts[int(region)]
	const lines = 4

	ragged := func(base float64) []*mat.Dense {
		scans := make([]*mat.Dense, nScans)
		for i := range scans {
			// Vary the width so normalization has work to do.
			width := 3 + i%3
			m := mat.NewDense(lines, width, nil)
			for r := 0; r < lines; r++ {
				for c := 0; c < width; c++ {
					m.Set(r, c, base+float64(i*100+r*10+c))
				}
			}
			scans[i] = m
		}
		return scans
	}

	deltaF := mat.NewDense(lines, nScans, nil)
	for r := 0; r < lines; r++ {
		for c := 0; c < nScans; c++ {
			deltaF.Set(r, c, float64(c)/10.0)
		}
	}

	sweeps := mat.NewDense(s.totalSweeps, 6, nil)
	for i := 0; i < s.totalSweeps; i++ {
		for j := 0; j < 6; j++ {
			sweeps.Set(i, j, float64(i*10+j))
		}
	}

	data := &models.RegionData{
		Region:    region,
		Green:     ragged(0),
		Red:       ragged(10000),
		DeltaF:    deltaF,
		EphysTime: []float64{0, 1000, 2000, 3000, 4000, 5000},
		Sweeps:    sweeps,
		ROI:       &models.Image{Data: make([]float64, 4), Dims: []int{2, 2}},
	}
	if region == models.Bottom && !s.dropNeuron {
		data.Neuron = &models.Image{Data: make([]float64, 12), Dims: []int{2, 2, 3}}
	}
	return data, nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Input.Bottom = "bot.mat"
	cfg.Input.Middle = "mid.mat"
	cfg.Input.Top = "top.mat"
	cfg.Output.Dir = t.TempDir()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestProcessFullSession(t *testing.T) {
	cfg := testConfig(t)
	conv := NewConverter(&Params{Config: cfg, Source: defaultFakeSource()})

	require.NoError(t, conv.Process())

	// The container is named after the session identifier.
	outputPath := filepath.Join(cfg.Output.Dir, "m1_201204_s2_c1.nwb")
	info, err := os.Stat(outputPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// 6 raw-intensity + 3 delta-F + 3 current-clamp records, plus one
	// 4-image collection.
	summary := conv.GetSummary()
	assert.Equal(t, outputPath, summary.OutputPath)
	assert.Equal(t, 12, summary.SeriesRecords)
	assert.Equal(t, 4, summary.ImageRecords)

	// Scan counts [8,10,7] partition the sweep block into [0,8),
	// [8,18) and [18,25).
	wantWindows := [3][2]int{{0, 8}, {8, 18}, {18, 25}}
	for i, rs := range summary.Regions {
		assert.Equal(t, [3]int{8, 10, 7}[i], rs.Scans, "region %d scan count", i)
		assert.Equal(t, wantWindows[i][0], rs.SweepStart, "region %d window start", i)
		assert.Equal(t, wantWindows[i][1], rs.SweepEnd, "region %d window end", i)
	}
}

func TestProcessFailsWithoutNeuronImage(t *testing.T) {
	cfg := testConfig(t)
	source := defaultFakeSource()
	source.dropNeuron = true
	conv := NewConverter(&Params{Config: cfg, Source: source})

	err := conv.Process()
	require.Error(t, err)
	assert.Contains(t, err.Error(), fieldNeuron)

	// No partial container may be left behind.
	_, statErr := os.Stat(filepath.Join(cfg.Output.Dir, "m1_201204_s2_c1.nwb"))
	assert.True(t, os.IsNotExist(statErr), "failed conversion must not write output")
}

func TestProcessFailsWhenSweepBlockTooSmall(t *testing.T) {
	cfg := testConfig(t)
	source := defaultFakeSource()
	source.totalSweeps = 20 // scan counts claim 25
	conv := NewConverter(&Params{Config: cfg, Source: source})

	err := conv.Process()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestTwoPhotonSeriesNaming(t *testing.T) {
	stack := &models.LinescanStack{Data: make([]float64, 6), Scans: 1, Lines: 2, Samples: 3}

	for _, tc := range []struct {
		channel models.Channel
		region  models.Region
		want    string
	}{
		{models.Green, models.Bottom, "TwoPhotonSeriesGreen1"},
		{models.Green, models.Middle, "TwoPhotonSeriesGreen2"},
		{models.Red, models.Top, "TwoPhotonSeriesRed3"},
	} {
		series := buildTwoPhotonSeries(twoPhotonParams{
			Region:       tc.region,
			Channel:      tc.channel,
			Indicator:    "Fluo5f",
			ImagingPlane: greenPlaneName,
			ImagingRate:  1.0 / 21.0,
			LineRate:     1000,
			Stack:        stack,
		})
		assert.Equal(t, tc.want, series.Name)
		assert.Equal(t, "a.u.", series.Unit)
		assert.Equal(t, []int{1, 2, 3}, series.Dims)
	}
}

func TestDeltaFSeriesNaming(t *testing.T) {
	deltaF := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})
	stack, err := linescan.StackDeltaF(deltaF)
	require.NoError(t, err)

	series := buildDeltaFSeries(deltaFParams{
		Region:       models.Middle,
		Indicator:    "Alexa594",
		ImagingPlane: redPlaneName,
		ImagingRate:  1.0 / 21.0,
		LineRate:     1000,
		Stack:        stack,
	})
	assert.Equal(t, "TwoPhotonDeltaFSeries2", series.Name)
	assert.Equal(t, "normalised", series.Unit)
	assert.Equal(t, []int{3, 2, 1}, series.Dims)
}

func TestCurrentClampSeriesTimestampsInSeconds(t *testing.T) {
	// One timestamp per sweep sample.
	sweeps := mat.NewDense(6, 3, nil)
	for i := 0; i < 6; i++ {
		for j := 0; j < 3; j++ {
			sweeps.Set(i, j, float64(i)+float64(j)/10)
		}
	}

	series, err := buildCurrentClampSeries(currentClampParams{
		Region:      models.Middle,
		TimeMs:      []float64{0, 1000, 2000},
		Counts:      ephys.SweepCounts{2, 3, 1},
		Sweeps:      sweeps,
		Electrode:   electrodeName,
		ImagingRate: 1.0 / 21.0,
	})
	require.NoError(t, err)

	assert.Equal(t, "CurrentClampSeries2", series.Name)
	assert.Equal(t, "millivolt", series.Unit)
	assert.Equal(t, []float64{0, 1, 2}, series.Timestamps)
	assert.Equal(t, []int{3, 3}, series.Dims, "middle region owns sweeps [2,5)")
	// First value of the middle window is sweep 2.
	assert.Equal(t, 2.0, series.Data[0])
}

func TestBuildImageCollectionNames(t *testing.T) {
	source := defaultFakeSource()
	regions := make(map[models.Region]*models.RegionData)
	for _, region := range models.Regions {
		data, err := source.Load(region)
		require.NoError(t, err)
		regions[region] = data
	}

	collection, err := buildImageCollection(regions)
	require.NoError(t, err)
	require.Len(t, collection.Images, 4)

	names := make([]string, len(collection.Images))
	for i, img := range collection.Images {
		names[i] = img.Name
	}
	want := []string{"neuron_image"}
	for i := 1; i <= 3; i++ {
		want = append(want, fmt.Sprintf("dendrite%d_image", i))
	}
	assert.Equal(t, want, names)
}
