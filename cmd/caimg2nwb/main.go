package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"caimg2nwb/internal/models"
	"caimg2nwb/pkg/config"
	"caimg2nwb/pkg/conversion"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "session.yaml", "Session configuration file (YAML)")
	bottomPath := flag.String("bottom", "", "Bottom dendrite MAT-file (overrides config)")
	middlePath := flag.String("middle", "", "Middle dendrite MAT-file (overrides config)")
	topPath := flag.String("top", "", "Top dendrite MAT-file (overrides config)")
	outputDir := flag.String("output", "", "Output directory for the NWB container (overrides config)")
	savePreviews := flag.Bool("previews", false, "Export reference image previews as JPEG")
	previewDir := flag.String("preview-dir", "", "Directory for preview images (overrides config)")
	writeConfig := flag.Bool("write-config", false, "Write the effective configuration next to the output and exit")
	verbose := flag.Bool("verbose", false, "Print per-stage progress")
	flag.Parse()

	// Load session configuration, falling back to defaults when the file
	// does not exist.
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line overrides
	if *bottomPath != "" {
		cfg.Input.Bottom = *bottomPath
	}
	if *middlePath != "" {
		cfg.Input.Middle = *middlePath
	}
	if *topPath != "" {
		cfg.Input.Top = *topPath
	}
	if *outputDir != "" {
		cfg.Output.Dir = *outputDir
	}
	if *savePreviews {
		cfg.Output.SavePreviews = true
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	if *writeConfig {
		if err := config.SaveConfig(cfg, *configPath); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Configuration written to: %s\n", *configPath)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	fmt.Println("================================")
	fmt.Println("CALCIUM IMAGING AND INTRACELLULAR ELECTROPHYSIOLOGY TO NWB CONVERSION")
	fmt.Printf("Session %s: %s\n", cfg.SessionID(), cfg.Session.Description)
	fmt.Println("================================")

	// Create converter instance
	converter := conversion.NewConverter(&conversion.Params{
		Config:  cfg,
		Verbose: cfg.Output.Verbose,
	})

	// Run the conversion pipeline
	fmt.Println("Starting session conversion...")
	startTime := time.Now()
	if err := converter.Process(); err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}
	processingTime := time.Since(startTime)

	// Display the conversion summary
	summary := converter.GetSummary()
	fmt.Printf("\nConversion completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output NWB container saved to: %s\n\n", summary.OutputPath)

	fmt.Printf("Acquisition records:\n")
	fmt.Printf("====================\n")
	fmt.Printf("Time-series records: %d\n", summary.SeriesRecords)
	fmt.Printf("Reference images: %d\n", summary.ImageRecords)

	fmt.Println("\nPer-region statistics:")
	for i, region := range models.Regions {
		rs := summary.Regions[i]
		fmt.Printf("- %s dendrite: %d linescans, sweeps [%d,%d), mean dF/F %.4f, peak dF/F %.4f\n",
			region, rs.Scans, rs.SweepStart, rs.SweepEnd, rs.MeanDeltaF, rs.PeakDeltaF)
	}

	if cfg.Output.SavePreviews {
		fmt.Printf("\nReference image previews saved to: %s\n", cfg.Output.PreviewDir)
	}
}
