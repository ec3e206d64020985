// train-models runs one full training pass against the rental database and
// writes a new model bundle, without starting the service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/smartrental/rentaltracker/internal/anomaly"
	"github.com/smartrental/rentaltracker/internal/bundle"
	"github.com/smartrental/rentaltracker/internal/database"
	"github.com/smartrental/rentaltracker/internal/forecast"
	"github.com/smartrental/rentaltracker/internal/log"
	"github.com/smartrental/rentaltracker/internal/managers"
)

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL connection string for the rental database")
	modelsDir := flag.String("models", "models", "Directory to write the trained model bundle to")
	minSamples := flag.Int("min-samples", 0, "Minimum clean rows a segment needs (0 = default)")
	workers := flag.Int("workers", 0, "Parallel segment fits (0 = NumCPU)")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if *dsn == "" {
		fmt.Println("the -dsn flag is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db := database.NewClient(*dsn, log.GetSugaredLogger())
	if err := db.Connect(); err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	trainerParams := forecast.DefaultTrainerParams()
	if *minSamples > 0 {
		trainerParams.MinSamples = *minSamples
	}
	trainerParams.Workers = *workers

	manager := managers.NewModelManager(db, bundle.NewStore(*modelsDir),
		trainerParams, anomaly.DefaultParams(), log.GetSugaredLogger())

	report, err := manager.Train(context.Background())
	if err != nil {
		log.Errorf("Training failed: %v", err)
		os.Exit(1)
	}

	log.Infof("trained bundle %s: %d segment models (global=%v) over %d records in %s",
		report.Generation, report.SegmentCount, report.GlobalModel, report.SampleCount, report.Duration)
	for _, segment := range report.InsufficientSegments {
		log.Warnf("skipped segment with insufficient history: %s", segment)
	}
	if len(report.MalformedRecords) > 0 {
		log.Warnf("%d malformed rental rows were excluded", len(report.MalformedRecords))
	}
}
