// usage-simulator seeds the rental database with a synthetic fleet and a
// year of rental history, for local development and model training runs.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/smartrental/rentaltracker/internal/database"
	"github.com/smartrental/rentaltracker/internal/log"
)

const (
	defaultDays      = 365
	defaultFleetSize = 120
	// A small slice of the fleet stays unassigned to exercise the
	// UNASSIGNED handling downstream.
	unassignedFraction = 0.05
	anomalyFraction    = 0.08
)

var equipmentTypes = []string{"Excavator", "Bulldozer", "Crane", "Loader", "Grader", "Compactor"}

var sites = []string{"S001", "S002", "S003", "S004", "S005"}

func main() {
	dsn := flag.String("dsn", "", "PostgreSQL connection string for the rental database")
	days := flag.Int("days", defaultDays, "Days of rental history to generate")
	fleet := flag.Int("fleet", defaultFleetSize, "Number of equipment units in the fleet")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed (fixed seed gives reproducible data)")
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
	if err := db.Migrate(); err != nil {
		log.Errorf("Failed to migrate schema: %v", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	if err := simulate(db, rng, *fleet, *days); err != nil {
		log.Errorf("Simulation failed: %v", err)
		os.Exit(1)
	}
}

func simulate(db *database.Client, rng *rand.Rand, fleetSize, days int) error {
	for _, siteID := range sites {
		site := database.Site{
			SiteID:   siteID,
			Name:     fmt.Sprintf("Site %s", siteID),
			Location: fmt.Sprintf("Region %c", 'A'+siteID[len(siteID)-1]-'1'),
		}
		if err := db.DB.Create(&site).Error; err != nil {
			return fmt.Errorf("creating site %s: %w", siteID, err)
		}
	}

	units := make([]database.Equipment, fleetSize)
	for i := range units {
		units[i] = database.Equipment{
			EquipmentID:  fmt.Sprintf("EQ%04d", i+1),
			Type:         equipmentTypes[rng.Intn(len(equipmentTypes))],
			Status:       "available",
			Year:         2015 + rng.Intn(10),
			SerialNumber: fmt.Sprintf("SN-%06d", rng.Intn(1000000)),
		}
		if rng.Float64() >= unassignedFraction {
			units[i].SiteID = sites[rng.Intn(len(sites))]
		}
		if err := db.DB.Create(&units[i]).Error; err != nil {
			return fmt.Errorf("creating equipment %s: %w", units[i].EquipmentID, err)
		}
	}
	log.Infof("created %d sites and %d equipment units", len(sites), fleetSize)

	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -days)
	rentals := 0
	for _, unit := range units {
		cursor := start.AddDate(0, 0, rng.Intn(14))
		for cursor.Before(end) {
			duration := 3 + rng.Intn(25)
			checkIn := cursor.AddDate(0, 0, duration)
			rental := database.Rental{
				EquipmentID:  unit.EquipmentID,
				CheckOutDate: cursor,
			}
			if unit.SiteID != "" {
				rental.SiteID = &unit.SiteID
			}
			operator := fmt.Sprintf("OP%03d", rng.Intn(40)+1)
			rental.OperatorID = &operator

			// The newest rental of some units stays open, so the
			// snapshot's open-rental resolution gets exercised.
			if checkIn.After(end) && rng.Float64() < 0.5 {
				rental.CheckInDate = nil
			} else {
				if checkIn.After(end) {
					checkIn = end
				}
				rental.CheckInDate = &checkIn
			}

			rental.EngineHoursPerDay, rental.IdleHoursPerDay = usageHours(rng)
			rental.OperatingDays = duration

			if err := db.DB.Create(&rental).Error; err != nil {
				return fmt.Errorf("creating rental for %s: %w", unit.EquipmentID, err)
			}
			rentals++

			// Gap between rentals, seasonally busier in summer.
			gap := 2 + rng.Intn(10)
			if m := cursor.Month(); m >= time.June && m <= time.August {
				gap = 1 + rng.Intn(4)
			}
			cursor = checkIn.AddDate(0, 0, gap)
		}
	}

	log.Infof("created %d rentals covering %s to %s",
		rentals, start.Format("2006-01-02"), end.Format("2006-01-02"))
	return nil
}

// usageHours draws a daily usage profile. Most units look healthy; a small
// fraction get anomalous profiles (dead engines, excessive idling) so the
// detectors have something to find.
func usageHours(rng *rand.Rand) (engine, idle float64) {
	if rng.Float64() < anomalyFraction {
		switch rng.Intn(3) {
		case 0: // checked out but never started
			return 0, 8 + rng.Float64()*6
		case 1: // idling most of the day
			return 1 + rng.Float64()*2, 13 + rng.Float64()*6
		default: // barely used
			return rng.Float64() * 0.5, 6 + rng.Float64()*4
		}
	}
	engine = 4 + rng.Float64()*8
	idle = 1 + rng.Float64()*4
	return engine, idle
}
