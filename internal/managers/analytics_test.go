package managers

import (
	"errors"
	"testing"
	"time"
)

func TestEquipmentPerformanceLookup(t *testing.T) {
	stats := &EquipmentStats{
		ByType: map[string]TypeStats{
			"Excavator": {Count: 12, AvgUtilization: 54.5},
		},
		GeneratedAt: time.Now().UTC(),
	}

	perf, err := equipmentPerformanceFrom(stats, "Excavator")
	if err != nil {
		t.Fatalf("known type rejected: %v", err)
	}
	if perf.EquipmentType != "Excavator" || perf.CurrentStats.Count != 12 {
		t.Errorf("stats not carried over: %+v", perf)
	}

	_, err = equipmentPerformanceFrom(stats, "Crane")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("unknown type: err = %v, want ErrNoData", err)
	}
}

func TestSiteUtilizationLookup(t *testing.T) {
	stats := &EquipmentStats{
		BySite: map[string]SiteStats{
			"S001": {EquipmentCount: 7, AvgUtilization: 61.0},
		},
		GeneratedAt: time.Now().UTC(),
	}

	util, err := siteUtilizationFrom(stats, "S001")
	if err != nil {
		t.Fatalf("known site rejected: %v", err)
	}
	if util.SiteID != "S001" || util.CurrentStats.EquipmentCount != 7 {
		t.Errorf("stats not carried over: %+v", util)
	}

	_, err = siteUtilizationFrom(stats, "S999")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("unknown site: err = %v, want ErrNoData", err)
	}
}
