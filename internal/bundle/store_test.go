package bundle

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartrental/rentaltracker/internal/anomaly"
	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/forecast"
	"github.com/smartrental/rentaltracker/internal/timeseries"
	"github.com/smartrental/rentaltracker/internal/types"
)

// trainedBundle runs the full pipeline over a small synthetic snapshot and
// returns the bundle with the engineered usage rows it was trained on.
func trainedBundle(t *testing.T) (*Bundle, []features.UsageFeatures) {
	t.Helper()

	rng := rand.New(rand.NewSource(11))
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	var records []types.UsageRecord
	for i := 0; i < 80; i++ {
		out := base.AddDate(0, 0, rng.Intn(60))
		records = append(records, types.UsageRecord{
			EquipmentID:       "EQ0001",
			EquipmentType:     "Excavator",
			SiteID:            "S001",
			CheckOutDate:      out,
			CheckInDate:       out.AddDate(0, 0, 4+rng.Intn(10)),
			EngineHoursPerDay: 4 + rng.Float64()*6,
			IdleHoursPerDay:   1 + rng.Float64()*4,
			OperatingDays:     7,
		})
	}

	usage := features.EngineerUsage(records)
	ensemble, err := anomaly.Train(features.UsageMatrix(usage), features.UsageFeatureColumns, anomaly.DefaultParams())
	if err != nil {
		t.Fatalf("anomaly.Train: %v", err)
	}

	siteEnc := &features.LabelEncoder{}
	siteEnc.Fit([]string{"S001"})
	typeEnc := &features.LabelEncoder{}
	typeEnc.Fit([]string{"Excavator"})

	demand := timeseries.BuildDailySeries(records)
	series := features.EngineerSeries(demand, siteEnc, typeEnc)
	result, err := forecast.TrainSegments(context.Background(), series, nil, forecast.DefaultTrainerParams(), nil)
	if err != nil {
		t.Fatalf("TrainSegments: %v", err)
	}

	return New(ensemble, siteEnc, typeEnc, result, len(records)), usage
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())
	original, usage := trainedBundle(t)

	if err := store.Save(original); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(original.Manifest.Generation)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !loaded.Ready() {
		t.Errorf("loaded bundle not ready: %+v", loaded.Status().MissingArtifacts)
	}
	if loaded.Manifest.Generation != original.Manifest.Generation {
		t.Errorf("Generation = %q, want %q", loaded.Manifest.Generation, original.Manifest.Generation)
	}

	// The loaded models must produce identical forecasts.
	req := forecast.ForecastRequest{EquipmentType: "Excavator", SiteID: "S001", DaysAhead: 7}
	want, err := forecast.Forecast(original.Segments, original.Global, original.SiteEncoder, original.TypeEncoder, req)
	if err != nil {
		t.Fatalf("forecast on original: %v", err)
	}
	got, err := forecast.Forecast(loaded.Segments, loaded.Global, loaded.SiteEncoder, loaded.TypeEncoder, req)
	if err != nil {
		t.Fatalf("forecast on loaded: %v", err)
	}
	for i := range want.Points {
		if want.Points[i].Predicted != got.Points[i].Predicted {
			t.Errorf("day %d: loaded model predicts %v, original %v",
				i, got.Points[i].Predicted, want.Points[i].Predicted)
		}
	}

	// And identical anomaly thresholds.
	for name, band := range original.Ensemble.Thresholds {
		if loaded.Ensemble.Thresholds[name] != band {
			t.Errorf("threshold %q changed across roundtrip", name)
		}
	}

	// And identical anomaly verdicts over the training rows.
	wantVerdicts, err := original.Ensemble.Detect(usage)
	if err != nil {
		t.Fatalf("detect on original: %v", err)
	}
	gotVerdicts, err := loaded.Ensemble.Detect(usage)
	if err != nil {
		t.Fatalf("detect on loaded: %v", err)
	}
	if len(gotVerdicts) != len(wantVerdicts) {
		t.Fatalf("verdict count = %d, want %d", len(gotVerdicts), len(wantVerdicts))
	}
	for i := range wantVerdicts {
		w, g := wantVerdicts[i], gotVerdicts[i]
		if g.Consensus != w.Consensus || g.MethodVotes != w.MethodVotes {
			t.Errorf("row %d: consensus/votes changed across roundtrip: got (%v, %d), want (%v, %d)",
				i, g.Consensus, g.MethodVotes, w.Consensus, w.MethodVotes)
		}
		if g.Statistical != w.Statistical || g.Isolation != w.Isolation ||
			g.Density != w.Density || g.Clustering != w.Clustering {
			t.Errorf("row %d: method votes changed across roundtrip", i)
		}
		if g.IsolationScore != w.IsolationScore {
			t.Errorf("row %d: isolation score = %v, want %v", i, g.IsolationScore, w.IsolationScore)
		}
		if g.AnomalyType != w.AnomalyType || g.Severity != w.Severity {
			t.Errorf("row %d: classification changed across roundtrip", i)
		}
	}
}

func TestLoadMissingArtifactIsPartial(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	b, _ := trainedBundle(t)
	if err := store.Save(b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	removed := filepath.Join(store.Path(b.Manifest.Generation), ArtifactSiteEnc+".msgpack")
	if err := os.Remove(removed); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	loaded, err := store.Load(b.Manifest.Generation)
	var partial *PartialLoadError
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v, want PartialLoadError", err)
	}

	found := false
	for _, name := range partial.Missing {
		if name == ArtifactSiteEnc {
			found = true
		}
	}
	if !found {
		t.Errorf("Missing = %v, want it to name %q", partial.Missing, ArtifactSiteEnc)
	}
	if len(partial.Loaded) == 0 {
		t.Error("Loaded list empty; surviving artifacts should be named")
	}

	// The rest of the bundle still serves.
	if loaded == nil || loaded.Ensemble == nil || !loaded.Ensemble.Trained {
		t.Error("surviving artifacts should still be usable")
	}
	if loaded.Ready() {
		t.Error("partially loaded bundle must not report ready")
	}
}

func TestLoadUnknownGeneration(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.Load("no-such-generation")
	var ioErr *StoreIOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("err = %v, want StoreIOError", err)
	}
}

func TestLoadLatestPicksNewest(t *testing.T) {
	store := NewStore(t.TempDir())

	older, _ := trainedBundle(t)
	older.Manifest.CreatedAt = time.Now().UTC().Add(-time.Hour)
	if err := store.Save(older); err != nil {
		t.Fatalf("Save older: %v", err)
	}

	newer, _ := trainedBundle(t)
	if err := store.Save(newer); err != nil {
		t.Fatalf("Save newer: %v", err)
	}

	loaded, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loaded.Manifest.Generation != newer.Manifest.Generation {
		t.Errorf("LoadLatest picked %q, want newest %q", loaded.Manifest.Generation, newer.Manifest.Generation)
	}
}

func TestLoadLatestEmptyStore(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing-subdir"))
	b, err := store.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest on empty store: %v", err)
	}
	if b != nil {
		t.Errorf("expected nil bundle from empty store, got %+v", b.Manifest)
	}
}

func TestSaveLeavesNoTempDirs(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	b, _ := trainedBundle(t)
	if err := store.Save(b); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != b.Manifest.Generation {
			t.Errorf("unexpected entry %q left in store root", entry.Name())
		}
	}
}
