package forecast

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/types"
)

// TrainerParams control segment training.
type TrainerParams struct {
	// MinSamples is the minimum number of clean history rows a segment
	// needs; segments below it are skipped, not zero-filled.
	MinSamples int
	// SplitRatio is the chronological train fraction; the trailing
	// 1-SplitRatio of dates become the holdout.
	SplitRatio float64
	// Workers bounds parallel segment fits. Zero means NumCPU.
	Workers int
}

// DefaultTrainerParams returns the standard training configuration.
func DefaultTrainerParams() TrainerParams {
	return TrainerParams{
		MinSamples: 30,
		SplitRatio: 0.8,
	}
}

// SegmentModel is one fitted regressor with everything needed to serve
// forecasts from it. Read-only after training; retraining supersedes it.
type SegmentModel struct {
	Key            string            `msgpack:"key"`
	SiteID         string            `msgpack:"site_id"`
	EquipmentType  string            `msgpack:"equipment_type"`
	Model          *GBRT             `msgpack:"model"`
	Metrics        Metrics           `msgpack:"metrics"`
	FeatureColumns []string          `msgpack:"feature_columns"`
	Last           features.LastData `msgpack:"last_data"`
	SampleCount    int               `msgpack:"sample_count"`
	// UnitCount is the number of distinct equipment units seen for the
	// segment, used by the capacity constraint. Zero means unknown.
	UnitCount int `msgpack:"unit_count"`
}

// TrainResult is the output of one training run over a snapshot.
type TrainResult struct {
	Segments     map[string]*SegmentModel
	Global       *SegmentModel
	Insufficient []*InsufficientDataError
}

// TrainSegments fits one model per (site, equipment type) segment with
// enough history, plus a global model over the full table. Segment fits
// are independent and run on a bounded worker pool; cancelling the context
// stops the run before the next segment starts.
func TrainSegments(ctx context.Context, points []features.SeriesPoint, unitCounts map[string]int, params TrainerParams, logger *zap.SugaredLogger) (*TrainResult, error) {
	segments := make(map[types.SegmentKey][]features.SeriesPoint)
	for _, p := range points {
		key := p.Segment()
		segments[key] = append(segments[key], p)
	}

	keys := make([]types.SegmentKey, 0, len(segments))
	for key := range segments {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(keys) && len(keys) > 0 {
		workers = len(keys)
	}

	result := &TrainResult{Segments: make(map[string]*SegmentModel)}
	var mu sync.Mutex
	var wg sync.WaitGroup
	jobs := make(chan types.SegmentKey)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := range jobs {
				model, insufficient := trainOne(key, segments[key], unitCounts, params)
				mu.Lock()
				if insufficient != nil {
					result.Insufficient = append(result.Insufficient, insufficient)
				} else if model != nil {
					result.Segments[key.String()] = model
					if logger != nil {
						logger.Debugf("trained segment %s: R²=%.3f MAE=%.2f over %d rows",
							key, model.Metrics.R2, model.Metrics.MAE, model.SampleCount)
					}
				}
				mu.Unlock()
			}
		}()
	}

	var cancelled error
dispatch:
	for _, key := range keys {
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break dispatch
		case jobs <- key:
		}
	}
	close(jobs)
	wg.Wait()

	if cancelled != nil {
		return nil, cancelled
	}

	// Global fallback model over the full table, chronological like the
	// per-segment fits.
	global, insufficient := trainOne(types.GlobalSegment, points, nil, params)
	if insufficient != nil {
		result.Insufficient = append(result.Insufficient, insufficient)
	} else {
		result.Global = global
	}

	sort.Slice(result.Insufficient, func(i, j int) bool {
		return result.Insufficient[i].Segment < result.Insufficient[j].Segment
	})
	return result, nil
}

// trainOne fits a single training unit. It returns either a model or an
// insufficient-data report, never both.
func trainOne(key types.SegmentKey, points []features.SeriesPoint, unitCounts map[string]int, params TrainerParams) (*SegmentModel, *InsufficientDataError) {
	clean := cleanRows(points)
	if len(clean) < params.MinSamples {
		return nil, &InsufficientDataError{Segment: key.String(), Rows: len(clean), Minimum: params.MinSamples}
	}

	sort.SliceStable(clean, func(i, j int) bool { return clean[i].Date.Before(clean[j].Date) })

	splitIdx := int(float64(len(clean)) * params.SplitRatio)
	if splitIdx >= len(clean) {
		splitIdx = len(clean) - 1
	}
	train, test := clean[:splitIdx], clean[splitIdx:]

	xTrain, yTrain := features.SeriesMatrix(train)
	xTest, yTest := features.SeriesMatrix(test)

	model := &GBRT{}
	if err := model.Fit(xTrain, yTrain); err != nil {
		return nil, &InsufficientDataError{Segment: key.String(), Rows: len(clean), Minimum: params.MinSamples}
	}

	sm := &SegmentModel{
		Key:            key.String(),
		SiteID:         key.SiteID,
		EquipmentType:  key.EquipmentType,
		Model:          model,
		Metrics:        Evaluate(yTest, model.PredictAll(xTest)),
		FeatureColumns: append([]string(nil), features.SeriesFeatureColumns...),
		Last:           features.Snapshot(clean[len(clean)-1]),
		SampleCount:    len(clean),
	}
	if unitCounts != nil {
		sm.UnitCount = unitCounts[key.String()]
	}
	return sm, nil
}

// cleanRows drops rows with missing (NaN) engineered features rather than
// treating them as zero.
func cleanRows(points []features.SeriesPoint) []features.SeriesPoint {
	out := make([]features.SeriesPoint, 0, len(points))
	for _, p := range points {
		if rowHasNaN(p.Vector()) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func rowHasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
