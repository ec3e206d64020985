// Package managers wires the training pipeline, the model store and the
// inference surfaces together behind one manager. The manager owns the
// currently active bundle and swaps it atomically on retrain, so readers
// never observe a half-updated model set.
package managers

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/smartrental/rentaltracker/internal/anomaly"
	"github.com/smartrental/rentaltracker/internal/bundle"
	"github.com/smartrental/rentaltracker/internal/database"
	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/forecast"
	"github.com/smartrental/rentaltracker/internal/timeseries"
	"github.com/smartrental/rentaltracker/internal/types"
)

var (
	// ErrNotTrained is returned by inference calls before any bundle has
	// been trained or loaded.
	ErrNotTrained = errors.New("models not trained")
	// ErrTrainingInProgress rejects a retrain while one is already running.
	ErrTrainingInProgress = errors.New("training already in progress")
	// ErrNoData is returned when the record store has nothing to train on.
	ErrNoData = errors.New("no usage records available")
)

// ModelManager owns the active model bundle and the pipeline that produces
// new ones. All inference methods read the bundle through one atomic
// pointer; Train builds a complete replacement off to the side and swaps it
// in only after it has been persisted.
type ModelManager struct {
	db     *database.Client
	store  *bundle.Store
	logger *zap.SugaredLogger

	trainerParams  forecast.TrainerParams
	detectorParams anomaly.DetectorParams

	current  atomic.Pointer[bundle.Bundle]
	training atomic.Bool
}

// NewModelManager creates a manager over the given record store and model
// store.
func NewModelManager(db *database.Client, store *bundle.Store, trainerParams forecast.TrainerParams, detectorParams anomaly.DetectorParams, logger *zap.SugaredLogger) *ModelManager {
	return &ModelManager{
		db:             db,
		store:          store,
		logger:         logger,
		trainerParams:  trainerParams,
		detectorParams: detectorParams,
	}
}

// Bootstrap loads the most recent persisted bundle, if any. A partial load
// is not fatal: whatever artifacts survived are served, the missing ones
// are reported through Status until the next retrain.
func (m *ModelManager) Bootstrap() error {
	b, err := m.store.LoadLatest()
	if err != nil {
		var partial *bundle.PartialLoadError
		if errors.As(err, &partial) {
			m.logger.Warnf("loaded bundle %s with missing artifacts: %v", b.Manifest.Generation, partial.Missing)
			m.current.Store(b)
			return nil
		}
		return fmt.Errorf("loading latest bundle: %w", err)
	}
	if b == nil {
		m.logger.Info("no persisted models found; waiting for first training run")
		return nil
	}
	m.logger.Infof("loaded bundle %s (%d segments, trained %s)",
		b.Manifest.Generation, len(b.Segments), b.Manifest.CreatedAt.Format(time.RFC3339))
	m.current.Store(b)
	return nil
}

// Bundle returns the active bundle, or nil before the first train or load.
func (m *ModelManager) Bundle() *bundle.Bundle {
	return m.current.Load()
}

// TrainReport summarizes one completed training run.
type TrainReport struct {
	Generation           string                  `json:"generation"`
	SampleCount          int                     `json:"sample_count"`
	SegmentCount         int                     `json:"segment_count"`
	GlobalModel          bool                    `json:"global_model"`
	InsufficientSegments []string                `json:"insufficient_segments,omitempty"`
	MalformedRecords     []types.MalformedRecord `json:"malformed_records,omitempty"`
	Duration             string                  `json:"training_duration"`
	CompletedAt          time.Time               `json:"completed_at"`
}

// Train runs the full pipeline: snapshot, feature engineering, anomaly
// ensemble fit, per-segment model fits, persistence, swap. Only one run may
// be active at a time; cancelling the context stops the run between
// segment fits and leaves the previous bundle in place.
func (m *ModelManager) Train(ctx context.Context) (*TrainReport, error) {
	if !m.training.CompareAndSwap(false, true) {
		return nil, ErrTrainingInProgress
	}
	defer m.training.Store(false)

	started := time.Now()
	snap, err := m.db.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking training snapshot: %w", err)
	}
	if len(snap.Records) == 0 {
		return nil, ErrNoData
	}
	m.logger.Infof("training on %d usage records (%d malformed rows excluded)",
		len(snap.Records), len(snap.Malformed))

	usage := features.EngineerUsage(snap.Records)
	ensemble, err := anomaly.Train(features.UsageMatrix(usage), features.UsageFeatureColumns, m.detectorParams)
	if err != nil {
		return nil, fmt.Errorf("training anomaly ensemble: %w", err)
	}

	siteEnc, typeEnc := fitEncoders(snap.Records)
	demand := timeseries.BuildDailySeries(snap.Records)
	series := features.EngineerSeries(demand, siteEnc, typeEnc)

	unitCounts, err := m.db.EquipmentCounts(ctx)
	if err != nil {
		m.logger.Warnf("equipment roster unavailable, deriving unit counts from rentals: %v", err)
		unitCounts = countsFromSnapshot(snap.Records)
	}

	result, err := forecast.TrainSegments(ctx, series, unitCounts, m.trainerParams, m.logger)
	if err != nil {
		return nil, fmt.Errorf("training segment models: %w", err)
	}

	b := bundle.New(ensemble, siteEnc, typeEnc, result, len(snap.Records))
	if err := m.store.Save(b); err != nil {
		return nil, fmt.Errorf("persisting bundle: %w", err)
	}
	m.current.Store(b)

	m.logger.Infof("training complete: bundle %s, %d segment models, global=%v, %d segments skipped, took %s",
		b.Manifest.Generation, len(b.Segments), b.Global != nil,
		len(b.Manifest.InsufficientSegments), time.Since(started).Round(time.Millisecond))

	return &TrainReport{
		Generation:           b.Manifest.Generation,
		SampleCount:          len(snap.Records),
		SegmentCount:         len(b.Segments),
		GlobalModel:          b.Global != nil,
		InsufficientSegments: b.Manifest.InsufficientSegments,
		MalformedRecords:     snap.Malformed,
		Duration:             time.Since(started).Round(time.Millisecond).String(),
		CompletedAt:          time.Now().UTC(),
	}, nil
}

// Forecast projects demand for a segment using the active bundle.
func (m *ModelManager) Forecast(req forecast.ForecastRequest) (*forecast.ForecastSeries, error) {
	b := m.current.Load()
	if !b.Trained() {
		return nil, ErrNotTrained
	}
	return forecast.Forecast(b.Segments, b.Global, b.SiteEncoder, b.TypeEncoder, req)
}

// AnomalyRecord is one usage record with its ensemble verdict attached.
type AnomalyRecord struct {
	EquipmentID           string    `json:"equipment_id"`
	EquipmentType         string    `json:"type"`
	SiteID                string    `json:"site_id"`
	CheckOutDate          time.Time `json:"check_out_date"`
	CheckInDate           time.Time `json:"check_in_date"`
	EngineHoursPerDay     float64   `json:"engine_hours_per_day"`
	IdleHoursPerDay       float64   `json:"idle_hours_per_day"`
	UtilizationEfficiency float64   `json:"utilization_ratio"`
	EfficiencyScore       float64   `json:"efficiency_score"`

	anomaly.Verdict
}

// AnomalySummary aggregates a detection run.
type AnomalySummary struct {
	TotalRecords       int            `json:"total_records"`
	TotalAnomalies     int            `json:"total_anomalies"`
	AnomalyPercentage  float64        `json:"anomaly_percentage"`
	AnomalyTypes       map[string]int `json:"anomaly_types"`
	EquipmentAnomalies map[string]int `json:"equipment_anomalies"`
}

// AnomalyReport is the full detection output.
type AnomalyReport struct {
	Anomalies   []AnomalyRecord `json:"anomalies"`
	Summary     AnomalySummary  `json:"summary"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// DetectAnomalies runs the ensemble over the current usage records,
// optionally filtered to one equipment unit. Consensus anomalies drive the
// summary counts.
func (m *ModelManager) DetectAnomalies(ctx context.Context, equipmentID string) (*AnomalyReport, error) {
	b := m.current.Load()
	if b == nil || b.Ensemble == nil || !b.Ensemble.Trained {
		return nil, ErrNotTrained
	}

	snap, err := m.db.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("taking detection snapshot: %w", err)
	}
	records := snap.Records
	if equipmentID != "" {
		records = filterByEquipment(records, equipmentID)
	}
	if len(records) == 0 {
		return nil, ErrNoData
	}

	rows := features.EngineerUsage(records)
	verdicts, err := b.Ensemble.Detect(rows)
	if err != nil {
		return nil, err
	}

	report := &AnomalyReport{
		Anomalies: make([]AnomalyRecord, len(rows)),
		Summary: AnomalySummary{
			TotalRecords:       len(rows),
			AnomalyTypes:       make(map[string]int),
			EquipmentAnomalies: make(map[string]int),
		},
		GeneratedAt: time.Now().UTC(),
	}
	for i, row := range rows {
		report.Anomalies[i] = AnomalyRecord{
			EquipmentID:           row.Record.EquipmentID,
			EquipmentType:         row.Record.EquipmentType,
			SiteID:                row.Record.SiteID,
			CheckOutDate:          row.Record.CheckOutDate,
			CheckInDate:           row.Record.CheckInDate,
			EngineHoursPerDay:     row.Record.EngineHoursPerDay,
			IdleHoursPerDay:       row.Record.IdleHoursPerDay,
			UtilizationEfficiency: row.UtilizationEfficiency,
			EfficiencyScore:       row.EfficiencyScore,
			Verdict:               verdicts[i],
		}
		if verdicts[i].Consensus {
			report.Summary.TotalAnomalies++
			report.Summary.AnomalyTypes[verdicts[i].AnomalyType]++
			report.Summary.EquipmentAnomalies[row.Record.EquipmentType]++
		}
	}
	if report.Summary.TotalRecords > 0 {
		report.Summary.AnomalyPercentage = 100 * float64(report.Summary.TotalAnomalies) / float64(report.Summary.TotalRecords)
	}
	return report, nil
}

// ManagerStatus is the manager's externally visible state.
type ManagerStatus struct {
	bundle.Status
	Training bool `json:"training_in_progress"`
}

// Status reports the active bundle and whether a retrain is running.
func (m *ModelManager) Status() ManagerStatus {
	return ManagerStatus{
		Status:   m.current.Load().Status(),
		Training: m.training.Load(),
	}
}

// fitEncoders fits the categorical encoders over every site and equipment
// type the snapshot observed. Unassigned equipment carries an empty site
// ID, which fits as its own class.
func fitEncoders(records []types.UsageRecord) (siteEnc, typeEnc *features.LabelEncoder) {
	sites := make([]string, 0, len(records))
	eqTypes := make([]string, 0, len(records))
	for _, r := range records {
		sites = append(sites, r.SiteID)
		eqTypes = append(eqTypes, r.EquipmentType)
	}
	siteEnc = &features.LabelEncoder{}
	siteEnc.Fit(sites)
	typeEnc = &features.LabelEncoder{}
	typeEnc.Fit(eqTypes)
	return siteEnc, typeEnc
}

// countsFromSnapshot derives per-segment unit counts from distinct
// equipment IDs seen in the rental records.
func countsFromSnapshot(records []types.UsageRecord) map[string]int {
	seen := make(map[string]map[string]struct{})
	for _, r := range records {
		key := types.SegmentKey{SiteID: r.SiteID, EquipmentType: r.EquipmentType}.String()
		if seen[key] == nil {
			seen[key] = make(map[string]struct{})
		}
		seen[key][r.EquipmentID] = struct{}{}
	}
	counts := make(map[string]int, len(seen))
	for key, ids := range seen {
		counts[key] = len(ids)
	}
	return counts
}

func filterByEquipment(records []types.UsageRecord, equipmentID string) []types.UsageRecord {
	out := make([]types.UsageRecord, 0, len(records))
	for _, r := range records {
		if r.EquipmentID == equipmentID {
			out = append(out, r)
		}
	}
	return out
}
