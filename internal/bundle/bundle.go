// Package bundle defines the immutable aggregate of all fitted artifacts
// and its on-disk store. A bundle is the unit of persistence and the unit
// of atomic swap on retrain: it is never mutated after creation.
package bundle

import (
	"time"

	"github.com/google/uuid"

	"github.com/smartrental/rentaltracker/internal/anomaly"
	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/forecast"
)

// Stable artifact names. Partial-load diagnostics refer to these, so they
// must not change across versions.
const (
	ArtifactManifest    = "manifest"
	ArtifactEnsemble    = "anomaly_ensemble"
	ArtifactThresholds  = "thresholds"
	ArtifactSiteEnc     = "site_encoder"
	ArtifactTypeEnc     = "equipment_type_encoder"
	ArtifactSegments    = "segment_models"
	ArtifactGlobalModel = "global_model"
)

// ArtifactNames lists every artifact a complete bundle carries.
var ArtifactNames = []string{
	ArtifactManifest,
	ArtifactEnsemble,
	ArtifactThresholds,
	ArtifactSiteEnc,
	ArtifactTypeEnc,
	ArtifactSegments,
	ArtifactGlobalModel,
}

// Manifest is the bundle's identity and bookkeeping artifact.
type Manifest struct {
	Generation    string    `msgpack:"generation"`
	CreatedAt     time.Time `msgpack:"created_at"`
	SampleCount   int       `msgpack:"sample_count"`
	SeriesColumns []string  `msgpack:"series_columns"`
	UsageColumns  []string  `msgpack:"usage_columns"`
	// InsufficientSegments names training units skipped for lack of
	// clean history, so status can report them without retraining.
	InsufficientSegments []string `msgpack:"insufficient_segments"`
}

// Bundle aggregates every fitted artifact needed to serve forecasts and
// anomaly detection. The scaler and threshold set live inside the
// ensemble; the threshold artifact is also written standalone so a partial
// load can name it precisely.
type Bundle struct {
	Manifest    Manifest
	Ensemble    *anomaly.Ensemble
	SiteEncoder *features.LabelEncoder
	TypeEncoder *features.LabelEncoder
	Segments    map[string]*forecast.SegmentModel
	Global      *forecast.SegmentModel

	// Readiness marks which artifacts are present. A freshly trained
	// bundle has every artifact ready; a partially loaded one does not.
	Readiness map[string]bool
}

// New assembles a fresh bundle from training outputs, stamping a new
// generation ID.
func New(ensemble *anomaly.Ensemble, siteEnc, typeEnc *features.LabelEncoder, result *forecast.TrainResult, sampleCount int) *Bundle {
	insufficient := make([]string, 0, len(result.Insufficient))
	for _, ins := range result.Insufficient {
		insufficient = append(insufficient, ins.Segment)
	}

	b := &Bundle{
		Manifest: Manifest{
			Generation:           uuid.NewString(),
			CreatedAt:            time.Now().UTC(),
			SampleCount:          sampleCount,
			SeriesColumns:        append([]string(nil), features.SeriesFeatureColumns...),
			UsageColumns:         append([]string(nil), features.UsageFeatureColumns...),
			InsufficientSegments: insufficient,
		},
		Ensemble:    ensemble,
		SiteEncoder: siteEnc,
		TypeEncoder: typeEnc,
		Segments:    result.Segments,
		Global:      result.Global,
		Readiness:   make(map[string]bool, len(ArtifactNames)),
	}
	for _, name := range ArtifactNames {
		b.Readiness[name] = true
	}
	return b
}

// Trained reports whether the bundle can serve at least one kind of
// inference.
func (b *Bundle) Trained() bool {
	if b == nil {
		return false
	}
	return (b.Ensemble != nil && b.Ensemble.Trained) || b.Global != nil || len(b.Segments) > 0
}

// Ready reports whether every artifact loaded.
func (b *Bundle) Ready() bool {
	if b == nil {
		return false
	}
	for _, name := range ArtifactNames {
		if !b.Readiness[name] {
			return false
		}
	}
	return true
}

// Status is the summary exposed to the surrounding system.
type Status struct {
	Trained              bool      `json:"trained"`
	Generation           string    `json:"generation,omitempty"`
	CreatedAt            time.Time `json:"created_at,omitempty"`
	SampleCount          int       `json:"sample_count"`
	SegmentCount         int       `json:"segment_count"`
	GlobalModel          bool      `json:"global_model"`
	InsufficientSegments []string  `json:"insufficient_segments,omitempty"`
	MissingArtifacts     []string  `json:"missing_artifacts,omitempty"`
}

// Status summarizes the bundle.
func (b *Bundle) Status() Status {
	if b == nil {
		return Status{}
	}
	s := Status{
		Trained:              b.Trained(),
		Generation:           b.Manifest.Generation,
		CreatedAt:            b.Manifest.CreatedAt,
		SampleCount:          b.Manifest.SampleCount,
		SegmentCount:         len(b.Segments),
		GlobalModel:          b.Global != nil,
		InsufficientSegments: b.Manifest.InsufficientSegments,
	}
	for _, name := range ArtifactNames {
		if !b.Readiness[name] {
			s.MissingArtifacts = append(s.MissingArtifacts, name)
		}
	}
	return s
}
