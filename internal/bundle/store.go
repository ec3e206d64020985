package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/smartrental/rentaltracker/internal/anomaly"
	"github.com/smartrental/rentaltracker/internal/features"
	"github.com/smartrental/rentaltracker/internal/forecast"
)

const artifactExt = ".msgpack"

// StoreIOError wraps a filesystem or serialization failure. It is fatal to
// the save or load call that hit it, and to nothing else.
type StoreIOError struct {
	Op       string
	Artifact string
	Err      error
}

func (e *StoreIOError) Error() string {
	return fmt.Sprintf("model store %s %s: %v", e.Op, e.Artifact, e.Err)
}

func (e *StoreIOError) Unwrap() error { return e.Err }

// PartialLoadError reports a load that found some artifacts but not all.
// The returned bundle is still usable for whatever loaded; the missing
// artifacts require retraining.
type PartialLoadError struct {
	Loaded  []string
	Missing []string
}

func (e *PartialLoadError) Error() string {
	return fmt.Sprintf("partial bundle load: missing artifacts [%s]", strings.Join(e.Missing, ", "))
}

// Store persists bundles as directories of named msgpack artifacts, one
// directory per trained generation.
type Store struct {
	root string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Path returns the directory a generation lives in.
func (s *Store) Path(generation string) string {
	return filepath.Join(s.root, generation)
}

// Save writes every artifact of the bundle under a directory named for its
// generation. The write goes to a temporary directory first and is renamed
// into place so a crashed save never leaves a half-written generation
// where Load would find it.
func (s *Store) Save(b *Bundle) error {
	if b == nil {
		return &StoreIOError{Op: "save", Artifact: ArtifactManifest, Err: errors.New("nil bundle")}
	}
	final := s.Path(b.Manifest.Generation)
	tmp := final + ".tmp"
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return &StoreIOError{Op: "save", Artifact: ArtifactManifest, Err: err}
	}
	defer os.RemoveAll(tmp)

	artifacts := map[string]any{
		ArtifactManifest:    &b.Manifest,
		ArtifactEnsemble:    b.Ensemble,
		ArtifactThresholds:  b.Ensemble.Thresholds,
		ArtifactSiteEnc:     b.SiteEncoder,
		ArtifactTypeEnc:     b.TypeEncoder,
		ArtifactSegments:    b.Segments,
		ArtifactGlobalModel: b.Global,
	}
	for name, value := range artifacts {
		if err := writeArtifact(tmp, name, value); err != nil {
			return err
		}
	}

	if err := os.RemoveAll(final); err != nil {
		return &StoreIOError{Op: "save", Artifact: ArtifactManifest, Err: err}
	}
	if err := os.Rename(tmp, final); err != nil {
		return &StoreIOError{Op: "save", Artifact: ArtifactManifest, Err: err}
	}
	return nil
}

// Load reads a generation directory back into a bundle. Loading is
// all-or-nothing in spirit: if any artifact is missing the returned error
// is a PartialLoadError naming exactly what loaded and what did not, and
// the bundle's readiness flags match it. IO failures on present artifacts
// return a StoreIOError instead.
func (s *Store) Load(generation string) (*Bundle, error) {
	dir := s.Path(generation)
	if _, err := os.Stat(dir); err != nil {
		return nil, &StoreIOError{Op: "load", Artifact: ArtifactManifest, Err: err}
	}

	b := &Bundle{Readiness: make(map[string]bool, len(ArtifactNames))}
	var loaded, missing []string

	load := func(name string, target any) error {
		err := readArtifact(dir, name, target)
		switch {
		case err == nil:
			b.Readiness[name] = true
			loaded = append(loaded, name)
			return nil
		case errors.Is(err, os.ErrNotExist):
			b.Readiness[name] = false
			missing = append(missing, name)
			return nil
		default:
			return &StoreIOError{Op: "load", Artifact: name, Err: err}
		}
	}

	b.Ensemble = &anomaly.Ensemble{}
	b.SiteEncoder = &features.LabelEncoder{}
	b.TypeEncoder = &features.LabelEncoder{}
	b.Segments = make(map[string]*forecast.SegmentModel)

	var thresholds anomaly.ThresholdSet
	var global forecast.SegmentModel
	globalPresent := false

	if err := load(ArtifactManifest, &b.Manifest); err != nil {
		return nil, err
	}
	if err := load(ArtifactEnsemble, b.Ensemble); err != nil {
		return nil, err
	}
	if err := load(ArtifactThresholds, &thresholds); err != nil {
		return nil, err
	}
	if err := load(ArtifactSiteEnc, b.SiteEncoder); err != nil {
		return nil, err
	}
	if err := load(ArtifactTypeEnc, b.TypeEncoder); err != nil {
		return nil, err
	}
	if err := load(ArtifactSegments, &b.Segments); err != nil {
		return nil, err
	}
	if err := readGlobal(dir, &global, &globalPresent); err != nil {
		return nil, err
	}
	if globalPresent {
		b.Readiness[ArtifactGlobalModel] = true
		loaded = append(loaded, ArtifactGlobalModel)
		if global.Model != nil {
			b.Global = &global
		}
	} else {
		b.Readiness[ArtifactGlobalModel] = false
		missing = append(missing, ArtifactGlobalModel)
	}

	// The standalone threshold artifact is authoritative when the
	// ensemble artifact went missing but thresholds survived.
	if b.Readiness[ArtifactThresholds] && b.Ensemble.Thresholds == nil {
		b.Ensemble.Thresholds = thresholds
	}

	if len(missing) > 0 {
		return b, &PartialLoadError{Loaded: loaded, Missing: missing}
	}
	return b, nil
}

// LoadLatest loads the most recently created generation, or nil when the
// store is empty.
func (s *Store) LoadLatest() (*Bundle, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &StoreIOError{Op: "load", Artifact: ArtifactManifest, Err: err}
	}

	var best *Bundle
	var bestErr error
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasSuffix(entry.Name(), ".tmp") {
			continue
		}
		var manifest Manifest
		if err := readArtifact(s.Path(entry.Name()), ArtifactManifest, &manifest); err != nil {
			continue
		}
		if best != nil && !manifest.CreatedAt.After(best.Manifest.CreatedAt) {
			continue
		}
		b, err := s.Load(entry.Name())
		if b != nil {
			best = b
			bestErr = err
		}
	}
	return best, bestErr
}

func writeArtifact(dir, name string, value any) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return &StoreIOError{Op: "save", Artifact: name, Err: err}
	}
	if err := os.WriteFile(filepath.Join(dir, name+artifactExt), data, 0o644); err != nil {
		return &StoreIOError{Op: "save", Artifact: name, Err: err}
	}
	return nil
}

func readArtifact(dir, name string, target any) error {
	data, err := os.ReadFile(filepath.Join(dir, name+artifactExt))
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(data, target)
}

// readGlobal handles the global model artifact, which may legitimately be
// a nil model when the table itself was too small.
func readGlobal(dir string, target *forecast.SegmentModel, present *bool) error {
	data, err := os.ReadFile(filepath.Join(dir, ArtifactGlobalModel+artifactExt))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			*present = false
			return nil
		}
		return &StoreIOError{Op: "load", Artifact: ArtifactGlobalModel, Err: err}
	}
	*present = true
	if err := msgpack.Unmarshal(data, target); err != nil {
		return &StoreIOError{Op: "load", Artifact: ArtifactGlobalModel, Err: err}
	}
	return nil
}
