// Package config abstracts configuration sources behind one provider
// interface, with YAML file and SQLite database implementations.
package config

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetDatabaseConfig() (*DatabaseData, error)
	GetModelStoreConfig() (*ModelStoreData, error)
	GetTrainingConfig() (*TrainingData, error)
	GetHTTPConfig() (*HTTPData, error)

	// Configuration management (for future SQLite-specific operations)
	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Database   DatabaseData   `json:"database"`
	ModelStore ModelStoreData `json:"model_store"`
	Training   TrainingData   `json:"training,omitempty"`
	HTTP       HTTPData       `json:"http,omitempty"`
}

// DatabaseData holds the connection settings for the rental record store
type DatabaseData struct {
	ConnectionString string `json:"connection_string"`
}

// ModelStoreData holds the on-disk model store settings
type ModelStoreData struct {
	Directory string `json:"directory"`
}

// TrainingData holds the training pipeline knobs. Zero values fall back to
// the engine defaults.
type TrainingData struct {
	MinSamples         int     `json:"min_samples,omitempty"`
	SplitRatio         float64 `json:"split_ratio,omitempty"`
	Workers            int     `json:"workers,omitempty"`
	Contamination      float64 `json:"contamination,omitempty"`
	SigmaBand          int     `json:"sigma_band,omitempty"`
	ConsensusThreshold int     `json:"consensus_threshold,omitempty"`
	// TrainOnStartup runs a full training pass when the service starts
	// and no persisted models exist.
	TrainOnStartup bool `json:"train_on_startup,omitempty"`
}

// HTTPData holds the REST API server settings
type HTTPData struct {
	ListenAddr string `json:"listen_addr,omitempty"`
	Port       int    `json:"port,omitempty"`
	Cert       string `json:"cert,omitempty"`
	Key        string `json:"key,omitempty"`
	EnableCORS bool   `json:"enable_cors,omitempty"`
}
