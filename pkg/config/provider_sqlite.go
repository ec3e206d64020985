package config

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	database, err := s.GetDatabaseConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	config.Database = *database

	modelStore, err := s.GetModelStoreConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load model store config: %w", err)
	}
	config.ModelStore = *modelStore

	training, err := s.GetTrainingConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load training config: %w", err)
	}
	config.Training = *training

	httpConfig, err := s.GetHTTPConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load http config: %w", err)
	}
	config.HTTP = *httpConfig

	return config, nil
}

// GetDatabaseConfig returns the record store configuration from the database
func (s *SQLiteProvider) GetDatabaseConfig() (*DatabaseData, error) {
	query := `
		SELECT connection_string
		FROM database_config
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var database DatabaseData
	err := s.db.QueryRow(query).Scan(&database.ConnectionString)
	if err == sql.ErrNoRows {
		return &DatabaseData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query database config: %w", err)
	}
	return &database, nil
}

// GetModelStoreConfig returns the model store configuration from the database
func (s *SQLiteProvider) GetModelStoreConfig() (*ModelStoreData, error) {
	query := `
		SELECT directory
		FROM model_store_config
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var store ModelStoreData
	err := s.db.QueryRow(query).Scan(&store.Directory)
	if err == sql.ErrNoRows {
		return &ModelStoreData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query model store config: %w", err)
	}
	return &store, nil
}

// GetTrainingConfig returns the training configuration from the database
func (s *SQLiteProvider) GetTrainingConfig() (*TrainingData, error) {
	query := `
		SELECT min_samples, split_ratio, workers, contamination,
		       sigma_band, consensus_threshold, train_on_startup
		FROM training_config
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var training TrainingData
	var minSamples, workers, sigmaBand, consensusThreshold sql.NullInt64
	var splitRatio, contamination sql.NullFloat64
	var trainOnStartup sql.NullBool

	err := s.db.QueryRow(query).Scan(
		&minSamples, &splitRatio, &workers, &contamination,
		&sigmaBand, &consensusThreshold, &trainOnStartup,
	)
	if err == sql.ErrNoRows {
		return &TrainingData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query training config: %w", err)
	}

	if minSamples.Valid {
		training.MinSamples = int(minSamples.Int64)
	}
	if splitRatio.Valid {
		training.SplitRatio = splitRatio.Float64
	}
	if workers.Valid {
		training.Workers = int(workers.Int64)
	}
	if contamination.Valid {
		training.Contamination = contamination.Float64
	}
	if sigmaBand.Valid {
		training.SigmaBand = int(sigmaBand.Int64)
	}
	if consensusThreshold.Valid {
		training.ConsensusThreshold = int(consensusThreshold.Int64)
	}
	if trainOnStartup.Valid {
		training.TrainOnStartup = trainOnStartup.Bool
	}
	return &training, nil
}

// GetHTTPConfig returns the REST server configuration from the database
func (s *SQLiteProvider) GetHTTPConfig() (*HTTPData, error) {
	query := `
		SELECT listen_addr, port, cert, key, enable_cors
		FROM http_config
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var httpConfig HTTPData
	var listenAddr, cert, key sql.NullString
	var port sql.NullInt64
	var enableCORS sql.NullBool

	err := s.db.QueryRow(query).Scan(&listenAddr, &port, &cert, &key, &enableCORS)
	if err == sql.ErrNoRows {
		return &HTTPData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query http config: %w", err)
	}

	if listenAddr.Valid {
		httpConfig.ListenAddr = listenAddr.String
	}
	if port.Valid {
		httpConfig.Port = int(port.Int64)
	}
	if cert.Valid {
		httpConfig.Cert = cert.String
	}
	if key.Valid {
		httpConfig.Key = key.String
	}
	if enableCORS.Valid {
		httpConfig.EnableCORS = enableCORS.Bool
	}
	return &httpConfig, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	return s.db.Close()
}
