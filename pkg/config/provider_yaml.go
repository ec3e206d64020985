package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	// Load into temporary struct with YAML tags
	var yamlConfig struct {
		Database   DatabaseYAML   `yaml:"database"`
		ModelStore ModelStoreYAML `yaml:"model-store"`
		Training   TrainingYAML   `yaml:"training,omitempty"`
		HTTP       HTTPYAML       `yaml:"http,omitempty"`
	}

	err = yaml.Unmarshal(cfgFile, &yamlConfig)
	if err != nil {
		return nil, err
	}

	// Convert to our internal format
	config := &ConfigData{
		Database: DatabaseData{
			ConnectionString: yamlConfig.Database.ConnectionString,
		},
		ModelStore: ModelStoreData{
			Directory: yamlConfig.ModelStore.Directory,
		},
		Training: TrainingData{
			MinSamples:         yamlConfig.Training.MinSamples,
			SplitRatio:         yamlConfig.Training.SplitRatio,
			Workers:            yamlConfig.Training.Workers,
			Contamination:      yamlConfig.Training.Contamination,
			SigmaBand:          yamlConfig.Training.SigmaBand,
			ConsensusThreshold: yamlConfig.Training.ConsensusThreshold,
			TrainOnStartup:     yamlConfig.Training.TrainOnStartup,
		},
		HTTP: HTTPData{
			ListenAddr: yamlConfig.HTTP.ListenAddr,
			Port:       yamlConfig.HTTP.Port,
			Cert:       yamlConfig.HTTP.Cert,
			Key:        yamlConfig.HTTP.Key,
			EnableCORS: yamlConfig.HTTP.EnableCORS,
		},
	}

	y.config = config
	return config, nil
}

// GetDatabaseConfig returns the record store configuration
func (y *YAMLProvider) GetDatabaseConfig() (*DatabaseData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Database, nil
}

// GetModelStoreConfig returns the model store configuration
func (y *YAMLProvider) GetModelStoreConfig() (*ModelStoreData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.ModelStore, nil
}

// GetTrainingConfig returns the training configuration
func (y *YAMLProvider) GetTrainingConfig() (*TrainingData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.Training, nil
}

// GetHTTPConfig returns the REST server configuration
func (y *YAMLProvider) GetHTTPConfig() (*HTTPData, error) {
	if y.config == nil {
		_, err := y.LoadConfig()
		if err != nil {
			return nil, err
		}
	}
	return &y.config.HTTP, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}

// YAML-specific structs with proper YAML tags for parsing the file format
type DatabaseYAML struct {
	ConnectionString string `yaml:"connection-string"`
}

type ModelStoreYAML struct {
	Directory string `yaml:"directory"`
}

type TrainingYAML struct {
	MinSamples         int     `yaml:"min-samples,omitempty"`
	SplitRatio         float64 `yaml:"split-ratio,omitempty"`
	Workers            int     `yaml:"workers,omitempty"`
	Contamination      float64 `yaml:"contamination,omitempty"`
	SigmaBand          int     `yaml:"sigma-band,omitempty"`
	ConsensusThreshold int     `yaml:"consensus-threshold,omitempty"`
	TrainOnStartup     bool    `yaml:"train-on-startup,omitempty"`
}

type HTTPYAML struct {
	ListenAddr string `yaml:"listen-addr,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Cert       string `yaml:"cert,omitempty"`
	Key        string `yaml:"key,omitempty"`
	EnableCORS bool   `yaml:"enable-cors,omitempty"`
}
