// Package app wires configuration, the record store, the model manager and
// the REST server into one runnable service.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/smartrental/rentaltracker/internal/anomaly"
	"github.com/smartrental/rentaltracker/internal/bundle"
	"github.com/smartrental/rentaltracker/internal/controllers/restserver"
	"github.com/smartrental/rentaltracker/internal/database"
	"github.com/smartrental/rentaltracker/internal/forecast"
	"github.com/smartrental/rentaltracker/internal/log"
	"github.com/smartrental/rentaltracker/internal/managers"
	"github.com/smartrental/rentaltracker/pkg/config"
)

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	logger         *zap.SugaredLogger
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, logger *zap.SugaredLogger) *App {
	return &App{
		configProvider: configProvider,
		logger:         logger,
	}
}

// Run starts the application and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfgData, err := a.configProvider.LoadConfig()
	if err != nil {
		return err
	}

	// Connect to the rental record store
	db := database.NewClient(cfgData.Database.ConnectionString, a.logger)
	if err := db.Connect(); err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	// Set up the model store and manager
	storeDir := cfgData.ModelStore.Directory
	if storeDir == "" {
		storeDir = "models"
	}
	store := bundle.NewStore(storeDir)
	manager := managers.NewModelManager(db, store,
		trainerParams(cfgData.Training), detectorParams(cfgData.Training), a.logger)

	if err := manager.Bootstrap(); err != nil {
		return err
	}
	if cfgData.Training.TrainOnStartup && !manager.Bundle().Trained() {
		log.Info("no trained models found; running initial training...")
		if _, err := manager.Train(ctx); err != nil && !errors.Is(err, managers.ErrNoData) {
			return err
		}
	}

	// Start the REST server
	controller, err := restserver.NewController(ctx, &wg, a.configProvider, cfgData.HTTP, manager, a.logger)
	if err != nil {
		return err
	}
	if err := controller.StartController(); err != nil {
		return err
	}

	log.Info("Application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigs:
		log.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down...")
	}

	// Cancel context to signal all goroutines to stop
	cancel()

	// Wait for all workers to terminate
	log.Info("waiting for all workers to terminate...")
	wg.Wait()
	log.Info("shutdown complete")

	return nil
}

// trainerParams maps the training config section onto the engine defaults.
func trainerParams(t config.TrainingData) forecast.TrainerParams {
	params := forecast.DefaultTrainerParams()
	if t.MinSamples > 0 {
		params.MinSamples = t.MinSamples
	}
	if t.SplitRatio > 0 && t.SplitRatio < 1 {
		params.SplitRatio = t.SplitRatio
	}
	if t.Workers > 0 {
		params.Workers = t.Workers
	}
	return params
}

func detectorParams(t config.TrainingData) anomaly.DetectorParams {
	params := anomaly.DefaultParams()
	if t.Contamination > 0 && t.Contamination < 0.5 {
		params.Contamination = t.Contamination
	}
	if t.SigmaBand == 2 || t.SigmaBand == 3 {
		params.SigmaBand = t.SigmaBand
	}
	if t.ConsensusThreshold > 0 {
		params.ConsensusThreshold = t.ConsensusThreshold
	}
	return params
}
