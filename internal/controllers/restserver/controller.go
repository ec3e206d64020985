// Package restserver exposes the forecasting and anomaly detection engine
// over HTTP.
package restserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/smartrental/rentaltracker/internal/log"
	"github.com/smartrental/rentaltracker/internal/managers"
	"github.com/smartrental/rentaltracker/pkg/config"
	"github.com/smartrental/rentaltracker/pkg/responseformat"
)

// Controller represents the REST server controller
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	configProvider config.ConfigProvider
	httpConfig     config.HTTPData
	Server         http.Server
	manager        *managers.ModelManager
	formatter      *responseformat.Formatter
	logger         *zap.SugaredLogger
	handlers       *Handlers
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, configProvider config.ConfigProvider, hc config.HTTPData, manager *managers.ModelManager, logger *zap.SugaredLogger) (*Controller, error) {
	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		configProvider: configProvider,
		httpConfig:     hc,
		manager:        manager,
		formatter:      responseformat.NewFormatter(hc.EnableCORS),
		logger:         logger,
	}

	// If a listen address was not provided, listen on all interfaces
	if ctrl.httpConfig.ListenAddr == "" {
		logger.Info("http.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		ctrl.httpConfig.ListenAddr = "0.0.0.0"
	}

	// Set default HTTP port if not specified
	if ctrl.httpConfig.Port == 0 {
		logger.Info("http.port not provided; defaulting to 8080")
		ctrl.httpConfig.Port = 8080
	}

	ctrl.handlers = NewHandlers(ctrl)

	router := ctrl.setupRouter()
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", ctrl.httpConfig.ListenAddr, ctrl.httpConfig.Port)
	ctrl.Server.Handler = router

	return ctrl, nil
}

// StartController starts the REST server
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()

		if c.httpConfig.Cert != "" && c.httpConfig.Key != "" {
			if err := c.Server.ListenAndServeTLS(c.httpConfig.Cert, c.httpConfig.Key); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		} else {
			if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
				log.Errorf("REST server error: %v", err)
			}
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		c.Server.Shutdown(context.Background())
	}()

	return nil
}

// setupRouter configures the HTTP router with all endpoints
func (c *Controller) setupRouter() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/ml").Subrouter()
	api.HandleFunc("/health", c.handlers.GetHealth).Methods(http.MethodGet)
	api.HandleFunc("/status", c.handlers.GetStatus).Methods(http.MethodGet)

	api.HandleFunc("/demand-forecast", c.handlers.GenerateForecast).Methods(http.MethodPost)
	api.HandleFunc("/demand-forecast/bulk", c.handlers.GenerateBulkForecast).Methods(http.MethodPost)

	api.HandleFunc("/anomaly-detection", c.handlers.DetectAnomalies).Methods(http.MethodPost)
	api.HandleFunc("/anomaly-detection/summary", c.handlers.GetAnomalySummary).Methods(http.MethodGet)

	api.HandleFunc("/analytics/equipment-stats", c.handlers.GetEquipmentStats).Methods(http.MethodGet)
	api.HandleFunc("/analytics/recommendations", c.handlers.GetRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/analytics/equipment/{type}/performance", c.handlers.GetEquipmentPerformance).Methods(http.MethodGet)
	api.HandleFunc("/analytics/site/{site}/utilization", c.handlers.GetSiteUtilization).Methods(http.MethodGet)

	api.HandleFunc("/models/retrain", c.handlers.RetrainModels).Methods(http.MethodPost)

	return router
}
