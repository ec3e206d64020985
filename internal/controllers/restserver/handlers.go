package restserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/smartrental/rentaltracker/internal/forecast"
	"github.com/smartrental/rentaltracker/internal/managers"
)

// Handlers holds the REST endpoint implementations
type Handlers struct {
	ctrl *Controller
}

// NewHandlers creates the handler set for a controller
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{ctrl: ctrl}
}

// errorResponse is the uniform error body
type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	h.ctrl.formatter.WriteResponseWithStatus(w, req, status, errorResponse{Error: msg})
}

// mapManagerError translates the engine's sentinel errors to HTTP statuses.
func (h *Handlers) mapManagerError(w http.ResponseWriter, req *http.Request, err error) {
	switch {
	case errors.Is(err, managers.ErrNotTrained):
		h.writeError(w, req, http.StatusServiceUnavailable, "ML models are not trained yet")
	case errors.Is(err, managers.ErrTrainingInProgress):
		h.writeError(w, req, http.StatusConflict, "model training is already in progress")
	case errors.Is(err, managers.ErrNoData):
		h.writeError(w, req, http.StatusNotFound, err.Error())
	case errors.Is(err, forecast.ErrSegmentNotFound):
		h.writeError(w, req, http.StatusNotFound, "no model available for the requested segment")
	default:
		h.ctrl.logger.Errorf("request failed: %v", err)
		h.writeError(w, req, http.StatusInternalServerError, err.Error())
	}
}

// GetHealth reports liveness and whether models are servable
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	status := h.ctrl.manager.Status()
	h.ctrl.formatter.WriteResponse(w, req, map[string]any{
		"status":       "healthy",
		"ml_available": status.Trained,
		"generation":   status.Generation,
		"checked_at":   time.Now().UTC(),
	}, nil)
}

// GetStatus reports the active bundle and training state
func (h *Handlers) GetStatus(w http.ResponseWriter, req *http.Request) {
	h.ctrl.formatter.WriteResponse(w, req, h.ctrl.manager.Status(), nil)
}

// GenerateForecast projects demand for one (site, equipment type) segment
func (h *Handlers) GenerateForecast(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	freq := forecast.ForecastRequest{
		EquipmentType: q.Get("equipment_type"),
		SiteID:        q.Get("site_id"),
		Compound:      q.Get("compound") == "true",
	}
	if v := q.Get("days_ahead"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days <= 0 {
			h.writeError(w, req, http.StatusBadRequest, "days_ahead must be a positive integer")
			return
		}
		freq.DaysAhead = days
	}

	series, err := h.ctrl.manager.Forecast(freq)
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, series, nil)
}

// bulkForecastEntry is one equipment type's row in the bulk response
type bulkForecastEntry struct {
	EquipmentType string  `json:"equipment_type"`
	Predicted     float64 `json:"predicted_demand"`
	AverageDaily  float64 `json:"average_daily_demand"`
	Trend         string  `json:"trend"`
	DaysAhead     int     `json:"days_ahead"`
}

// GenerateBulkForecast projects demand for every known equipment type
func (h *Handlers) GenerateBulkForecast(w http.ResponseWriter, req *http.Request) {
	days := 7
	if v := req.URL.Query().Get("days_ahead"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.writeError(w, req, http.StatusBadRequest, "days_ahead must be a positive integer")
			return
		}
		days = parsed
	}

	b := h.ctrl.manager.Bundle()
	if !b.Trained() {
		h.mapManagerError(w, req, managers.ErrNotTrained)
		return
	}

	entries := make([]bulkForecastEntry, 0, len(b.TypeEncoder.Classes))
	for _, equipmentType := range b.TypeEncoder.Classes {
		series, err := h.ctrl.manager.Forecast(forecast.ForecastRequest{
			EquipmentType: equipmentType,
			DaysAhead:     days,
		})
		if err != nil {
			continue
		}
		entries = append(entries, bulkForecastEntry{
			EquipmentType: equipmentType,
			Predicted:     series.TotalPredicted,
			AverageDaily:  series.AverageDaily,
			Trend:         series.Trend,
			DaysAhead:     days,
		})
	}

	h.ctrl.formatter.WriteResponse(w, req, map[string]any{
		"forecasts":           entries,
		"total_forecast_days": days,
		"generated_at":        time.Now().UTC(),
	}, nil)
}

// DetectAnomalies runs the ensemble over current usage records
func (h *Handlers) DetectAnomalies(w http.ResponseWriter, req *http.Request) {
	report, err := h.ctrl.manager.DetectAnomalies(req.Context(), req.URL.Query().Get("equipment_id"))
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, report, nil)
}

// GetAnomalySummary returns only the aggregate counts of a detection run
func (h *Handlers) GetAnomalySummary(w http.ResponseWriter, req *http.Request) {
	report, err := h.ctrl.manager.DetectAnomalies(req.Context(), "")
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, map[string]any{
		"summary":      report.Summary,
		"generated_at": report.GeneratedAt,
	}, nil)
}

// GetEquipmentStats returns the fleet analytics report
func (h *Handlers) GetEquipmentStats(w http.ResponseWriter, req *http.Request) {
	stats, err := h.ctrl.manager.EquipmentStats(req.Context())
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, stats, nil)
}

// GetRecommendations returns actionable fleet findings
func (h *Handlers) GetRecommendations(w http.ResponseWriter, req *http.Request) {
	recs, err := h.ctrl.manager.Recommendations(req.Context())
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, recs, nil)
}

// GetEquipmentPerformance returns the drill-down report for one
// equipment type
func (h *Handlers) GetEquipmentPerformance(w http.ResponseWriter, req *http.Request) {
	perf, err := h.ctrl.manager.EquipmentPerformance(req.Context(), mux.Vars(req)["type"])
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, perf, nil)
}

// GetSiteUtilization returns the drill-down report for one site
func (h *Handlers) GetSiteUtilization(w http.ResponseWriter, req *http.Request) {
	util, err := h.ctrl.manager.SiteUtilization(req.Context(), mux.Vars(req)["site"])
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, util, nil)
}

// RetrainModels runs the full training pipeline synchronously. The run is
// bound to the service context, not the request, so a disconnecting client
// does not abort a half-finished train.
func (h *Handlers) RetrainModels(w http.ResponseWriter, req *http.Request) {
	report, err := h.ctrl.manager.Train(h.ctrl.ctx)
	if err != nil {
		h.mapManagerError(w, req, err)
		return
	}
	h.ctrl.formatter.WriteResponse(w, req, report, nil)
}
