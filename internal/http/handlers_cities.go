package httpx

import (
	"errors"
	"net/http"

	"github.com/citypulse/weather-pipeline/internal/domain/model"
	"github.com/citypulse/weather-pipeline/internal/service"
)

// CityHandlers provides HTTP handlers for city intake and status polling.
type CityHandlers struct {
	Intake *service.IntakeService
	Status *service.StatusService
}

// CreateCity handles POST /cities: it validates the body, hands the city to
// the pipeline, and acknowledges with 202 Accepted.
func (h *CityHandlers) CreateCity(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCityRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	resp, err := h.Intake.Accept(r.Context(), &req)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusAccepted, resp)
}

// GetStatus handles GET /status/{cityId}: the point-in-time snapshot for a job.
func (h *CityHandlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	cityID := r.PathValue("cityId")
	if cityID == "" {
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_path",
			Err:     errors.New("city id is required"),
		})
		return
	}

	snap, err := h.Status.Get(r.Context(), cityID)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, snap)
}
