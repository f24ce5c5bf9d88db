package http

import (
	"net/http"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/handler/http/response"
)

type ScheduleHandler interface {
	GetToday(w http.ResponseWriter, r *http.Request)
}

type scheduleHandlerImpl struct {
	scheduleService schedule.ScheduleService
}

func NewScheduleHandler(scheduleService schedule.ScheduleService) ScheduleHandler {
	return &scheduleHandlerImpl{scheduleService: scheduleService}
}

// GetToday returns today's shift with clock-in eligibility, or null when there is no shift.
func (h *scheduleHandlerImpl) GetToday(w http.ResponseWriter, r *http.Request) {
	today, err := h.scheduleService.GetToday(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, today)
}
