package response

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	switch {
	case errors.Is(err, attendance.ErrMissingClaims):
		Unauthorized(w, "Invalid token")

	// Geofence
	case errors.Is(err, attendance.ErrOutsideAllowedRadius):
		Forbidden(w, "You are outside the allowed radius")

	// At most one clock-in and one clock-out per day
	case errors.Is(err, attendance.ErrAlreadyCheckedIn):
		Conflict(w, "You have already clocked in today")
	case errors.Is(err, attendance.ErrAlreadyCheckedOut):
		Conflict(w, "You have already clocked out today")
	case errors.Is(err, attendance.ErrClockInProgress):
		Conflict(w, "Your attendance is already being processed")

	// Shift window
	case errors.Is(err, attendance.ErrTooEarlyToCheckIn):
		BusinessRule(w, "It is too early to clock in")
	case errors.Is(err, attendance.ErrNoScheduleFound):
		BusinessRule(w, "You have no schedule today")
	case errors.Is(err, attendance.ErrNotCheckedIn):
		BusinessRule(w, "You have not clocked in yet")

	case errors.Is(err, attendance.ErrAttendanceNotFound):
		NotFound(w, "Attendance not found")

	// Default
	default:
		slog.Error("unhandled error", "error", err)
		InternalServerError(w, "An unexpected error occurred")
	}
}
