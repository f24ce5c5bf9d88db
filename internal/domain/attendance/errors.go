package attendance

import (
	"errors"
	"fmt"
	"net/http"
)

// Device and flow errors, surfaced by the client engine.
var (
	ErrDeviceUnavailable = errors.New("device capability unavailable")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrTimeout           = errors.New("timed out")
	ErrDetectorInit      = errors.New("face detector failed to initialize")
	ErrSuperseded        = errors.New("superseded by a newer request")

	ErrCaptureNotAllowed = errors.New("capture not allowed until a face is detected")

	ErrValidation         = errors.New("submission requires a location and a photo")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrTransport          = errors.New("could not reach the attendance server")

	// ErrWorkDurationUnavailable means clock-out precedes clock-in. The duration is unknown, not zero.
	ErrWorkDurationUnavailable = errors.New("work duration unavailable: clock-out precedes clock-in")
)

// Attendance domain errors
var (
	// Check-in errors
	ErrAlreadyCheckedIn     = errors.New("you have already checked in today")
	ErrNoScheduleFound      = errors.New("no schedule found for today")
	ErrOutsideAllowedRadius = errors.New("you are outside the allowed radius")
	ErrTooEarlyToCheckIn    = errors.New("too early to check in")
	ErrNotCheckedIn         = errors.New("you have not checked in yet")
	ErrAlreadyCheckedOut    = errors.New("you have already checked out")

	// Client-side eligibility
	ErrClockInNotOpen     = errors.New("clock-in is not open yet")
	ErrClockOutNotAllowed = errors.New("clock-out is not allowed yet")

	ErrAttendanceNotFound = errors.New("attendance record not found")
	ErrClockInProgress    = errors.New("your attendance is already being processed")
	ErrMissingClaims      = errors.New("employee_id or company_id claim is missing or invalid")
)

// RejectionError is a non-2xx answer from the attendance server.
// Message is the server's own text and is shown to the user as-is.
type RejectionError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RejectionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != "" {
		return fmt.Sprintf("server rejected request (%d %s): %s", e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("server rejected request (%d): %s", e.StatusCode, msg)
}

// Is lets a 401 match ErrPermissionDenied so callers can reset on it.
func (e *RejectionError) Is(target error) bool {
	return target == ErrPermissionDenied && e.StatusCode == http.StatusUnauthorized
}

// BusinessRule reports whether the server refused the event itself, as opposed to failing.
func (e *RejectionError) BusinessRule() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

const genericMessage = "Something went wrong, please try again"

// UserMessage returns the copy shown to the user for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rejection *RejectionError
	if errors.As(err, &rejection) && rejection.Message != "" {
		return rejection.Message
	}

	switch {
	case errors.Is(err, ErrDeviceUnavailable):
		return "This device has no camera or location service available"
	case errors.Is(err, ErrPermissionDenied):
		return "Permission denied. Allow camera and location access, then try again"
	case errors.Is(err, ErrTimeout):
		return "Getting your location took too long. Tap refresh location to retry"
	case errors.Is(err, ErrCaptureNotAllowed):
		return "Position your face in the frame before taking the photo"
	case errors.Is(err, ErrValidation):
		return "Take a photo and wait for your location before submitting"
	case errors.Is(err, ErrSubmissionInFlight):
		return "Your attendance is being submitted"
	case errors.Is(err, ErrTransport):
		return "Could not reach the server. Your photo is kept, try submitting again"
	case errors.Is(err, ErrClockInNotOpen):
		return "Clock-in is not open yet"
	case errors.Is(err, ErrClockOutNotAllowed):
		return "You can clock out after your shift ends"
	case errors.Is(err, ErrNoScheduleFound):
		return "You have no schedule today"
	case errors.Is(err, ErrWorkDurationUnavailable):
		return "Work duration is unavailable for today's record"
	}

	return genericMessage
}
