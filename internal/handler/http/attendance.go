package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/handler/http/response"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/validator"
)

// multipartMemory is how much of a clock form is held in memory before spilling to disk.
const multipartMemory = 10 << 20

type AttendanceHandler interface {
	ClockIn(w http.ResponseWriter, r *http.Request)
	ClockOut(w http.ResponseWriter, r *http.Request)
	GetToday(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	attendanceService attendance.AttendanceService
}

func NewAttendanceHandler(attendanceService attendance.AttendanceService) AttendanceHandler {
	return &attendanceHandlerImpl{
		attendanceService: attendanceService,
	}
}

// ClockIn implements AttendanceHandler.
func (h *attendanceHandlerImpl) ClockIn(w http.ResponseWriter, r *http.Request) {
	req, cleanup, ok := parseClockForm(w, r, attendance.ActionClockIn)
	if !ok {
		return
	}
	defer cleanup()

	resp, err := h.attendanceService.ClockIn(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Clock in successful", resp)
}

// ClockOut implements AttendanceHandler.
func (h *attendanceHandlerImpl) ClockOut(w http.ResponseWriter, r *http.Request) {
	req, cleanup, ok := parseClockForm(w, r, attendance.ActionClockOut)
	if !ok {
		return
	}
	defer cleanup()

	resp, err := h.attendanceService.ClockOut(r.Context(), req)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Clock out successful", resp)
}

// GetToday implements AttendanceHandler.
func (h *attendanceHandlerImpl) GetToday(w http.ResponseWriter, r *http.Request) {
	today, err := h.attendanceService.GetToday(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, today)
}

// parseClockForm reads latitude, longitude, address and image from a multipart body.
// On failure it writes the error response and returns ok=false.
func parseClockForm(w http.ResponseWriter, r *http.Request, action attendance.Action) (req attendance.ClockRequest, cleanup func(), ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, attendance.MaxProofPhotoSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ValidationError(w, map[string]string{"image": "attendance proof photo size must not exceed 10MB"})
			return req, nil, false
		}
		slog.Error("Failed to parse multipart form", "error", err)
		response.BadRequest(w, "Failed to parse form data", nil)
		return req, nil, false
	}

	var errs validator.ValidationErrors
	req.Action = action
	req.Coordinate.Latitude = parseFloatField(r, "latitude", &errs)
	req.Coordinate.Longitude = parseFloatField(r, "longitude", &errs)
	if address := strings.TrimSpace(r.FormValue("address")); address != "" {
		req.Coordinate.Address = &address
	}

	file, fileHeader, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		errs = append(errs, validator.ValidationError{Field: "image", Message: "attendance proof photo is required"})
	case err != nil:
		slog.Error("Failed to get file from form", "error", err)
		response.BadRequest(w, "Invalid file upload", nil)
		return req, nil, false
	default:
		req.Image = file
		req.Filename = fileHeader.Filename
		req.Size = fileHeader.Size
	}

	cleanup = func() {
		if file != nil {
			file.Close()
		}
		if r.MultipartForm != nil {
			r.MultipartForm.RemoveAll()
		}
	}

	if len(errs) > 0 {
		cleanup()
		response.HandleError(w, errs)
		return req, nil, false
	}

	return req, cleanup, true
}

func parseFloatField(r *http.Request, field string, errs *validator.ValidationErrors) float64 {
	raw := strings.TrimSpace(r.FormValue(field))
	if validator.IsEmpty(raw) {
		*errs = append(*errs, validator.ValidationError{Field: field, Message: field + " is required"})
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, validator.ValidationError{Field: field, Message: field + " must be a number"})
		return 0
	}
	return v
}
