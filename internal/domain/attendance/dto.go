package attendance

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/validator"
)

// MaxProofPhotoSize is the largest accepted attendance proof photo.
const MaxProofPhotoSize = 10 << 20

var allowedProofExts = []string{".jpg", ".jpeg", ".png"}

// ========================================
// SERVER DTOs
// ========================================

// ClockRequest is one clock-in or clock-out as received by the server.
type ClockRequest struct {
	Action     Action
	Coordinate GeoCoordinate
	Image      io.Reader
	Filename   string
	Size       int64
}

func (r *ClockRequest) Validate() error {
	var errs validator.ValidationErrors

	if !r.Action.Valid() {
		errs = append(errs, validator.ValidationError{
			Field:   "action",
			Message: "action must be one of: clock-in, clock-out",
		})
	}

	if err := r.Coordinate.Validate(); err != nil {
		if coordErrs, ok := err.(validator.ValidationErrors); ok {
			errs = append(errs, coordErrs...)
		} else {
			return err
		}
	}

	if r.Image == nil {
		errs = append(errs, validator.ValidationError{
			Field:   "image",
			Message: "attendance proof photo is required",
		})
	} else if ext := strings.ToLower(filepath.Ext(r.Filename)); !validator.IsInSlice(ext, allowedProofExts) {
		errs = append(errs, validator.ValidationError{
			Field:   "image",
			Message: "invalid file type: only jpg, jpeg, png allowed",
		})
	} else if r.Size > MaxProofPhotoSize {
		errs = append(errs, validator.ValidationError{
			Field:   "image",
			Message: "attendance proof photo size must not exceed 10MB",
		})
	}

	if len(errs) > 0 {
		return errs
	}

	return nil
}

// AttendanceResponse is the `data` of a successful clock-in/out.
type AttendanceResponse struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	TodayAttendance
	ClockInAddress   *string `json:"clock_in_address,omitempty"`
	ClockOutAddress  *string `json:"clock_out_address,omitempty"`
	ClockInProofURL  *string `json:"clock_in_proof_url,omitempty"`
	ClockOutProofURL *string `json:"clock_out_proof_url,omitempty"`
}

func NewAttendanceResponse(a Attendance) AttendanceResponse {
	return AttendanceResponse{
		ID:               a.ID,
		Date:             a.Date.Format("2006-01-02"),
		TodayAttendance:  a.Today(),
		ClockInAddress:   a.ClockInAddress,
		ClockOutAddress:  a.ClockOutAddress,
		ClockInProofURL:  a.ClockInProofURL,
		ClockOutProofURL: a.ClockOutProofURL,
	}
}

// ========================================
// CLIENT DTOs
// ========================================

// ClockPayload is what the client engine submits for one attempt.
type ClockPayload struct {
	Coordinate       GeoCoordinate
	Image            []byte
	ImageContentType string
}

// SubmissionResult is the server's answer to an accepted submission.
type SubmissionResult struct {
	Message    string
	Attendance *AttendanceResponse
}
