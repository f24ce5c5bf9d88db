package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"geofence", attendance.ErrOutsideAllowedRadius, http.StatusForbidden, "FORBIDDEN"},
		{"duplicate clock-in", attendance.ErrAlreadyCheckedIn, http.StatusConflict, "CONFLICT"},
		{"duplicate clock-out", fmt.Errorf("update: %w", attendance.ErrAlreadyCheckedOut), http.StatusConflict, "CONFLICT"},
		{"in progress", attendance.ErrClockInProgress, http.StatusConflict, "CONFLICT"},
		{"too early", attendance.ErrTooEarlyToCheckIn, http.StatusUnprocessableEntity, "BUSINESS_RULE"},
		{"no schedule", attendance.ErrNoScheduleFound, http.StatusUnprocessableEntity, "BUSINESS_RULE"},
		{"not checked in", attendance.ErrNotCheckedIn, http.StatusUnprocessableEntity, "BUSINESS_RULE"},
		{"missing claims", attendance.ErrMissingClaims, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"validation", validator.ValidationErrors{{Field: "image", Message: "required"}}, http.StatusUnprocessableEntity, "VALIDATION_ERROR"},
		{"unknown", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			HandleError(rec, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.False(t, body.Success)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestHandleError_ValidationDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, validator.ValidationErrors{
		{Field: "latitude", Message: "latitude must be between -90 and 90"},
	})

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, map[string]string{"latitude": "latitude must be between -90 and 90"}, body.Error.Details)
}
