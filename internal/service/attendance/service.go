package attendance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/lock"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/shift"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/sse"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/utils"
	"github.com/cmlabs-hris/hris-attendance-go/internal/service/file"
)

// EventAttendanceUpdated is published after every accepted clock event.
const EventAttendanceUpdated = "attendance.updated"

const dateLayout = "2006-01-02"

type Publisher interface {
	Publish(employeeID string, event sse.Event)
}

type Config struct {
	Policy          shift.Policy
	DefaultLocation *time.Location
	LockTTL         time.Duration
}

type AttendanceServiceImpl struct {
	attendanceRepo attendance.AttendanceRepository
	scheduleRepo   schedule.ScheduleRepository
	fileService    file.FileService
	locker         lock.Locker
	events         Publisher

	policy     shift.Policy
	defaultLoc *time.Location
	lockTTL    time.Duration
	now        func() time.Time
}

func NewAttendanceService(
	attendanceRepo attendance.AttendanceRepository,
	scheduleRepo schedule.ScheduleRepository,
	fileService file.FileService,
	locker lock.Locker,
	events Publisher,
	cfg Config,
) *AttendanceServiceImpl {
	if cfg.DefaultLocation == nil {
		cfg.DefaultLocation = time.UTC
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &AttendanceServiceImpl{
		attendanceRepo: attendanceRepo,
		scheduleRepo:   scheduleRepo,
		fileService:    fileService,
		locker:         locker,
		events:         events,
		policy:         cfg.Policy,
		defaultLoc:     cfg.DefaultLocation,
		lockTTL:        cfg.LockTTL,
		now:            time.Now,
	}
}

// ClockIn implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) ClockIn(ctx context.Context, req attendance.ClockRequest) (attendance.AttendanceResponse, error) {
	req.Action = attendance.ActionClockIn
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	claims, ok := jwt.ClaimsFromContext(ctx)
	if !ok {
		return attendance.AttendanceResponse{}, attendance.ErrMissingClaims
	}

	loc := a.location(ctx, claims)
	nowUTC := a.now().UTC()
	nowLocal := nowUTC.In(loc)
	day, activeSchedule, err := shift.ActiveWorkingDay(ctx, a.scheduleRepo, claims.EmployeeID, claims.CompanyID, nowLocal)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}
	if activeSchedule == nil {
		return attendance.AttendanceResponse{}, attendance.ErrNoScheduleFound
	}

	release, err := a.acquire(ctx, claims.EmployeeID, day, attendance.ActionClockIn)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}
	defer release()

	existing, err := a.attendanceRepo.GetByEmployeeAndDate(ctx, claims.EmployeeID, day, claims.CompanyID)
	if err != nil {
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to check today's attendance: %w", err)
	}
	if existing != nil {
		return attendance.AttendanceResponse{}, attendance.ErrAlreadyCheckedIn
	}

	if nowLocal.Before(a.policy.WindowOpensAt(activeSchedule.Shift, day)) {
		return attendance.AttendanceResponse{}, attendance.ErrTooEarlyToCheckIn
	}

	if err := checkGeofence(activeSchedule, req.Coordinate); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	result := shift.ClassifyClockIn(activeSchedule.Shift, nowLocal)

	proofPath, err := a.fileService.UploadAttendanceProof(ctx, claims.EmployeeID, day, attendance.ActionClockIn, req.Image, req.Filename)
	if err != nil {
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to upload attendance proof: %w", err)
	}

	locationType := string(activeSchedule.LocationType)
	data := attendance.Attendance{
		EmployeeID:         claims.EmployeeID,
		CompanyID:          claims.CompanyID,
		Date:               day,
		WorkScheduleTimeID: &activeSchedule.TimeID,
		ActualLocationType: &locationType,
		ShiftStart:         activeSchedule.Shift.StartTime,
		ShiftEnd:           activeSchedule.Shift.EndTime,
		ToleranceMinutes:   activeSchedule.Shift.ToleranceMinutes,
		ClockIn:            &nowUTC,
		ClockInLatitude:    &req.Coordinate.Latitude,
		ClockInLongitude:   &req.Coordinate.Longitude,
		ClockInAddress:     req.Coordinate.Address,
		ClockInProofURL:    &proofPath,
		ClockInStatus:      result.Status,
		LateMinutes:        result.LateMinutes,
	}

	created, err := a.attendanceRepo.Create(ctx, data)
	if err != nil {
		a.discardProof(ctx, proofPath)
		if errors.Is(err, attendance.ErrAlreadyCheckedIn) {
			return attendance.AttendanceResponse{}, err
		}
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to create attendance record: %w", err)
	}

	slog.Info("employee clocked in",
		"employee_id", claims.EmployeeID,
		"date", day.Format(dateLayout),
		"status", created.ClockInStatus,
		"late_minutes", created.LateMinutes,
	)

	return a.respond(ctx, created), nil
}

// ClockOut implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) ClockOut(ctx context.Context, req attendance.ClockRequest) (attendance.AttendanceResponse, error) {
	req.Action = attendance.ActionClockOut
	if err := req.Validate(); err != nil {
		return attendance.AttendanceResponse{}, err
	}

	claims, ok := jwt.ClaimsFromContext(ctx)
	if !ok {
		return attendance.AttendanceResponse{}, attendance.ErrMissingClaims
	}

	loc := a.location(ctx, claims)
	nowUTC := a.now().UTC()
	nowLocal := nowUTC.In(loc)

	record, err := a.openRecord(ctx, claims, startOfDay(nowLocal))
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}

	release, err := a.acquire(ctx, claims.EmployeeID, record.Date, attendance.ActionClockOut)
	if err != nil {
		return attendance.AttendanceResponse{}, err
	}
	defer release()

	activeSchedule, err := a.scheduleRepo.GetActiveSchedule(ctx, claims.EmployeeID, record.Date, claims.CompanyID)
	if err != nil {
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to get active schedule: %w", err)
	}
	if activeSchedule != nil {
		if err := checkGeofence(activeSchedule, req.Coordinate); err != nil {
			return attendance.AttendanceResponse{}, err
		}
	}

	// The shift frozen on the record classifies the clock-out, even if the schedule changed since.
	clockInLocal := record.ClockIn.In(loc)
	result := shift.ClassifyClockOut(record.Shift(), clockInLocal, nowLocal)

	proofPath, err := a.fileService.UploadAttendanceProof(ctx, claims.EmployeeID, record.Date, attendance.ActionClockOut, req.Image, req.Filename)
	if err != nil {
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to upload attendance proof: %w", err)
	}

	record.ClockOut = &nowUTC
	record.ClockOutLatitude = &req.Coordinate.Latitude
	record.ClockOutLongitude = &req.Coordinate.Longitude
	record.ClockOutAddress = req.Coordinate.Address
	record.ClockOutProofURL = &proofPath
	record.ClockOutStatus = &result.Status
	record.EarlyLeaveMinutes = &result.EarlyLeaveMinutes

	workMinutes, err := shift.WorkMinutes(*record.ClockIn, nowUTC)
	if err != nil {
		slog.Warn("work duration unavailable",
			"employee_id", claims.EmployeeID,
			"attendance_id", record.ID,
			"clock_in", record.ClockIn,
			"clock_out", nowUTC,
			"error", err,
		)
		record.WorkMinutes = nil
	} else {
		record.WorkMinutes = &workMinutes
	}

	updated, err := a.attendanceRepo.UpdateClockOut(ctx, *record)
	if err != nil {
		a.discardProof(ctx, proofPath)
		if errors.Is(err, attendance.ErrAlreadyCheckedOut) {
			return attendance.AttendanceResponse{}, err
		}
		return attendance.AttendanceResponse{}, fmt.Errorf("failed to update attendance record: %w", err)
	}

	slog.Info("employee clocked out",
		"employee_id", claims.EmployeeID,
		"date", updated.Date.Format(dateLayout),
		"status", result.Status,
		"early_leave_minutes", result.EarlyLeaveMinutes,
	)

	return a.respond(ctx, updated), nil
}

// GetToday implements attendance.AttendanceService.
func (a *AttendanceServiceImpl) GetToday(ctx context.Context) (*attendance.TodayAttendance, error) {
	claims, ok := jwt.ClaimsFromContext(ctx)
	if !ok {
		return nil, attendance.ErrMissingClaims
	}

	loc := a.location(ctx, claims)
	today := startOfDay(a.now().In(loc))

	record, err := a.attendanceRepo.GetByEmployeeAndDate(ctx, claims.EmployeeID, today, claims.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get today's attendance: %w", err)
	}
	if record == nil {
		// An overnight shift still open from yesterday is today's record until it is closed.
		record, err = a.openOvernight(ctx, claims, today)
		if err != nil || record == nil {
			return nil, err
		}
	}

	view := record.Today()
	return &view, nil
}

// openRecord finds the record a clock-out closes: today's, or yesterday's open overnight shift.
func (a *AttendanceServiceImpl) openRecord(ctx context.Context, claims jwt.Claims, today time.Time) (*attendance.Attendance, error) {
	record, err := a.attendanceRepo.GetByEmployeeAndDate(ctx, claims.EmployeeID, today, claims.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get today's attendance: %w", err)
	}

	if record == nil {
		record, err = a.openOvernight(ctx, claims, today)
		if err != nil {
			return nil, err
		}
	}

	if record == nil || record.ClockIn == nil {
		return nil, attendance.ErrNotCheckedIn
	}
	if record.ClockOut != nil {
		return nil, attendance.ErrAlreadyCheckedOut
	}
	return record, nil
}

func (a *AttendanceServiceImpl) openOvernight(ctx context.Context, claims jwt.Claims, today time.Time) (*attendance.Attendance, error) {
	yesterday, err := a.attendanceRepo.GetByEmployeeAndDate(ctx, claims.EmployeeID, today.AddDate(0, 0, -1), claims.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get yesterday's attendance: %w", err)
	}
	if yesterday == nil || !yesterday.Shift().Overnight() || yesterday.ClockOut != nil {
		return nil, nil
	}
	return yesterday, nil
}

// location resolves the employee's branch timezone, falling back to the configured default.
func (a *AttendanceServiceImpl) location(ctx context.Context, claims jwt.Claims) *time.Location {
	name, err := a.scheduleRepo.GetTimezoneByEmployeeID(ctx, claims.EmployeeID, claims.CompanyID)
	if err != nil {
		if !errors.Is(err, schedule.ErrTimezoneNotFound) {
			slog.Warn("failed to get employee timezone, using default", "employee_id", claims.EmployeeID, "error", err)
		}
		return a.defaultLoc
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("invalid branch timezone, using default", "employee_id", claims.EmployeeID, "timezone", name, "error", err)
		return a.defaultLoc
	}
	return loc
}

func (a *AttendanceServiceImpl) acquire(ctx context.Context, employeeID string, day time.Time, action attendance.Action) (func(), error) {
	key := lock.Key("attendance", employeeID, day.Format(dateLayout), string(action))

	release, err := a.locker.TryLock(ctx, key, a.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, attendance.ErrClockInProgress
		}
		return nil, fmt.Errorf("failed to lock attendance: %w", err)
	}

	return func() {
		// The request context may already be done; the release must still reach the store.
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release attendance lock", "key", key, "error", err)
		}
	}, nil
}

func (a *AttendanceServiceImpl) discardProof(ctx context.Context, path string) {
	if err := a.fileService.DeleteFile(context.WithoutCancel(ctx), path); err != nil {
		slog.Warn("failed to delete orphaned attendance proof", "path", path, "error", err)
	}
}

// respond renders the record with public proof URLs and notifies the employee's other sessions.
func (a *AttendanceServiceImpl) respond(ctx context.Context, record attendance.Attendance) attendance.AttendanceResponse {
	resp := attendance.NewAttendanceResponse(record)
	resp.ClockInProofURL = a.publicURL(ctx, resp.ClockInProofURL)
	resp.ClockOutProofURL = a.publicURL(ctx, resp.ClockOutProofURL)

	if a.events != nil {
		a.events.Publish(record.EmployeeID, sse.Event{
			Event: EventAttendanceUpdated,
			Data:  record.Today(),
		})
	}
	return resp
}

func (a *AttendanceServiceImpl) publicURL(ctx context.Context, path *string) *string {
	if path == nil {
		return nil
	}
	url, err := a.fileService.GetFileURL(ctx, *path, 0)
	if err != nil {
		slog.Warn("failed to build proof url", "path", *path, "error", err)
		return path
	}
	return &url
}

// checkGeofence requires the coordinate to fall inside one of the schedule's locations
// unless the arrangement is work-from-anywhere.
func checkGeofence(active *schedule.ActiveSchedule, c attendance.GeoCoordinate) error {
	if !active.RequiresGeofence() {
		return nil
	}
	for _, office := range active.Locations {
		if utils.WithinRadius(c.Latitude, c.Longitude, office.Latitude, office.Longitude, office.RadiusMeters) {
			return nil
		}
	}
	return attendance.ErrOutsideAllowedRadius
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
