package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/schedule"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/jwt"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/shift"
)

type scheduleServiceImpl struct {
	scheduleRepo      schedule.ScheduleRepository
	attendanceService attendance.AttendanceService
	policy            shift.Policy
	defaultLoc        *time.Location
	now               func() time.Time
}

func NewScheduleService(scheduleRepo schedule.ScheduleRepository, attendanceService attendance.AttendanceService, policy shift.Policy, defaultLoc *time.Location) schedule.ScheduleService {
	if defaultLoc == nil {
		defaultLoc = time.UTC
	}
	return &scheduleServiceImpl{
		scheduleRepo:      scheduleRepo,
		attendanceService: attendanceService,
		policy:            policy,
		defaultLoc:        defaultLoc,
		now:               time.Now,
	}
}

// GetToday implements schedule.ScheduleService.
func (s *scheduleServiceImpl) GetToday(ctx context.Context) (*schedule.ScheduleForToday, error) {
	claims, ok := jwt.ClaimsFromContext(ctx)
	if !ok {
		return nil, attendance.ErrMissingClaims
	}

	loc := s.defaultLoc
	if name, err := s.scheduleRepo.GetTimezoneByEmployeeID(ctx, claims.EmployeeID, claims.CompanyID); err == nil {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	} else if !errors.Is(err, schedule.ErrTimezoneNotFound) {
		slog.Warn("failed to get employee timezone, using default", "employee_id", claims.EmployeeID, "error", err)
	}

	now := s.now().In(loc)

	_, active, err := shift.ActiveWorkingDay(ctx, s.scheduleRepo, claims.EmployeeID, claims.CompanyID, now)
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}

	today, err := s.attendanceService.GetToday(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get today's attendance: %w", err)
	}

	return s.policy.ScheduleForToday(active, now, today), nil
}
