package postgresql_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/database"
	"github.com/stretchr/testify/require"
)

// newTestDB connects to TEST_DATABASE_URL, applies the schema and empties the tables.
// Tests are skipped when no database is configured.
func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := database.NewPostgreSQLDB(ctx, dsn, database.PoolOptions{MaxConns: 4, MinConns: 1})
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, applySchema(ctx, db))
	require.NoError(t, truncateAll(ctx, db))
	return db
}

func applySchema(ctx context.Context, db *database.DB) error {
	_, file, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(file), "..", "..", "..", "..", "migrations", "000001_attendance.up.sql")

	schema, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	_, err = db.Exec(ctx, string(schema))
	return err
}

func truncateAll(ctx context.Context, db *database.DB) error {
	tables := []string{
		"attendances",
		"employee_schedule_assignments",
		"employees",
		"work_schedule_locations",
		"work_schedule_times",
		"work_schedules",
		"branches",
	}
	for _, table := range tables {
		if _, err := db.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			return fmt.Errorf("failed to truncate table %s: %w", table, err)
		}
	}
	return nil
}

type fixture struct {
	CompanyID  string
	EmployeeID string
	ScheduleID string
	TimeID     string
}

// seedEmployee creates a WFO employee with a Monday 09:00-17:00 shift, 10 minutes
// tolerance, and one 100 m geofence.
func seedEmployee(t *testing.T, db *database.DB) fixture {
	t.Helper()
	ctx := context.Background()
	var f fixture

	require.NoError(t, db.QueryRow(ctx, `SELECT gen_random_uuid()`).Scan(&f.CompanyID))

	var branchID string
	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO branches (company_id, name, timezone) VALUES ($1, 'HQ', 'Asia/Jakarta') RETURNING id
	`, f.CompanyID).Scan(&branchID))

	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO work_schedules (company_id, name, type, grace_period_minutes)
		VALUES ($1, 'Office Hours', 'WFO', 10) RETURNING id
	`, f.CompanyID).Scan(&f.ScheduleID))

	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO work_schedule_times (work_schedule_id, day_of_week, clock_in_time, clock_out_time)
		VALUES ($1, 1, '09:00', '17:00') RETURNING id
	`, f.ScheduleID).Scan(&f.TimeID))

	_, err := db.Exec(ctx, `
		INSERT INTO work_schedule_locations (work_schedule_id, location_name, latitude, longitude, radius_meters)
		VALUES ($1, 'HQ', -6.2, 106.816666, 100)
	`, f.ScheduleID)
	require.NoError(t, err)

	require.NoError(t, db.QueryRow(ctx, `
		INSERT INTO employees (company_id, branch_id, work_schedule_id) VALUES ($1, $2, $3) RETURNING id
	`, f.CompanyID, branchID, f.ScheduleID).Scan(&f.EmployeeID))

	return f
}
