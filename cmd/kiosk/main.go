package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/client/hris"
	"github.com/cmlabs-hris/hris-attendance-go/internal/config"
	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/capture"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/geolocation"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/session"
	"github.com/cmlabs-hris/hris-attendance-go/internal/engine/submission"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/shift"
)

// gateTimeout bounds how long the kiosk waits for a face before giving up.
const gateTimeout = 20 * time.Second

func main() {
	action := flag.String("action", string(attendance.ActionClockIn), "clock-in or clock-out")
	lat := flag.Float64("lat", 0, "latitude, overrides KIOSK_LATITUDE")
	lon := flag.Float64("lon", 0, "longitude, overrides KIOSK_LONGITUDE")
	image := flag.String("image", "", "camera snapshot path, overrides CAMERA_SOURCE")
	status := flag.Bool("status", false, "print today's schedule and attendance, then exit")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.LoadKiosk()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}
	if *lat != 0 || *lon != 0 {
		cfg.Latitude, cfg.Longitude = *lat, *lon
	}
	if *image != "" {
		cfg.CameraSource = *image
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid config:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := hris.New(cfg.BaseURL, hris.StaticToken(cfg.AccessToken), cfg.Timeout)
	sess := newSession(cfg, client)

	if *status {
		if err := printStatus(ctx, sess); err != nil {
			fail(err)
		}
		return
	}

	res, err := run(ctx, sess, attendance.Action(*action))
	if err != nil {
		fail(err)
	}

	fmt.Println(res.Message)
	if today := res.Today; today != nil {
		printToday(today)
	}
}

func newSession(cfg *config.KioskConfig, client *hris.Client) *session.Session {
	locatorOpts := []geolocation.Option{geolocation.WithTimeout(cfg.GeoTimeout)}
	if cfg.GeocoderURL != "" {
		locatorOpts = append(locatorOpts, geolocation.WithGeocoder(&geolocation.NominatimGeocoder{
			BaseURL:   cfg.GeocoderURL,
			UserAgent: "hris-attendance-kiosk",
		}))
	}
	locator := geolocation.New(geolocation.StaticPositioner{
		Coordinate: attendance.GeoCoordinate{Latitude: cfg.Latitude, Longitude: cfg.Longitude},
	}, locatorOpts...)

	constraints := capture.DefaultConstraints()
	constraints.Width, constraints.Height = cfg.CameraWidth, cfg.CameraHeight
	camera := capture.NewController(capture.FileCamera{Path: cfg.CameraSource},
		capture.WithDetector(newDetector(cfg)),
		capture.WithFrameClock(capture.IntervalClock(cfg.FrameInterval)),
		capture.WithConstraints(constraints),
		capture.WithMirror(cfg.CameraMirror),
	)

	return session.New(locator, camera, submission.NewCoordinator(client), client,
		session.WithPolicy(shift.Policy{PreWindow: cfg.PreWindow}),
	)
}

// run drives one attempt: start, wait for the face gate, capture, submit.
func run(ctx context.Context, sess *session.Session, action attendance.Action) (*submission.Result, error) {
	defer sess.Reset()

	if err := sess.Start(ctx, action); err != nil {
		return nil, err
	}

	if err := waitForGate(ctx, sess); err != nil {
		return nil, err
	}
	if err := sess.Capture(); err != nil {
		return nil, err
	}

	return sess.Submit(ctx)
}

func waitForGate(ctx context.Context, sess *session.Session) error {
	ctx, cancel := context.WithTimeout(ctx, gateTimeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		gate := sess.Snapshot().Capture.Gate
		if gate.Ready && gate.Detected {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return errors.New("no face detected in the camera frame")
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printStatus(ctx context.Context, sess *session.Session) error {
	if err := sess.Load(ctx); err != nil {
		return err
	}
	snap := sess.Snapshot()

	if snap.Schedule == nil {
		fmt.Println("No schedule today")
	} else {
		fmt.Printf("Shift %s-%s (tolerance %d min)\n",
			snap.Schedule.Shift.StartTime, snap.Schedule.Shift.EndTime, snap.Schedule.Shift.ToleranceMinutes)
		fmt.Printf("Can clock in now: %t\n", snap.Eligibility.CanClockInNow)
		if snap.Eligibility.MinutesUntilClockIn != nil {
			fmt.Printf("Clock-in opens in %d min\n", *snap.Eligibility.MinutesUntilClockIn)
		}
	}
	if snap.Today != nil {
		printToday(snap.Today)
	}
	return nil
}

func printToday(today *attendance.TodayAttendance) {
	if today.ClockIn != nil {
		fmt.Printf("Clock in:  %s (%s, late %d min)\n", today.ClockIn.Format(time.Kitchen), today.ClockInStatus, today.LateMinutes)
	}
	if today.ClockOut != nil && today.ClockOutStatus != nil {
		fmt.Printf("Clock out: %s (%s, early %d min)\n", today.ClockOut.Format(time.Kitchen), *today.ClockOutStatus, today.EarlyLeaveMinutes)
	}
	if today.WorkMinutes != nil {
		fmt.Printf("Worked:    %dh%02dm\n", *today.WorkMinutes/60, *today.WorkMinutes%60)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, attendance.UserMessage(err))
	slog.Debug("kiosk run failed", "error", err)
	os.Exit(1)
}
