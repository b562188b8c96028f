package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/keshav-25byte/AttendanceApp/internal/attendance"
	"github.com/keshav-25byte/AttendanceApp/internal/camera"
	"github.com/keshav-25byte/AttendanceApp/internal/config"
	"github.com/keshav-25byte/AttendanceApp/internal/emitter"
	"github.com/keshav-25byte/AttendanceApp/internal/encode"
	"github.com/keshav-25byte/AttendanceApp/internal/eventbus"
	"github.com/keshav-25byte/AttendanceApp/internal/session"
)

const defaultConfigPath = "config/attendscan.yaml"

// submitRetries bounds finalizer retry attempts before the roster is
// dumped to disk for manual recovery
const submitRetries = 3

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	scheduleID := flag.Int64("schedule", 0, "Schedule id (scan, roster, mark)")
	studentID := flag.Int64("student", 0, "Student id (mark)")
	status := flag.String("status", "", "Status: present, late or absent (mark)")
	date := flag.String("date", "", "Calendar date YYYY-MM-DD, defaults to today (roster, mark, addclass)")
	course := flag.String("course", "", "Course name (addclass)")
	groups := flag.String("groups", "", "Comma-separated student group ids (addclass)")
	start := flag.String("start", "", "Start time HH:MM (addclass)")
	end := flag.String("end", "", "End time HH:MM (addclass)")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := attendance.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open attendance store", "error", err)
		os.Exit(1)
	}

	if *date == "" {
		*date = time.Now().Format(attendance.DateFormat)
	}

	var cmdErr error
	switch flag.Arg(0) {
	case "schedules":
		cmdErr = listSchedules(store)
	case "scan":
		cmdErr = runScan(cfg, store, *scheduleID)
	case "roster":
		cmdErr = showRoster(store, *scheduleID, *date)
	case "mark":
		cmdErr = mark(store, *studentID, *scheduleID, *date, *status)
	case "addclass":
		cmdErr = addClass(store, *course, *groups, *date, *start, *end)
	default:
		fmt.Fprintf(os.Stderr, "usage: attendscan [flags] {schedules|scan|roster|mark|addclass}\n")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if cmdErr != nil {
		slog.Error("command failed", "command", flag.Arg(0), "error", cmdErr)
		os.Exit(1)
	}
}

// listSchedules prints today's lectures
func listSchedules(store *attendance.Store) error {
	schedules, err := store.TodaySchedules(time.Now())
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		fmt.Println("no lectures scheduled today")
		return nil
	}
	for _, sched := range schedules {
		groupIDs, err := store.GroupIDs(sched.ID)
		if err != nil {
			return err
		}
		fmt.Printf("%d  %s  %s - %s  groups=%v\n",
			sched.ID,
			sched.CourseName,
			sched.StartsAt.Format("15:04"),
			sched.EndsAt.Format("15:04"),
			groupIDs,
		)
	}
	return nil
}

// runScan runs one live capture session and submits the roster
func runScan(cfg *config.Config, store *attendance.Store, scheduleID int64) error {
	if scheduleID == 0 {
		return fmt.Errorf("-schedule is required")
	}

	groupIDs, err := store.GroupIDs(scheduleID)
	if err != nil {
		return err
	}
	if len(groupIDs) == 0 {
		// the server accepts an empty scope; it just won't match anyone
		slog.Warn("schedule has no student groups, scanning anyway", "schedule_id", scheduleID)
	}

	source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	defer bus.Close()

	consoleCh := make(chan eventbus.Event, 64)
	if err := bus.Subscribe("console", consoleCh); err != nil {
		return err
	}
	go printEvents(consoleCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exporter := emitter.New(cfg)
	if exporter != nil {
		if err := exporter.Connect(ctx); err != nil {
			// event export is best-effort; scanning works without it
			slog.Warn("mqtt exporter unavailable", "error", err)
		} else {
			exportCh := make(chan eventbus.Event, 64)
			if err := bus.Subscribe("mqtt", exportCh); err != nil {
				return err
			}
			go exporter.Run(ctx, exportCh)
			defer exporter.Disconnect()
		}
	}

	sess, err := session.New(session.Config{
		ServerURL:       cfg.Server.URL,
		GroupIDs:        groupIDs,
		CaptureInterval: cfg.CaptureInterval(),
		ConnectTimeout:  cfg.ConnectTimeout(),
		FrameAckTimeout: cfg.FrameAckTimeout(),
		Source:          source,
		Encoder:         encode.New(cfg.Capture.TargetWidth, cfg.Capture.JPEGQuality),
		Bus:             bus,
	})
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("received signal, stopping scan", "signal", sig)
		cancel()
	}()

	slog.Info("starting scan",
		"session_id", sess.ID(),
		"schedule_id", scheduleID,
		"group_ids", groupIDs,
		"server", cfg.Server.URL,
	)

	runErr := sess.Run(ctx)
	if runErr != nil {
		slog.Error("scan ended with error", "error", runErr)
	}

	// scanning has stopped; the roster is stable from here on
	roster := sess.Roster().Students()
	fmt.Printf("\nmatched %d student(s)\n", len(roster))
	for _, student := range roster {
		fmt.Printf("  %s (%s)\n", student.Name, student.RollNumber)
	}

	if len(roster) == 0 {
		return runErr
	}

	now := time.Now()
	for attempt := 1; attempt <= submitRetries; attempt++ {
		err = store.SubmitRoster(scheduleID, roster, now)
		if err == nil {
			fmt.Println("attendance submitted")
			return runErr
		}
		slog.Warn("attendance submission failed",
			"attempt", attempt,
			"error", err,
		)
		time.Sleep(time.Duration(attempt) * time.Second)
	}

	// never discard a roster: dump it so it can be resubmitted later
	dumpPath := fmt.Sprintf("roster-%d-%s.json", scheduleID, now.Format("20060102-150405"))
	if data, mErr := json.MarshalIndent(roster, "", "  "); mErr == nil {
		if wErr := os.WriteFile(dumpPath, data, 0o644); wErr == nil {
			slog.Error("submission failed, roster saved for retry", "path", dumpPath)
		}
	}
	return fmt.Errorf("failed to submit attendance after %d attempts: %w", submitRetries, err)
}

// buildSource creates the configured camera source
func buildSource(cfg *config.Config) (camera.Source, error) {
	width, height := config.ParseResolution(cfg.Camera.Resolution)
	if cfg.Camera.Mock {
		return camera.NewMockSource(width, height, cfg.Camera.FPS), nil
	}
	return camera.NewGstSource(camera.GstConfig{
		Device: cfg.Camera.Device,
		Width:  width,
		Height: height,
		FPS:    cfg.Camera.FPS,
	})
}

// printEvents renders the session activity feed
func printEvents(events <-chan eventbus.Event) {
	for ev := range events {
		ts := ev.At.Format("15:04:05")
		switch ev.Kind {
		case eventbus.KindState:
			fmt.Printf("[%s] state: %s\n", ts, ev.State)
		case eventbus.KindLog:
			fmt.Printf("[%s] %s\n", ts, ev.Message)
		case eventbus.KindMatch:
			fmt.Printf("[%s] MATCH %s (%s)\n", ts, ev.Student.Name, ev.Student.RollNumber)
		case eventbus.KindDetections:
			// per-frame overlay churn is debug-level noise on a console
			slog.Debug("detections", "boxes", len(ev.Boxes))
		case eventbus.KindError:
			fmt.Printf("[%s] ERROR %s\n", ts, ev.Err)
		}
	}
}

// showRoster prints the merged day roster for a schedule
func showRoster(store *attendance.Store, scheduleID int64, date string) error {
	if scheduleID == 0 {
		return fmt.Errorf("-schedule is required")
	}
	roster, err := store.DayRoster(scheduleID, date)
	if err != nil {
		return err
	}
	for _, entry := range roster {
		fmt.Printf("%-6d %-10s %-24s %s\n",
			entry.Student.ID,
			entry.Student.RollNumber,
			entry.Student.Name,
			entry.Status,
		)
	}
	return nil
}

// addClass registers an extra lecture for a date with its group scope
func addClass(store *attendance.Store, course, groups, date, start, end string) error {
	if course == "" || groups == "" || start == "" || end == "" {
		return fmt.Errorf("-course, -groups, -start and -end are required")
	}

	groupIDs, err := parseGroupIDs(groups)
	if err != nil {
		return err
	}
	day, err := time.ParseInLocation(attendance.DateFormat, date, time.Local)
	if err != nil {
		return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", date)
	}
	startsAt, err := parseClock(day, start)
	if err != nil {
		return err
	}
	endsAt, err := parseClock(day, end)
	if err != nil {
		return err
	}

	sched, err := store.CreateSchedule(course, startsAt, endsAt, groupIDs)
	if err != nil {
		return err
	}
	fmt.Printf("created schedule %d: %s %s - %s groups=%v\n",
		sched.ID,
		sched.CourseName,
		sched.StartsAt.Format("15:04"),
		sched.EndsAt.Format("15:04"),
		groupIDs,
	)
	return nil
}

// parseClock combines a calendar day with an HH:MM time of day
func parseClock(day time.Time, hm string) (time.Time, error) {
	t, err := time.Parse("15:04", hm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want HH:MM)", hm)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

// parseGroupIDs parses a comma-separated id list
func parseGroupIDs(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid group id %q", p)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no group ids given")
	}
	return ids, nil
}

// mark manually overrides one student's status
func mark(store *attendance.Store, studentID, scheduleID int64, date, status string) error {
	if studentID == 0 || scheduleID == 0 || status == "" {
		return fmt.Errorf("-student, -schedule and -status are required")
	}
	if err := store.SetStatus(studentID, scheduleID, date, status); err != nil {
		return err
	}
	fmt.Printf("marked student %d %s for schedule %d on %s\n", studentID, status, scheduleID, date)
	return nil
}
