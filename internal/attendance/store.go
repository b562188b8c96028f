// Package attendance persists scan results. It is the terminal consumer
// of a session's match roster: the finalizer turns matched students
// into present-status records with upsert semantics, so resubmitting
// after a failure can never duplicate rows. It also backs the schedule
// listing and manual status overrides.
package attendance

import (
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

// DateFormat is the ISO-8601 calendar-date layout used for record keys
const DateFormat = "2006-01-02"

// Store wraps the attendance database
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database and migrates the schema
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open attendance database: %w", err)
	}

	if err := db.AutoMigrate(
		&Student{},
		&StudentGroup{},
		&Schedule{},
		&ScheduleGroup{},
		&AttendanceRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// DB exposes the underlying handle for seeding in tools and tests
func (s *Store) DB() *gorm.DB {
	return s.db
}

// CreateSchedule registers a lecture and links it to the student groups
// it covers. Runs in one transaction so a schedule can never exist
// without its roster scope.
func (s *Store) CreateSchedule(courseName string, startsAt, endsAt time.Time, groupIDs []int64) (*Schedule, error) {
	if courseName == "" {
		return nil, fmt.Errorf("course name is required")
	}
	if !endsAt.After(startsAt) {
		return nil, fmt.Errorf("schedule must end after it starts")
	}
	if len(groupIDs) == 0 {
		return nil, fmt.Errorf("at least one student group is required")
	}

	sched := &Schedule{
		CourseName: courseName,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sched).Error; err != nil {
			return err
		}
		links := make([]ScheduleGroup, 0, len(groupIDs))
		for _, gid := range groupIDs {
			links = append(links, ScheduleGroup{
				ScheduleID:     sched.ID,
				StudentGroupID: gid,
			})
		}
		return tx.Create(&links).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	slog.Info("schedule created",
		"schedule_id", sched.ID,
		"course", courseName,
		"groups", groupIDs,
	)
	return sched, nil
}

// TodaySchedules lists lectures scheduled for the given day
func (s *Store) TodaySchedules(now time.Time) ([]Schedule, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var schedules []Schedule
	err := s.db.
		Where("starts_at >= ? AND starts_at < ?", dayStart, dayEnd).
		Order("starts_at").
		Find(&schedules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	return schedules, nil
}

// GroupIDs returns the roster scope for a schedule: the ids of all
// student groups linked to it. An empty result is returned as an empty
// slice; whether to scan anyway is the caller's policy.
func (s *Store) GroupIDs(scheduleID int64) ([]int64, error) {
	var ids []int64
	err := s.db.Model(&ScheduleGroup{}).
		Where("schedule_id = ?", scheduleID).
		Pluck("student_group_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load group ids: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// SubmitRoster finalizes a scan: every matched student gets a
// present-status record for the schedule and calendar date, upserted on
// (student_id, date, schedule_id). Safe to retry after a failure.
func (s *Store) SubmitRoster(scheduleID int64, roster []types.MatchedStudent, now time.Time) error {
	if len(roster) == 0 {
		return nil
	}

	date := now.Format(DateFormat)
	records := make([]AttendanceRecord, 0, len(roster))
	for _, student := range roster {
		records = append(records, AttendanceRecord{
			StudentID:  student.ID,
			Date:       date,
			ScheduleID: scheduleID,
			Status:     StatusPresent,
			MarkedAt:   now,
		})
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "student_id"},
			{Name: "date"},
			{Name: "schedule_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"status", "marked_at"}),
	}).Create(&records).Error
	if err != nil {
		return fmt.Errorf("failed to submit roster: %w", err)
	}

	slog.Info("attendance submitted",
		"schedule_id", scheduleID,
		"date", date,
		"records", len(records),
	)
	return nil
}

// SetStatus manually overrides one student's status for a schedule and
// date. Same upsert key as SubmitRoster, so manual edits and scan
// results converge on the same record.
func (s *Store) SetStatus(studentID, scheduleID int64, date string, status string) error {
	switch status {
	case StatusPresent, StatusLate, StatusAbsent:
	default:
		return fmt.Errorf("invalid status %q", status)
	}

	record := AttendanceRecord{
		StudentID:  studentID,
		Date:       date,
		ScheduleID: scheduleID,
		Status:     status,
		MarkedAt:   time.Now(),
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "student_id"},
			{Name: "date"},
			{Name: "schedule_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"status", "marked_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

// DayRoster merges the schedule's students with any existing records
// for the date. Students without a record default to absent.
func (s *Store) DayRoster(scheduleID int64, date string) ([]StudentStatus, error) {
	groupIDs, err := s.GroupIDs(scheduleID)
	if err != nil {
		return nil, err
	}

	var students []Student
	if err := s.db.Where("group_id IN ?", groupIDs).Order("roll_number").Find(&students).Error; err != nil {
		return nil, fmt.Errorf("failed to load students: %w", err)
	}

	var records []AttendanceRecord
	err = s.db.
		Where("schedule_id = ? AND date = ?", scheduleID, date).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance records: %w", err)
	}

	statusByStudent := make(map[int64]string, len(records))
	for _, rec := range records {
		statusByStudent[rec.StudentID] = rec.Status
	}

	out := make([]StudentStatus, 0, len(students))
	for _, student := range students {
		status, ok := statusByStudent[student.ID]
		if !ok {
			status = StatusAbsent
		}
		out = append(out, StudentStatus{Student: student, Status: status})
	}
	return out, nil
}
