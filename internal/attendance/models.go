package attendance

import "time"

// Attendance statuses. Present is what the scan finalizer writes;
// late and absent come from manual edits.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
)

// Student is one enrolled student
type Student struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	Name       string `json:"name"`
	RollNumber string `json:"roll_number"`
	GroupID    int64  `gorm:"index" json:"group_id"`
}

// StudentGroup is a named group of students (a class section)
type StudentGroup struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	GroupName string `json:"group_name"`
}

// Schedule is one scheduled lecture
type Schedule struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	CourseName string    `json:"course_name"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
}

// ScheduleGroup links a schedule to the student groups it covers. The
// linked group ids form the roster scope sent to the recognition
// service at connect time.
type ScheduleGroup struct {
	ID             int64 `gorm:"primaryKey" json:"id"`
	ScheduleID     int64 `gorm:"index" json:"schedule_id"`
	StudentGroupID int64 `json:"student_group_id"`
}

// AttendanceRecord is one persisted attendance entry. The unique index
// over (student_id, date, schedule_id) is what makes submission
// idempotent: resubmitting the same roster upserts instead of
// duplicating.
type AttendanceRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	StudentID  int64     `gorm:"uniqueIndex:idx_attendance_key" json:"student_id"`
	Date       string    `gorm:"uniqueIndex:idx_attendance_key" json:"date"` // ISO-8601 calendar date
	ScheduleID int64     `gorm:"uniqueIndex:idx_attendance_key" json:"schedule_id"`
	Status     string    `json:"status"`
	MarkedAt   time.Time `json:"marked_at"`
}

// StudentStatus pairs a student with their effective status for a day
// (absent when no record exists)
type StudentStatus struct {
	Student Student
	Status  string
}
