package attendance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshav-25byte/AttendanceApp/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "attendance.db"))
	require.NoError(t, err)
	return store
}

// seedClass creates a schedule with two groups of students
func seedClass(t *testing.T, store *Store) {
	t.Helper()
	db := store.DB()

	require.NoError(t, db.Create(&[]StudentGroup{
		{ID: 7, GroupName: "CS-A"},
		{ID: 9, GroupName: "CS-B"},
	}).Error)

	require.NoError(t, db.Create(&[]Student{
		{ID: 1, Name: "Asha Verma", RollNumber: "21CS001", GroupID: 7},
		{ID: 3, Name: "Rohan Mehta", RollNumber: "21CS003", GroupID: 7},
		{ID: 5, Name: "Priya Nair", RollNumber: "21CS005", GroupID: 9},
	}).Error)

	starts := time.Date(2026, 9, 1, 9, 0, 0, 0, time.Local)
	require.NoError(t, db.Create(&Schedule{
		ID: 100, CourseName: "Distributed Systems",
		StartsAt: starts, EndsAt: starts.Add(time.Hour),
	}).Error)

	require.NoError(t, db.Create(&[]ScheduleGroup{
		{ScheduleID: 100, StudentGroupID: 7},
		{ScheduleID: 100, StudentGroupID: 9},
	}).Error)
}

func TestCreateSchedule(t *testing.T) {
	store := openTestStore(t)

	starts := time.Date(2026, 9, 1, 14, 0, 0, 0, time.Local)
	sched, err := store.CreateSchedule("Extra: Compilers", starts, starts.Add(time.Hour), []int64{7, 9})
	require.NoError(t, err)
	require.NotZero(t, sched.ID)

	// the new lecture is scannable: scope resolves and the day lists it
	ids, err := store.GroupIDs(sched.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{7, 9}, ids)

	schedules, err := store.TodaySchedules(starts)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "Extra: Compilers", schedules[0].CourseName)
}

func TestCreateScheduleRejects(t *testing.T) {
	store := openTestStore(t)
	starts := time.Date(2026, 9, 1, 14, 0, 0, 0, time.Local)

	_, err := store.CreateSchedule("", starts, starts.Add(time.Hour), []int64{7})
	assert.Error(t, err)

	_, err = store.CreateSchedule("Compilers", starts, starts, []int64{7})
	assert.Error(t, err)

	_, err = store.CreateSchedule("Compilers", starts, starts.Add(time.Hour), nil)
	assert.Error(t, err)

	var count int64
	require.NoError(t, store.DB().Model(&Schedule{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGroupIDs(t *testing.T) {
	store := openTestStore(t)
	seedClass(t, store)

	ids, err := store.GroupIDs(100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{7, 9}, ids)

	// unknown schedule yields an empty, non-nil scope
	ids, err = store.GroupIDs(999)
	require.NoError(t, err)
	assert.NotNil(t, ids)
	assert.Empty(t, ids)
}

func TestTodaySchedules(t *testing.T) {
	store := openTestStore(t)
	seedClass(t, store)

	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.Local)
	schedules, err := store.TodaySchedules(now)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	assert.Equal(t, "Distributed Systems", schedules[0].CourseName)

	// the next day sees nothing
	schedules, err = store.TodaySchedules(now.Add(24 * time.Hour))
	require.NoError(t, err)
	assert.Empty(t, schedules)
}

func TestSubmitRosterIdempotent(t *testing.T) {
	store := openTestStore(t)
	seedClass(t, store)

	roster := []types.MatchedStudent{
		{ID: 1, Name: "Asha Verma", RollNumber: "21CS001"},
		{ID: 3, Name: "Rohan Mehta", RollNumber: "21CS003"},
	}
	now := time.Date(2026, 9, 1, 9, 30, 0, 0, time.Local)

	require.NoError(t, store.SubmitRoster(100, roster, now))
	// retry after a simulated failure must not duplicate rows
	require.NoError(t, store.SubmitRoster(100, roster, now.Add(time.Minute)))

	var count int64
	require.NoError(t, store.DB().Model(&AttendanceRecord{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var rec AttendanceRecord
	require.NoError(t, store.DB().
		Where("student_id = ? AND schedule_id = ?", 1, 100).
		First(&rec).Error)
	assert.Equal(t, StatusPresent, rec.Status)
	assert.Equal(t, "2026-09-01", rec.Date)
}

func TestSubmitRosterEmpty(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, store.SubmitRoster(100, nil, time.Now()))

	var count int64
	require.NoError(t, store.DB().Model(&AttendanceRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSetStatusOverride(t *testing.T) {
	store := openTestStore(t)
	seedClass(t, store)

	now := time.Date(2026, 9, 1, 9, 30, 0, 0, time.Local)
	date := now.Format(DateFormat)

	roster := []types.MatchedStudent{{ID: 1, Name: "Asha Verma", RollNumber: "21CS001"}}
	require.NoError(t, store.SubmitRoster(100, roster, now))

	// manual edit converges on the scan's record
	require.NoError(t, store.SetStatus(1, 100, date, StatusLate))

	var count int64
	require.NoError(t, store.DB().Model(&AttendanceRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var rec AttendanceRecord
	require.NoError(t, store.DB().Where("student_id = ?", 1).First(&rec).Error)
	assert.Equal(t, StatusLate, rec.Status)

	// a manual mark can also create the record outright
	require.NoError(t, store.SetStatus(5, 100, date, StatusPresent))

	assert.Error(t, store.SetStatus(1, 100, date, "vanished"))
}

func TestDayRosterDefaultsAbsent(t *testing.T) {
	store := openTestStore(t)
	seedClass(t, store)

	now := time.Date(2026, 9, 1, 9, 30, 0, 0, time.Local)
	date := now.Format(DateFormat)

	roster := []types.MatchedStudent{
		{ID: 1, Name: "Asha Verma", RollNumber: "21CS001"},
		{ID: 5, Name: "Priya Nair", RollNumber: "21CS005"},
	}
	require.NoError(t, store.SubmitRoster(100, roster, now))

	statuses, err := store.DayRoster(100, date)
	require.NoError(t, err)
	require.Len(t, statuses, 3)

	byID := make(map[int64]string, len(statuses))
	for _, st := range statuses {
		byID[st.Student.ID] = st.Status
	}
	assert.Equal(t, StatusPresent, byID[1])
	assert.Equal(t, StatusAbsent, byID[3])
	assert.Equal(t, StatusPresent, byID[5])

	// rows come back in roll-number order
	assert.Equal(t, "21CS001", statuses[0].Student.RollNumber)
	assert.Equal(t, "21CS005", statuses[2].Student.RollNumber)
}
