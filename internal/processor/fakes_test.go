package processor_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendsync/internal/models"
)

// fakeMappings 内存映射表
type fakeMappings struct {
	mappings map[string]string // deviceID|enrollID -> staffID
	err      error
}

func newFakeMappings() *fakeMappings {
	return &fakeMappings{mappings: make(map[string]string)}
}

func (f *fakeMappings) add(deviceID, enrollID, staffID string) {
	f.mappings[deviceID+"|"+enrollID] = staffID
}

func (f *fakeMappings) GetActiveMapping(ctx context.Context, deviceID, enrollID string) (*models.DeviceMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	staffID, ok := f.mappings[deviceID+"|"+enrollID]
	if !ok {
		return nil, nil
	}
	return &models.DeviceMapping{
		DeviceID: deviceID,
		EnrollID: enrollID,
		StaffID:  staffID,
		Active:   true,
	}, nil
}

// fakeEventStore 内存事件表（按 (device,enroll,scanned_at) 去重，模拟 ON CONFLICT DO NOTHING）
type fakeEventStore struct {
	events    []models.RawScanEvent
	insertErr error
	seq       int
}

func (f *fakeEventStore) InsertEvent(ctx context.Context, event *models.RawScanEvent) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, e := range f.events {
		if e.DeviceID == event.DeviceID && e.EnrollID == event.EnrollID && e.ScannedAt.Equal(event.ScannedAt) {
			return nil
		}
	}
	f.seq++
	event.ID = fmt.Sprintf("e-%d", f.seq)
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeEventStore) HasRecentEventOfType(ctx context.Context, staffID, date, eventType string, since, until time.Time) (bool, error) {
	for _, e := range f.events {
		if e.StaffID == nil || *e.StaffID != staffID {
			continue
		}
		if e.Date != date || e.Type != eventType {
			continue
		}
		if !e.ScannedAt.Before(since) && !e.ScannedAt.After(until) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEventStore) byType(eventType string) []models.RawScanEvent {
	var out []models.RawScanEvent
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// fakeAttendance 内存考勤表
type fakeAttendance struct {
	shifts    map[string]*string                  // staffID -> shiftID
	records   map[string]*models.AttendanceRecord // staffID|date -> record
	mutations int
	writeErr  error
}

func newFakeAttendance() *fakeAttendance {
	return &fakeAttendance{
		shifts:  make(map[string]*string),
		records: make(map[string]*models.AttendanceRecord),
	}
}

func (f *fakeAttendance) GetStaffShiftID(ctx context.Context, staffID string) (*string, error) {
	return f.shifts[staffID], nil
}

func (f *fakeAttendance) FindForDate(ctx context.Context, staffID, date string, shiftID *string) (*models.AttendanceRecord, error) {
	if rec, ok := f.records[staffID+"|"+date]; ok {
		return rec, nil
	}
	return nil, nil
}

func (f *fakeAttendance) InsertWithClockIn(ctx context.Context, staffID, date string, shiftID *string, clockIn string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mutations++
	ci := clockIn
	f.records[staffID+"|"+date] = &models.AttendanceRecord{
		ID:      "a-" + staffID + "-" + date,
		StaffID: staffID,
		Date:    date,
		ShiftID: shiftID,
		ClockIn: &ci,
		Status:  "present",
	}
	return nil
}

func (f *fakeAttendance) SetClockIn(ctx context.Context, recordID, clockIn string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mutations++
	for _, rec := range f.records {
		if rec.ID == recordID && rec.ClockIn == nil {
			ci := clockIn
			rec.ClockIn = &ci
		}
	}
	return nil
}

func (f *fakeAttendance) SetClockOut(ctx context.Context, recordID, clockOut string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mutations++
	for _, rec := range f.records {
		if rec.ID == recordID && rec.ClockOut == nil {
			co := clockOut
			rec.ClockOut = &co
		}
	}
	return nil
}

// fakePublisher 记录发布的事件
type fakePublisher struct {
	published []models.RawScanEvent
	err       error
}

func (f *fakePublisher) PublishScanEvent(ctx context.Context, event *models.RawScanEvent) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, *event)
	return nil
}

var errStorage = errors.New("storage down")
