package model

import "strings"

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Session represents one geofenced attendance session opened by a lecturer.
type Session struct {
	ID           string   `json:"id"`
	LecturerID   string   `json:"lecturer_id"`
	CourseID     string   `json:"course_id"`
	DepartmentID string   `json:"department_id"`
	Level        string   `json:"level"`
	SessionKey   string   `json:"session_key"` // 6 upper-case alphanumerics
	StartTime    int64    `json:"start_time"`  // epoch millis
	EndTime      int64    `json:"end_time,omitempty"`
	Location     Location `json:"location"`
	Radius       float64  `json:"radius"` // meters
	Active       bool     `json:"active"`
}

// AttendanceRecord is one accepted presence proof. Immutable after creation
// except for the face image reference filled in by the worker.
type AttendanceRecord struct {
	ID          string   `json:"id"`
	SessionID   string   `json:"session_id"`
	StudentName string   `json:"student_name"`
	MatricNo    string   `json:"matric_no"` // stored upper-case
	Department  string   `json:"department"`
	Timestamp   int64    `json:"timestamp"` // epoch millis
	FaceImage   string   `json:"face_image,omitempty"`
	Location    Location `json:"location"`
}

// DeviceLock binds the first student identity that submitted from a client
// to that client for the rest of the session.
type DeviceLock struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id"`
	MatricNo  string `json:"matric_no"`
}

// StudentStats is the derived per-student eligibility row. Never stored.
type StudentStats struct {
	MatricNo         string  `json:"matric_no"`
	Name             string  `json:"name"`
	SessionsAttended int     `json:"sessions_attended"`
	TotalSessions    int     `json:"total_sessions"`
	Percentage       float64 `json:"percentage"`
	Eligible         bool    `json:"eligible"`
}

// EligibilityThreshold is the attendance percentage gating exam participation.
const EligibilityThreshold = 75.0

// NormalizeMatric upper-cases a matric number for storage and comparison.
func NormalizeMatric(matric string) string {
	return strings.ToUpper(strings.TrimSpace(matric))
}
