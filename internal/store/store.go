package store

import (
	"context"
	"errors"

	"attendx/internal/model"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

// SessionStore persists attendance sessions.
type SessionStore interface {
	PutSession(ctx context.Context, s model.Session) error
	GetSession(ctx context.Context, id string) (model.Session, error)
	ListSessions(ctx context.Context) ([]model.Session, error)
	// DeactivateAll clears the active flag on every session without
	// touching end times. Called when a lecturer starts a new session.
	DeactivateAll(ctx context.Context) error
	// EndSession marks a session ended. Ending an already-ended session
	// is a no-op and returns the stored session unchanged.
	EndSession(ctx context.Context, id string, endTime int64) (model.Session, error)
	ResetSessions(ctx context.Context) error
}

// RecordStore persists accepted attendance records.
type RecordStore interface {
	// AppendIfAbsent inserts the record unless one already exists for the
	// same (session, matric) pair. The check and the insert are a single
	// atomic step; it reports whether the record was inserted.
	AppendIfAbsent(ctx context.Context, rec model.AttendanceRecord) (bool, error)
	// FindRecord returns the record for (session, matric) or nil.
	FindRecord(ctx context.Context, sessionID, matricNo string) (*model.AttendanceRecord, error)
	GetRecord(ctx context.Context, id string) (model.AttendanceRecord, error)
	ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error)
	ListRecords(ctx context.Context) ([]model.AttendanceRecord, error)
	// SetFaceImage fills in the face snapshot reference after upload.
	SetFaceImage(ctx context.Context, id, ref string) error
	ResetRecords(ctx context.Context) error
}

// DeviceLockStore binds student identities to submitting clients.
type DeviceLockStore interface {
	// AcquireLock binds matricNo to (session, device) if no binding exists
	// and returns the matric that holds the lock afterwards. First writer
	// wins; acquiring is atomic.
	AcquireLock(ctx context.Context, sessionID, deviceID, matricNo string) (string, error)
	// GetLock returns the bound matric, or ok=false when the device is
	// not locked for this session.
	GetLock(ctx context.Context, sessionID, deviceID string) (matric string, ok bool, err error)
	ResetLocks(ctx context.Context) error
}

// Store bundles the three collaborator stores behind one reset surface.
type Store struct {
	Sessions SessionStore
	Records  RecordStore
	Locks    DeviceLockStore
}

// Reset wipes sessions, records and device locks. Bulk reset is the only
// destructive operation the system supports.
func (s Store) Reset(ctx context.Context) error {
	if err := s.Sessions.ResetSessions(ctx); err != nil {
		return err
	}
	if err := s.Records.ResetRecords(ctx); err != nil {
		return err
	}
	return s.Locks.ResetLocks(ctx)
}
