package attendance

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"attendx/internal/geo"
	"attendx/internal/model"
	"attendx/internal/store"
)

// RadiusSlack is the fixed margin in meters layered on top of the
// lecturer-configured geofence to absorb GPS drift.
const RadiusSlack = 75.0

// Submission is one student attendance attempt against a session.
type Submission struct {
	SessionID  string
	SessionKey string
	Name       string
	MatricNo   string
	Department string
	// DeviceID identifies the submitting client for device binding.
	// Empty skips the binding checks.
	DeviceID string
	// Coords is the position reported by the client. When nil the
	// validator acquires one through its LocationProvider.
	Coords *model.Location
	// FaceImage is the captured snapshot (data URL or blob reference).
	FaceImage string
	// CameraActive says a camera was available, so an empty FaceImage
	// means the capture failed rather than that there was no camera.
	CameraActive bool
}

// Validator decides whether a submission is accepted. The early checks are
// read-only; the device binding and the duplicate-checked append are the
// atomic write steps.
type Validator struct {
	sessions store.SessionStore
	records  store.RecordStore
	locks    store.DeviceLockStore
	notifier *Notifier
	provider LocationProvider
	keyTTL   time.Duration
	now      func() time.Time
}

// NewValidator wires a validator. notifier and provider may be nil.
func NewValidator(s store.Store, notifier *Notifier, provider LocationProvider, keyTTL time.Duration) *Validator {
	if keyTTL <= 0 {
		keyTTL = KeyExpiry
	}
	return &Validator{
		sessions: s.Sessions,
		records:  s.Records,
		locks:    s.Locks,
		notifier: notifier,
		provider: provider,
		keyTTL:   keyTTL,
		now:      time.Now,
	}
}

// Validate runs the submission through the ordered checks and, when all
// pass, appends the attendance record and binds the device. The returned
// error is a *ValidationError for every rejection the student can act on.
func (v *Validator) Validate(ctx context.Context, sub Submission) (rec model.AttendanceRecord, err error) {
	defer func() { observeSubmission(err) }()

	// 1. Session must exist, be active, and its key window still open.
	sess, serr := v.sessions.GetSession(ctx, sub.SessionID)
	if serr != nil {
		if serr == store.ErrNotFound {
			return rec, failf(KindSessionInactive, "This session is no longer active.")
		}
		return rec, fmt.Errorf("load session: %w", serr)
	}
	now := v.now()
	if !sess.Active || v.keyExpired(sess, now) {
		return rec, failf(KindSessionInactive, "This session is no longer active.")
	}

	matric := model.NormalizeMatric(sub.MatricNo)

	// 2. A device already bound to another student blocks this one. This
	// read keeps the rejection ordering ahead of the key and face checks;
	// the binding itself is enforced atomically at step 7.
	if sub.DeviceID != "" {
		held, locked, lerr := v.locks.GetLock(ctx, sess.ID, sub.DeviceID)
		if lerr != nil {
			return rec, fmt.Errorf("device lock lookup: %w", lerr)
		}
		if locked && !strings.EqualFold(held, matric) {
			return rec, failf(KindDeviceLocked,
				"This device already logged attendance for %s.", held)
		}
	}

	// 3. Key match, case-insensitive.
	if strings.ToUpper(strings.TrimSpace(sub.SessionKey)) != sess.SessionKey {
		return rec, failf(KindInvalidKey, "Incorrect Session Key. Please ask your lecturer.")
	}

	// 4. A camera that produced nothing is a failed capture.
	if sub.CameraActive && sub.FaceImage == "" {
		return rec, failf(KindFaceCaptureFailed,
			"Face capture failed. Position your face in the frame and retry.")
	}

	// 5. Position: client-supplied, or acquired via the two-tier strategy.
	coords := sub.Coords
	if coords == nil {
		if v.provider == nil {
			return rec, failf(KindLocationUnavailable,
				"Geolocation must be enabled to take attendance.")
		}
		loc, perr := AcquirePosition(ctx, v.provider)
		if perr != nil {
			return rec, perr
		}
		coords = &loc
	}

	// 6. Geofence with the fixed slack margin.
	dist := geo.DistanceMeters(coords.Lat, coords.Lng, sess.Location.Lat, sess.Location.Lng)
	if dist > sess.Radius+RadiusSlack {
		return rec, failf(KindOutOfRange,
			"Outside lecture range (%.0fm away). Attendance denied.", math.Round(dist))
	}

	// 7. Device binding is enforced here, atomically: first writer wins,
	// and a holder that differs from the candidate means another student
	// claimed the device since the read-only check above. A student
	// resubmitting holds their own lock, so duplicates fall through to
	// the append below and report as duplicates, not lock conflicts.
	if sub.DeviceID != "" {
		held, lerr := v.locks.AcquireLock(ctx, sess.ID, sub.DeviceID, matric)
		if lerr != nil {
			return rec, fmt.Errorf("device lock acquire: %w", lerr)
		}
		if !strings.EqualFold(held, matric) {
			return rec, failf(KindDeviceLocked,
				"This device already logged attendance for %s.", held)
		}
	}

	// 8. Duplicate check and append are one atomic step.
	rec = model.AttendanceRecord{
		ID:          uuid.NewString(),
		SessionID:   sess.ID,
		StudentName: strings.TrimSpace(sub.Name),
		MatricNo:    matric,
		Department:  sub.Department,
		Timestamp:   now.UnixMilli(),
		FaceImage:   sub.FaceImage,
		Location:    *coords,
	}
	inserted, aerr := v.records.AppendIfAbsent(ctx, rec)
	if aerr != nil {
		return model.AttendanceRecord{}, fmt.Errorf("append record: %w", aerr)
	}
	if !inserted {
		return model.AttendanceRecord{}, failf(KindDuplicateSubmission,
			"You have already logged attendance for this session.")
	}

	if v.notifier != nil {
		v.notifier.Publish(Event{Type: EventRecordAccepted, SessionID: sess.ID, Record: &rec})
	}
	return rec, nil
}

// keyExpired reports whether the session's key window has closed. An
// expired key blocks new submissions even while the active flag is set;
// only an explicit End flips the flag itself.
func (v *Validator) keyExpired(sess model.Session, now time.Time) bool {
	return now.UnixMilli()-sess.StartTime > v.keyTTL.Milliseconds()
}
