package attendance

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"attendx/internal/model"
	"attendx/internal/store"
)

// KeyExpiry is how long a session key stays usable after the session
// starts. The countdown shown to the lecturer runs against the same window.
const KeyExpiry = 30 * time.Minute

// ErrInvalidSelection is returned when the start form is incomplete or
// names something outside the catalog.
var ErrInvalidSelection = errors.New("please complete all selections")

// Selection is what the lecturer picks before opening a session.
type Selection struct {
	DepartmentID string `json:"department_id"`
	Level        string `json:"level"`
	CourseID     string `json:"course_id"`
}

// Lifecycle starts and ends sessions. A lecturer has at most one active
// session; starting a new one deactivates everything before it.
type Lifecycle struct {
	sessions store.SessionStore
	notifier *Notifier
	provider LocationProvider
	radius   float64
	now      func() time.Time
}

// NewLifecycle wires a lifecycle service. notifier and provider may be nil;
// radius <= 0 falls back to the catalog default.
func NewLifecycle(sessions store.SessionStore, notifier *Notifier, provider LocationProvider, radius float64) *Lifecycle {
	if radius <= 0 {
		radius = model.DefaultRadius
	}
	return &Lifecycle{
		sessions: sessions,
		notifier: notifier,
		provider: provider,
		radius:   radius,
		now:      time.Now,
	}
}

// Start opens a new session at the given location (acquired through the
// two-tier strategy when loc is nil) after deactivating all prior sessions.
func (l *Lifecycle) Start(ctx context.Context, lecturerID string, sel Selection, loc *model.Location) (model.Session, error) {
	if sel.DepartmentID == "" || sel.Level == "" || sel.CourseID == "" {
		return model.Session{}, ErrInvalidSelection
	}
	if _, ok := model.DepartmentByID(sel.DepartmentID); !ok {
		return model.Session{}, ErrInvalidSelection
	}
	if _, ok := model.CourseByID(sel.CourseID); !ok {
		return model.Session{}, ErrInvalidSelection
	}
	if !model.ValidLevel(sel.Level) {
		return model.Session{}, ErrInvalidSelection
	}

	if loc == nil {
		if l.provider == nil {
			return model.Session{}, failf(KindLocationUnavailable,
				"Geolocation is not supported by this client.")
		}
		fix, err := AcquirePosition(ctx, l.provider)
		if err != nil {
			return model.Session{}, err
		}
		loc = &fix
	}

	if err := l.sessions.DeactivateAll(ctx); err != nil {
		return model.Session{}, fmt.Errorf("deactivate prior sessions: %w", err)
	}

	sess := model.Session{
		ID:           uuid.NewString(),
		LecturerID:   lecturerID,
		CourseID:     sel.CourseID,
		DepartmentID: sel.DepartmentID,
		Level:        sel.Level,
		SessionKey:   NewSessionKey(),
		StartTime:    l.now().UnixMilli(),
		Location:     *loc,
		Radius:       l.radius,
		Active:       true,
	}
	if err := l.sessions.PutSession(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("store session: %w", err)
	}

	sessionsStarted.Inc()
	if l.notifier != nil {
		l.notifier.Publish(Event{Type: EventSessionStarted, SessionID: sess.ID, Session: &sess})
	}
	return sess, nil
}

// End closes a session. Ending an already-ended session is a no-op.
func (l *Lifecycle) End(ctx context.Context, sessionID string) (model.Session, error) {
	cur, err := l.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return model.Session{}, err
	}
	if !cur.Active && cur.EndTime != 0 {
		return cur, nil
	}
	sess, err := l.sessions.EndSession(ctx, sessionID, l.now().UnixMilli())
	if err != nil {
		return model.Session{}, err
	}
	sessionsEnded.Inc()
	if l.notifier != nil {
		l.notifier.Publish(Event{Type: EventSessionEnded, SessionID: sess.ID, Session: &sess})
	}
	return sess, nil
}

// KeyTimeLeft returns the remaining key window for display, zero once
// expired. Expiry blocks new submissions but does not flip the active flag.
func (l *Lifecycle) KeyTimeLeft(sess model.Session) time.Duration {
	left := KeyExpiry - time.Duration(l.now().UnixMilli()-sess.StartTime)*time.Millisecond
	if left < 0 {
		return 0
	}
	return left
}

// PortalURL builds the student portal link. External code relies on this
// exact shape.
func PortalURL(origin, path, sessionID string) string {
	return origin + path + "#/portal/" + sessionID
}

const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewSessionKey generates a 6-character alphanumeric session key.
// Uniqueness is not enforced; collisions are possible but practically
// negligible at this scale.
func NewSessionKey() string {
	buf := make([]byte, 6)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(keyAlphabet))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken.
			panic(err)
		}
		buf[i] = keyAlphabet[n.Int64()]
	}
	return string(buf)
}
