package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"attendx/internal/model"
	"attendx/internal/store"
)

// metersLat converts a northward offset in meters to degrees of latitude.
func metersLat(m float64) float64 {
	return m / (6371000.0 * 3.141592653589793 / 180)
}

func testSession() model.Session {
	return model.Session{
		ID:         "sess-1",
		LecturerID: "lect-1",
		CourseID:   "cpe301",
		SessionKey: "AB12CD",
		StartTime:  time.Now().UnixMilli(),
		Location:   model.Location{Lat: 6.5244, Lng: 3.3792},
		Radius:     100,
		Active:     true,
	}
}

func newTestValidator(t *testing.T, sess model.Session) (*Validator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	if err := mem.PutSession(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return NewValidator(mem.Bundle(), nil, nil, 0), mem
}

func baseSubmission(sess model.Session) Submission {
	return Submission{
		SessionID:  sess.ID,
		SessionKey: sess.SessionKey,
		Name:       "Jane Doe",
		MatricNo:   "eng/21/0001",
		Department: "cpe",
		DeviceID:   "device-a",
		Coords:     &model.Location{Lat: sess.Location.Lat, Lng: sess.Location.Lng},
	}
}

func TestValidateAccepts(t *testing.T) {
	sess := testSession()
	v, mem := newTestValidator(t, sess)

	rec, err := v.Validate(context.Background(), baseSubmission(sess))
	if err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
	if rec.MatricNo != "ENG/21/0001" {
		t.Errorf("matric not normalized: %q", rec.MatricNo)
	}
	if rec.ID == "" || rec.Timestamp == 0 {
		t.Errorf("record missing id or timestamp: %+v", rec)
	}

	held, ok, _ := mem.GetLock(context.Background(), sess.ID, "device-a")
	if !ok || held != "ENG/21/0001" {
		t.Errorf("device lock not set, held=%q ok=%v", held, ok)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		session func(s *model.Session)
		sub     func(s *Submission)
		seed    func(t *testing.T, mem *store.Memory, sess model.Session)
		wantErr *ValidationError
	}{
		{
			name:    "inactive session",
			session: func(s *model.Session) { s.Active = false },
			wantErr: ErrSessionInactive,
		},
		{
			name:    "unknown session",
			sub:     func(s *Submission) { s.SessionID = "nope" },
			wantErr: ErrSessionInactive,
		},
		{
			name: "expired key window",
			session: func(s *model.Session) {
				s.StartTime = time.Now().Add(-31 * time.Minute).UnixMilli()
			},
			wantErr: ErrSessionInactive,
		},
		{
			name:    "wrong key",
			sub:     func(s *Submission) { s.SessionKey = "XXXXXX" },
			wantErr: ErrInvalidKey,
		},
		{
			name: "device bound to another student",
			seed: func(t *testing.T, mem *store.Memory, sess model.Session) {
				if _, err := mem.AcquireLock(context.Background(), sess.ID, "device-a", "ENG/21/0999"); err != nil {
					t.Fatalf("seed lock: %v", err)
				}
			},
			wantErr: ErrDeviceLocked,
		},
		{
			name:    "camera active but no snapshot",
			sub:     func(s *Submission) { s.CameraActive = true; s.FaceImage = "" },
			wantErr: ErrFaceCaptureFailed,
		},
		{
			name: "just outside slack radius",
			sub: func(s *Submission) {
				s.Coords = &model.Location{Lat: 6.5244 + metersLat(176), Lng: 3.3792}
			},
			wantErr: ErrOutOfRange,
		},
		{
			name:    "no coords and no provider",
			sub:     func(s *Submission) { s.Coords = nil },
			wantErr: ErrLocationUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := testSession()
			if tt.session != nil {
				tt.session(&sess)
			}
			v, mem := newTestValidator(t, sess)
			if tt.seed != nil {
				tt.seed(t, mem, sess)
			}
			sub := baseSubmission(sess)
			if tt.sub != nil {
				tt.sub(&sub)
			}
			_, err := v.Validate(context.Background(), sub)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want kind %s", err, tt.wantErr.Kind)
			}
		})
	}
}

func TestValidateSlackBoundary(t *testing.T) {
	// radius 100 + 75 slack: 150m away passes, 176m is rejected.
	sess := testSession()
	v, _ := newTestValidator(t, sess)

	sub := baseSubmission(sess)
	sub.Coords = &model.Location{Lat: sess.Location.Lat + metersLat(150), Lng: sess.Location.Lng}
	if _, err := v.Validate(context.Background(), sub); err != nil {
		t.Fatalf("150m submission rejected: %v", err)
	}
}

func TestValidateOutOfRangeMessageHasDistance(t *testing.T) {
	sess := testSession()
	v, _ := newTestValidator(t, sess)

	sub := baseSubmission(sess)
	sub.Coords = &model.Location{Lat: sess.Location.Lat + metersLat(500), Lng: sess.Location.Lng}
	_, err := v.Validate(context.Background(), sub)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindOutOfRange {
		t.Fatalf("Validate() error = %v, want OutOfRange", err)
	}
	if !strings.Contains(verr.Message, "500") {
		t.Errorf("message %q does not include rounded distance", verr.Message)
	}
}

func TestValidateDuplicate(t *testing.T) {
	sess := testSession()
	v, _ := newTestValidator(t, sess)

	if _, err := v.Validate(context.Background(), baseSubmission(sess)); err != nil {
		t.Fatalf("first submission: %v", err)
	}

	// Same matric in different case, different device: still a duplicate.
	sub := baseSubmission(sess)
	sub.MatricNo = "ENG/21/0001"
	sub.DeviceID = "device-b"
	_, err := v.Validate(context.Background(), sub)
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Errorf("second submission error = %v, want DuplicateSubmission", err)
	}
}

func TestValidateDeviceLockMessageNamesHolder(t *testing.T) {
	sess := testSession()
	v, _ := newTestValidator(t, sess)

	if _, err := v.Validate(context.Background(), baseSubmission(sess)); err != nil {
		t.Fatalf("first submission: %v", err)
	}

	sub := baseSubmission(sess)
	sub.MatricNo = "ENG/21/0002"
	_, err := v.Validate(context.Background(), sub)
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Kind != KindDeviceLocked {
		t.Fatalf("error = %v, want DeviceLocked", err)
	}
	if !strings.Contains(verr.Message, "ENG/21/0001") {
		t.Errorf("message %q does not name the locked matric", verr.Message)
	}
}

func TestValidateConcurrentDeviceBinding(t *testing.T) {
	// Many students racing on one device: exactly one record lands, and
	// the persisted record belongs to whoever won the device binding.
	sess := testSession()
	v, mem := newTestValidator(t, sess)

	const n = 32
	start := make(chan struct{})
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sub := baseSubmission(sess)
			sub.MatricNo = fmt.Sprintf("ENG/21/%04d", i)
			<-start
			_, errs[i] = v.Validate(context.Background(), sub)
		}(i)
	}
	close(start)
	wg.Wait()

	accepted := 0
	for i, err := range errs {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrDeviceLocked):
		default:
			t.Errorf("submission %d: error = %v, want nil or DeviceLocked", i, err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want exactly 1", accepted)
	}

	recs, _ := mem.ListBySession(context.Background(), sess.ID)
	if len(recs) != 1 {
		t.Fatalf("persisted records = %d, want 1", len(recs))
	}
	held, ok, _ := mem.GetLock(context.Background(), sess.ID, "device-a")
	if !ok || held != recs[0].MatricNo {
		t.Errorf("lock holder = %q ok=%v, want record owner %q", held, ok, recs[0].MatricNo)
	}
}

func TestValidateKeyCaseInsensitive(t *testing.T) {
	sess := testSession()
	v, _ := newTestValidator(t, sess)

	sub := baseSubmission(sess)
	sub.SessionKey = "ab12cd"
	if _, err := v.Validate(context.Background(), sub); err != nil {
		t.Errorf("lower-case key rejected: %v", err)
	}
}

// stubProvider fails a configurable number of fixes before succeeding.
type stubProvider struct {
	failures int
	calls    int
	fix      model.Location
}

func (p *stubProvider) CurrentPosition(ctx context.Context, opts FixOptions) (model.Location, error) {
	p.calls++
	if p.calls <= p.failures {
		return model.Location{}, errors.New("no fix")
	}
	return p.fix, nil
}

func TestValidateTwoTierLocation(t *testing.T) {
	sess := testSession()
	mem := store.NewMemory()
	if err := mem.PutSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}

	// First tier fails, relaxed retry succeeds.
	provider := &stubProvider{failures: 1, fix: sess.Location}
	v := NewValidator(mem.Bundle(), nil, provider, 0)
	sub := baseSubmission(sess)
	sub.Coords = nil
	if _, err := v.Validate(context.Background(), sub); err != nil {
		t.Fatalf("Validate() with relaxed-tier fix failed: %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("provider calls = %d, want 2", provider.calls)
	}

	// Both tiers failing is LocationUnavailable.
	provider2 := &stubProvider{failures: 2}
	v2 := NewValidator(mem.Bundle(), nil, provider2, 0)
	sub2 := baseSubmission(sess)
	sub2.Coords = nil
	sub2.MatricNo = "ENG/21/0777"
	sub2.DeviceID = "device-z"
	if _, err := v2.Validate(context.Background(), sub2); !errors.Is(err, ErrLocationUnavailable) {
		t.Errorf("error = %v, want LocationUnavailable", err)
	}
}

func TestValidateCanceledContextAborts(t *testing.T) {
	sess := testSession()
	mem := store.NewMemory()
	if err := mem.PutSession(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
	provider := &stubProvider{failures: 99}
	v := NewValidator(mem.Bundle(), nil, provider, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sub := baseSubmission(sess)
	sub.Coords = nil
	_, err := v.Validate(ctx, sub)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	recs, _ := mem.ListRecords(context.Background())
	if len(recs) != 0 {
		t.Errorf("canceled submission left %d records", len(recs))
	}
}
