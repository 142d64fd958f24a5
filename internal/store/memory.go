package store

import (
	"context"
	"sync"

	"attendx/internal/model"
)

// Memory is a mutex-guarded in-process store for dev and tests. Insertion
// order is preserved so listings are deterministic.
type Memory struct {
	mu       sync.Mutex
	sessions []model.Session
	records  []model.AttendanceRecord
	locks    map[string]string // sessionID + "\x00" + deviceID -> matric
	seen     map[string]bool   // sessionID + "\x00" + matric dedup index
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		locks: make(map[string]string),
		seen:  make(map[string]bool),
	}
}

// Bundle returns the memory store wired as all three collaborator stores.
func (m *Memory) Bundle() Store {
	return Store{Sessions: m, Records: m, Locks: m}
}

func pairKey(a, b string) string { return a + "\x00" + b }

// -------- SessionStore --------

func (m *Memory) PutSession(_ context.Context, s model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID == s.ID {
			m.sessions[i] = s
			return nil
		}
	}
	m.sessions = append(m.sessions, s)
	return nil
}

func (m *Memory) GetSession(_ context.Context, id string) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Session{}, ErrNotFound
}

func (m *Memory) ListSessions(_ context.Context) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Session, len(m.sessions))
	copy(out, m.sessions)
	return out, nil
}

func (m *Memory) DeactivateAll(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		m.sessions[i].Active = false
	}
	return nil
}

func (m *Memory) EndSession(_ context.Context, id string, endTime int64) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sessions {
		if m.sessions[i].ID != id {
			continue
		}
		if !m.sessions[i].Active && m.sessions[i].EndTime != 0 {
			return m.sessions[i], nil
		}
		m.sessions[i].Active = false
		m.sessions[i].EndTime = endTime
		return m.sessions[i], nil
	}
	return model.Session{}, ErrNotFound
}

func (m *Memory) ResetSessions(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = nil
	return nil
}

// -------- RecordStore --------

func (m *Memory) AppendIfAbsent(_ context.Context, rec model.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(rec.SessionID, model.NormalizeMatric(rec.MatricNo))
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	m.records = append(m.records, rec)
	return true, nil
}

func (m *Memory) FindRecord(_ context.Context, sessionID, matricNo string) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	matric := model.NormalizeMatric(matricNo)
	for i := range m.records {
		if m.records[i].SessionID == sessionID && model.NormalizeMatric(m.records[i].MatricNo) == matric {
			rec := m.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetRecord(_ context.Context, id string) (model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return model.AttendanceRecord{}, ErrNotFound
}

func (m *Memory) ListBySession(_ context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AttendanceRecord
	for _, r := range m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Memory) ListRecords(_ context.Context) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AttendanceRecord, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) SetFaceImage(_ context.Context, id, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].FaceImage = ref
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) ResetRecords(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.seen = make(map[string]bool)
	return nil
}

// -------- DeviceLockStore --------

func (m *Memory) AcquireLock(_ context.Context, sessionID, deviceID, matricNo string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(sessionID, deviceID)
	if held, ok := m.locks[key]; ok {
		return held, nil
	}
	matric := model.NormalizeMatric(matricNo)
	m.locks[key] = matric
	return matric, nil
}

func (m *Memory) GetLock(_ context.Context, sessionID, deviceID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, ok := m.locks[pairKey(sessionID, deviceID)]
	return held, ok, nil
}

func (m *Memory) ResetLocks(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks = make(map[string]string)
	return nil
}
