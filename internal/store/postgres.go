package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"attendx/internal/model"
)

// OpenDB opens a Postgres connection through the pgx stdlib driver with
// sane pool defaults.
func OpenDB(connString string) (*sql.DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return db, db.PingContext(context.Background())
}

// Postgres persists sessions, records and device locks in Postgres.
type Postgres struct {
	db *sql.DB
}

// NewPostgres creates a Postgres-backed store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Bundle returns the postgres store wired as all three collaborator stores.
func (p *Postgres) Bundle() Store {
	return Store{Sessions: p, Records: p, Locks: p}
}

// Migrate creates the schema when it does not exist yet.
func (p *Postgres) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sessions (
			id            TEXT PRIMARY KEY,
			lecturer_id   TEXT NOT NULL,
			course_id     TEXT NOT NULL,
			department_id TEXT NOT NULL,
			level         TEXT NOT NULL,
			session_key   TEXT NOT NULL,
			start_time    BIGINT NOT NULL,
			end_time      BIGINT NOT NULL DEFAULT 0,
			lat           DOUBLE PRECISION NOT NULL,
			lng           DOUBLE PRECISION NOT NULL,
			radius        DOUBLE PRECISION NOT NULL,
			active        BOOLEAN NOT NULL DEFAULT FALSE,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS attendance_records (
			id           TEXT PRIMARY KEY,
			session_id   TEXT NOT NULL REFERENCES sessions(id),
			student_name TEXT NOT NULL,
			matric_no    TEXT NOT NULL,
			department   TEXT NOT NULL,
			ts           BIGINT NOT NULL,
			face_image   TEXT NOT NULL DEFAULT '',
			lat          DOUBLE PRECISION NOT NULL,
			lng          DOUBLE PRECISION NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (session_id, matric_no)
		);

		CREATE TABLE IF NOT EXISTS device_locks (
			session_id TEXT NOT NULL,
			device_id  TEXT NOT NULL,
			matric_no  TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, device_id)
		);

		CREATE INDEX IF NOT EXISTS idx_records_session ON attendance_records(session_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_course ON sessions(course_id);
	`)
	return err
}

const sessionCols = `id, lecturer_id, course_id, department_id, level, session_key, start_time, end_time, lat, lng, radius, active`

func scanSession(row interface{ Scan(...any) error }) (model.Session, error) {
	var s model.Session
	err := row.Scan(&s.ID, &s.LecturerID, &s.CourseID, &s.DepartmentID, &s.Level,
		&s.SessionKey, &s.StartTime, &s.EndTime, &s.Location.Lat, &s.Location.Lng,
		&s.Radius, &s.Active)
	return s, err
}

// -------- SessionStore --------

func (p *Postgres) PutSession(ctx context.Context, s model.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			end_time = EXCLUDED.end_time,
			active = EXCLUDED.active
	`, s.ID, s.LecturerID, s.CourseID, s.DepartmentID, s.Level, s.SessionKey,
		s.StartTime, s.EndTime, s.Location.Lat, s.Location.Lng, s.Radius, s.Active)
	return err
}

func (p *Postgres) GetSession(ctx context.Context, id string) (model.Session, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

func (p *Postgres) ListSessions(ctx context.Context) ([]model.Session, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+sessionCols+` FROM sessions ORDER BY start_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) DeactivateAll(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `UPDATE sessions SET active = FALSE WHERE active`)
	return err
}

func (p *Postgres) EndSession(ctx context.Context, id string, endTime int64) (model.Session, error) {
	row := p.db.QueryRowContext(ctx, `
		UPDATE sessions
		SET active = FALSE,
		    end_time = CASE WHEN end_time = 0 THEN $2 ELSE end_time END
		WHERE id = $1
		RETURNING `+sessionCols+`
	`, id, endTime)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Session{}, ErrNotFound
	}
	return s, err
}

func (p *Postgres) ResetSessions(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE attendance_records, sessions`)
	return err
}

// -------- RecordStore --------

const recordCols = `id, session_id, student_name, matric_no, department, ts, face_image, lat, lng`

func scanRecord(row interface{ Scan(...any) error }) (model.AttendanceRecord, error) {
	var r model.AttendanceRecord
	err := row.Scan(&r.ID, &r.SessionID, &r.StudentName, &r.MatricNo, &r.Department,
		&r.Timestamp, &r.FaceImage, &r.Location.Lat, &r.Location.Lng)
	return r, err
}

func (p *Postgres) AppendIfAbsent(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (session_id, matric_no) DO NOTHING
	`, rec.ID, rec.SessionID, rec.StudentName, model.NormalizeMatric(rec.MatricNo),
		rec.Department, rec.Timestamp, rec.FaceImage, rec.Location.Lat, rec.Location.Lng)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (p *Postgres) FindRecord(ctx context.Context, sessionID, matricNo string) (*model.AttendanceRecord, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE session_id = $1 AND matric_no = $2
	`, sessionID, model.NormalizeMatric(matricNo))
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *Postgres) GetRecord(ctx context.Context, id string) (model.AttendanceRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+recordCols+` FROM attendance_records WHERE id = $1`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AttendanceRecord{}, ErrNotFound
	}
	return r, err
}

func (p *Postgres) ListBySession(ctx context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	return p.listRecords(ctx, `SELECT `+recordCols+` FROM attendance_records WHERE session_id = $1 ORDER BY ts`, sessionID)
}

func (p *Postgres) ListRecords(ctx context.Context) ([]model.AttendanceRecord, error) {
	return p.listRecords(ctx, `SELECT `+recordCols+` FROM attendance_records ORDER BY ts`)
}

func (p *Postgres) listRecords(ctx context.Context, query string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.AttendanceRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) SetFaceImage(ctx context.Context, id, ref string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE attendance_records SET face_image = $2 WHERE id = $1`, id, ref)
	return err
}

func (p *Postgres) ResetRecords(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE attendance_records`)
	return err
}

// -------- DeviceLockStore --------

func (p *Postgres) AcquireLock(ctx context.Context, sessionID, deviceID, matricNo string) (string, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO device_locks (session_id, device_id, matric_no)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id, device_id) DO UPDATE SET matric_no = device_locks.matric_no
		RETURNING matric_no
	`, sessionID, deviceID, model.NormalizeMatric(matricNo))
	var held string
	if err := row.Scan(&held); err != nil {
		return "", err
	}
	return held, nil
}

func (p *Postgres) GetLock(ctx context.Context, sessionID, deviceID string) (string, bool, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT matric_no FROM device_locks WHERE session_id = $1 AND device_id = $2
	`, sessionID, deviceID)
	var held string
	if err := row.Scan(&held); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return held, true, nil
}

func (p *Postgres) ResetLocks(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `TRUNCATE device_locks`)
	return err
}
