package telemetry

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/golang/geo/r3"
	_ "modernc.org/sqlite"

	"markertracker/trackers"
	"markertracker/utils"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SessionInfo describes one tracking run stored in the database.
type SessionInfo struct {
	ID         string
	StartedAt  time.Time
	Source     string
	Convention string
}

// Store persists tracking records in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies pending migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps writes from the tracking loop and status reads from contending.
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// migrateUp runs all pending migrations. The migrate instance is not closed since that would
// close the shared connection.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied schema version.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// StartSession registers a run. Records may be written for sessions that were never started;
// they get a placeholder session row.
func (s *Store) StartSession(info SessionInfo) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, started_at_ns, source, convention) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at_ns = excluded.started_at_ns, source = excluded.source, convention = excluded.convention`,
		info.ID, info.StartedAt.UnixNano(), info.Source, info.Convention)
	return err
}

// WriteRecord implements trackers.RecordSink.
func (s *Store) WriteRecord(rec trackers.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	started := rec.WallTime.Add(-rec.RunningTime)
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO sessions (id, started_at_ns, source, convention) VALUES (?, ?, '', '')`,
		rec.SessionID, started.UnixNano()); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO records (
			session_id, seq, frame_index, stream_ms, wall_time_ns, running_ms, duration_ms,
			avg_duration_ms, avg_fps, marker_id, cam_x, cam_y, cam_z, x, y, z, roll, pitch, yaw,
			reprojection_error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.Seq, rec.FrameIndex,
		durationMs(rec.StreamTime), rec.WallTime.UnixNano(), durationMs(rec.RunningTime), durationMs(rec.Duration),
		rec.AvgDurationMs, rec.AvgFPS, rec.MarkerID,
		rec.CameraTranslation.X, rec.CameraTranslation.Y, rec.CameraTranslation.Z,
		rec.Position.X, rec.Position.Y, rec.Position.Z,
		rec.Euler.Roll, rec.Euler.Pitch, rec.Euler.Yaw,
		rec.ReprojectionError,
	); err != nil {
		return fmt.Errorf("inserting record %d: %w", rec.Seq, err)
	}
	return tx.Commit()
}

// Records returns the records of a session ordered by sequence number.
func (s *Store) Records(sessionID string) ([]trackers.Record, error) {
	rows, err := s.db.Query(`SELECT
			seq, frame_index, stream_ms, wall_time_ns, running_ms, duration_ms,
			avg_duration_ms, avg_fps, marker_id, cam_x, cam_y, cam_z, x, y, z, roll, pitch, yaw,
			reprojection_error
		FROM records WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trackers.Record
	for rows.Next() {
		var (
			rec                        trackers.Record
			streamMs, runningMs, durMs float64
			wallNs                     int64
			cam, pos                   r3.Vector
			euler                      utils.EulerAngles
		)
		if err := rows.Scan(
			&rec.Seq, &rec.FrameIndex, &streamMs, &wallNs, &runningMs, &durMs,
			&rec.AvgDurationMs, &rec.AvgFPS, &rec.MarkerID,
			&cam.X, &cam.Y, &cam.Z, &pos.X, &pos.Y, &pos.Z,
			&euler.Roll, &euler.Pitch, &euler.Yaw,
			&rec.ReprojectionError,
		); err != nil {
			return nil, err
		}
		rec.SessionID = sessionID
		rec.StreamTime = msDuration(streamMs)
		rec.WallTime = time.Unix(0, wallNs)
		rec.RunningTime = msDuration(runningMs)
		rec.Duration = msDuration(durMs)
		rec.CameraTranslation = cam
		rec.Position = pos
		rec.Euler = euler
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Sessions lists stored sessions, newest first.
func (s *Store) Sessions() ([]SessionInfo, error) {
	rows, err := s.db.Query(`SELECT id, started_at_ns, source, convention FROM sessions ORDER BY started_at_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var (
			info SessionInfo
			ns   int64
		)
		if err := rows.Scan(&info.ID, &ns, &info.Source, &info.Convention); err != nil {
			return nil, err
		}
		info.StartedAt = time.Unix(0, ns)
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func msDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
