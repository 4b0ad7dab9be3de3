package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/openfroyo/bootstrap/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

// SQLiteJournal implements engine.Journal using SQLite.
type SQLiteJournal struct {
	db   *sql.DB
	path string
}

// Config holds SQLite journal configuration.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// NewSQLiteJournal creates a new SQLite journal instance.
func NewSQLiteJournal(cfg Config) (*SQLiteJournal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteJournal{path: cfg.Path}, nil
}

// OpenJournal creates, initializes and migrates a journal.
func OpenJournal(ctx context.Context, cfg Config) (*SQLiteJournal, error) {
	j, err := NewSQLiteJournal(cfg)
	if err != nil {
		return nil, err
	}
	if err := j.Init(ctx); err != nil {
		return nil, err
	}
	if err := j.Migrate(ctx); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

// Init opens the database, creating its directory, and enables WAL mode.
func (j *SQLiteJournal) Init(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)", j.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// One writer per process; the journal is written once per run.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	j.db = db
	return nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (j *SQLiteJournal) Migrate(_ context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(j.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (j *SQLiteJournal) HealthCheck(ctx context.Context) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return j.db.PingContext(ctx)
}

// RecordRun appends a run record and its boot scripts in one transaction.
func (j *SQLiteJournal) RecordRun(ctx context.Context, record *engine.RunRecord) error {
	if j.db == nil {
		return fmt.Errorf("database not initialized")
	}

	loadPath, err := json.Marshal(nonNil(record.LoadPath))
	if err != nil {
		return fmt.Errorf("failed to encode load path: %w", err)
	}
	skipped, err := json.Marshal(nonNil(record.Skipped))
	if err != nil {
		return fmt.Errorf("failed to encode skipped libraries: %w", err)
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var errMsg *string
	if record.Error != "" {
		errMsg = &record.Error
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, descriptor_id, entry_point, phase, outcome, exit_code, error, load_path, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RunID,
		record.DescriptorID,
		record.EntryPoint,
		string(record.Phase),
		string(record.Outcome),
		record.ExitCode,
		errMsg,
		string(loadPath),
		string(skipped),
		record.StartedAt.UnixMilli(),
		record.FinishedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	for i, script := range record.BootScripts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO boot_scripts (run_id, position, path, privileged, elevated, executed, exit_code, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`,
			record.RunID, i, script.Path,
			script.Privileged, script.Elevated, script.Executed,
			script.ExitCode, script.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to record boot script: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

const selectRun = `
	SELECT id, descriptor_id, entry_point, phase, outcome, exit_code, error, load_path, skipped, started_at, finished_at
	FROM runs
`

// GetRun retrieves a run by id.
func (j *SQLiteJournal) GetRun(ctx context.Context, id string) (*engine.RunRecord, error) {
	record, err := scanRun(j.db.QueryRowContext(ctx, selectRun+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if err := j.loadBootScripts(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// ListRuns returns the most recent runs, newest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context, limit int) ([]*engine.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := j.db.QueryContext(ctx, selectRun+" ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	records := []*engine.RunRecord{}
	for rows.Next() {
		record, err := scanRun(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, record)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	for _, record := range records {
		if err := j.loadBootScripts(ctx, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (j *SQLiteJournal) loadBootScripts(ctx context.Context, record *engine.RunRecord) error {
	rows, err := j.db.QueryContext(ctx, `
		SELECT path, privileged, elevated, executed, exit_code, duration_ms
		FROM boot_scripts
		WHERE run_id = ?
		ORDER BY position
	`, record.RunID)
	if err != nil {
		return fmt.Errorf("failed to load boot scripts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var script engine.BootScript
		var durationMS int64
		if err := rows.Scan(&script.Path, &script.Privileged, &script.Elevated, &script.Executed, &script.ExitCode, &durationMS); err != nil {
			return fmt.Errorf("failed to scan boot script: %w", err)
		}
		script.Duration = time.Duration(durationMS) * time.Millisecond
		record.BootScripts = append(record.BootScripts, script)
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*engine.RunRecord, error) {
	var (
		record              engine.RunRecord
		phase, outcome      string
		errMsg              sql.NullString
		loadPath, skipped   string
		startedAt, finished int64
	)
	err := row.Scan(
		&record.RunID,
		&record.DescriptorID,
		&record.EntryPoint,
		&phase,
		&outcome,
		&record.ExitCode,
		&errMsg,
		&loadPath,
		&skipped,
		&startedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}

	record.Phase = engine.Phase(phase)
	record.Outcome = engine.Outcome(outcome)
	record.Error = errMsg.String
	record.StartedAt = time.UnixMilli(startedAt)
	record.FinishedAt = time.UnixMilli(finished)
	if err := json.Unmarshal([]byte(loadPath), &record.LoadPath); err != nil {
		return nil, fmt.Errorf("failed to decode load path: %w", err)
	}
	if err := json.Unmarshal([]byte(skipped), &record.Skipped); err != nil {
		return nil, fmt.Errorf("failed to decode skipped libraries: %w", err)
	}
	return &record, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
