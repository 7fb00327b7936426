package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rollscan/rollscan/internal/types"
	_ "modernc.org/sqlite"
)

// SQLite implements Store on an embedded sqlite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at path and runs migrations.
// WAL mode keeps readers from blocking the extraction workers' writes.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	source_path TEXT NOT NULL,
	page_count  INTEGER NOT NULL,
	status      TEXT NOT NULL,
	header      TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	document_id      TEXT NOT NULL REFERENCES documents(id),
	config           TEXT NOT NULL,
	status           TEXT NOT NULL,
	cancel_requested INTEGER NOT NULL DEFAULT 0,
	started_at       DATETIME NOT NULL,
	finished_at      DATETIME
);

CREATE TABLE IF NOT EXISTS segments (
	id             TEXT PRIMARY KEY,
	document_id    TEXT NOT NULL REFERENCES documents(id),
	run_id         TEXT NOT NULL REFERENCES runs(id),
	idx            INTEGER NOT NULL,
	page_start     INTEGER NOT NULL,
	page_end       INTEGER NOT NULL,
	header_context TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS attempts (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	segment_id  TEXT NOT NULL REFERENCES segments(id),
	idx         INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error_kind  TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	heartbeat   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS voters (
	id            TEXT PRIMARY KEY,
	document_id   TEXT NOT NULL REFERENCES documents(id),
	serial_number INTEGER NOT NULL DEFAULT 0,
	name          TEXT NOT NULL,
	relative_name TEXT NOT NULL DEFAULT '',
	relation_type TEXT NOT NULL DEFAULT '',
	house_number  TEXT NOT NULL DEFAULT '',
	gender        TEXT NOT NULL DEFAULT '',
	age           INTEGER NOT NULL DEFAULT 0,
	photo_id      TEXT NOT NULL DEFAULT '',
	fingerprint   TEXT NOT NULL,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	segment_id    TEXT NOT NULL REFERENCES segments(id),
	attempt_id    TEXT NOT NULL,
	location_id   TEXT NOT NULL DEFAULT '',
	needs_review  INTEGER NOT NULL DEFAULT 0,
	page          INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL UNIQUE,
	state           TEXT NOT NULL DEFAULT '',
	district        TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_active
	ON runs(document_id) WHERE status IN ('pending', 'running');
CREATE UNIQUE INDEX IF NOT EXISTS idx_voters_merge
	ON voters(run_id, segment_id, fingerprint);
CREATE INDEX IF NOT EXISTS idx_segments_run ON segments(run_id, idx);
CREATE INDEX IF NOT EXISTS idx_attempts_run ON attempts(run_id, segment_id, idx);
CREATE INDEX IF NOT EXISTS idx_voters_document ON voters(document_id, serial_number);
`

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateDocument(ctx context.Context, doc *types.Document) error {
	header, err := marshalNullable(doc.Header)
	if err != nil {
		return fmt.Errorf("marshaling document header: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, source_path, page_count, status, header, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.SourcePath, doc.PageCount, string(doc.Status), header, doc.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *SQLite) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source_path, page_count, status, header, created_at
		 FROM documents WHERE id = ?`, id)
	return scanDocument(row)
}

func (s *SQLite) ListDocuments(ctx context.Context) ([]types.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, page_count, status, header, created_at
		 FROM documents ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var docs []types.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (s *SQLite) UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("updating document %s status: %w", id, err)
	}
	return requireRow(res)
}

func (s *SQLite) SetDocumentHeader(ctx context.Context, id string, header *types.DocumentHeader) error {
	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling document header: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET header = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("setting document %s header: %w", id, err)
	}
	return requireRow(res)
}

func (s *SQLite) CreateRun(ctx context.Context, run *types.Run, segments []types.Segment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE id = ?`, run.DocumentID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("checking document %s: %w", run.DocumentID, err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE document_id = ? AND status IN ('pending', 'running')`,
		run.DocumentID).Scan(&active)
	if err != nil {
		return fmt.Errorf("checking active runs for document %s: %w", run.DocumentID, err)
	}
	if active > 0 {
		return ErrRunConflict
	}

	config, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("marshaling run config: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, document_id, config, status, cancel_requested, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.DocumentID, string(config), string(run.Status),
		run.CancelRequested, run.StartedAt.UTC(), nullTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for _, seg := range segments {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO segments (id, document_id, run_id, idx, page_start, page_end, header_context)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			seg.ID, seg.DocumentID, seg.RunID, seg.Index, seg.PageStart, seg.PageEnd, seg.HeaderContext,
		)
		if err != nil {
			return fmt.Errorf("inserting segment %s: %w", seg.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLite) GetRun(ctx context.Context, runID string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, document_id, config, status, cancel_requested, started_at, finished_at
		 FROM runs WHERE id = ?`, runID)
	return scanRun(row)
}

func (s *SQLite) ListRuns(ctx context.Context, documentID string) ([]types.Run, error) {
	query := `SELECT id, document_id, config, status, cancel_requested, started_at, finished_at FROM runs`
	var args []any
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}
	query += ` ORDER BY started_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	runs := make([]types.Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (s *SQLite) GetSegments(ctx context.Context, runID string) ([]types.Segment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document_id, run_id, idx, page_start, page_end, header_context
		 FROM segments WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing segments for run %s: %w", runID, err)
	}
	defer rows.Close()

	var segments []types.Segment
	for rows.Next() {
		var seg types.Segment
		err := rows.Scan(&seg.ID, &seg.DocumentID, &seg.RunID, &seg.Index,
			&seg.PageStart, &seg.PageEnd, &seg.HeaderContext)
		if err != nil {
			return nil, fmt.Errorf("scanning segment: %w", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		if _, err := s.GetRun(ctx, runID); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

func (s *SQLite) UpdateRunStatus(ctx context.Context, runID string, status types.RunStatus, finishedAt *time.Time) error {
	// Terminal statuses never regress, so the guard lives in the WHERE
	// clause and a no-op update is not an error.
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = COALESCE(?, finished_at)
		 WHERE id = ? AND status NOT IN ('completed', 'partially_completed', 'failed', 'cancelled')`,
		string(status), nullTime(finishedAt), runID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s status: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.GetRun(ctx, runID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLite) RequestCancel(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET cancel_requested = 1 WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("requesting cancel for run %s: %w", runID, err)
	}
	return requireRow(res)
}

func (s *SQLite) CreateAttempt(ctx context.Context, attempt *types.Attempt) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (id, run_id, segment_id, idx, status, error_kind, error, started_at, finished_at, heartbeat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID, attempt.RunID, attempt.SegmentID, attempt.Index, string(attempt.Status),
		attempt.ErrorKind, attempt.Error, attempt.StartedAt.UTC(),
		nullTime(attempt.FinishedAt), attempt.Heartbeat.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting attempt %s: %w", attempt.ID, err)
	}
	return nil
}

func (s *SQLite) UpdateAttempt(ctx context.Context, attempt *types.Attempt) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET status = ?, error_kind = ?, error = ?, finished_at = ?, heartbeat = ?
		 WHERE id = ?`,
		string(attempt.Status), attempt.ErrorKind, attempt.Error,
		nullTime(attempt.FinishedAt), attempt.Heartbeat.UTC(), attempt.ID,
	)
	if err != nil {
		return fmt.Errorf("updating attempt %s: %w", attempt.ID, err)
	}
	return requireRow(res)
}

func (s *SQLite) HeartbeatAttempt(ctx context.Context, attemptID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE attempts SET heartbeat = ? WHERE id = ?`, at.UTC(), attemptID)
	if err != nil {
		return fmt.Errorf("updating attempt %s heartbeat: %w", attemptID, err)
	}
	return requireRow(res)
}

func (s *SQLite) CurrentAttempts(ctx context.Context, runID string) ([]types.Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.run_id, a.segment_id, a.idx, a.status, a.error_kind, a.error, a.started_at, a.finished_at, a.heartbeat
		 FROM attempts a
		 JOIN (SELECT segment_id, MAX(idx) AS max_idx FROM attempts WHERE run_id = ? GROUP BY segment_id) latest
		   ON a.segment_id = latest.segment_id AND a.idx = latest.max_idx
		 WHERE a.run_id = ?
		 ORDER BY a.segment_id`, runID, runID)
	if err != nil {
		return nil, fmt.Errorf("listing current attempts for run %s: %w", runID, err)
	}
	defer rows.Close()

	attempts := make([]types.Attempt, 0)
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (s *SQLite) AttemptCount(ctx context.Context, runID, segmentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempts WHERE run_id = ? AND segment_id = ?`,
		runID, segmentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting attempts for segment %s: %w", segmentID, err)
	}
	return count, nil
}

func (s *SQLite) GetRunSnapshot(ctx context.Context, runID string) (*types.RunSnapshot, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	segments, err := s.GetSegments(ctx, runID)
	if err != nil {
		return nil, err
	}
	current, err := s.CurrentAttempts(ctx, runID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]types.Attempt, len(current))
	for _, a := range current {
		latest[a.SegmentID] = a
	}

	snapshot := &types.RunSnapshot{Run: *run}
	for _, seg := range segments {
		count, err := s.AttemptCount(ctx, runID, seg.ID)
		if err != nil {
			return nil, err
		}
		ss := types.SegmentSnapshot{
			Segment:      seg,
			Status:       types.AttemptPending,
			AttemptCount: count,
		}
		if a, ok := latest[seg.ID]; ok {
			ss.Status = a.Status
			ss.LastError = a.Error
		}
		snapshot.Segments = append(snapshot.Segments, ss)
	}
	return snapshot, nil
}

func (s *SQLite) UpsertVoters(ctx context.Context, voters []types.Voter) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	inserted := 0
	for _, v := range voters {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO voters
			 (id, document_id, serial_number, name, relative_name, relation_type, house_number,
			  gender, age, photo_id, fingerprint, run_id, segment_id, attempt_id,
			  location_id, needs_review, page, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			v.ID, v.DocumentID, v.SerialNumber, v.Name, v.RelativeName, v.RelationType,
			v.HouseNumber, v.Gender, v.Age, v.PhotoID, v.Fingerprint,
			v.RunID, v.SegmentID, v.AttemptID, v.LocationID, v.NeedsReview, v.Page,
			v.CreatedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("upserting voter %s: %w", v.Fingerprint, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("reading rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing voter upsert: %w", err)
	}
	return inserted, nil
}

func (s *SQLite) ListVoters(ctx context.Context, documentID string) ([]types.Voter, error) {
	rows, err := s.db.QueryContext(ctx,
		voterColumns+` WHERE document_id = ? ORDER BY serial_number, fingerprint`, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing voters for document %s: %w", documentID, err)
	}
	return collectVoters(rows)
}

func (s *SQLite) SegmentVoters(ctx context.Context, runID, segmentID string) ([]types.Voter, error) {
	rows, err := s.db.QueryContext(ctx,
		voterColumns+` WHERE run_id = ? AND segment_id = ? ORDER BY fingerprint`, runID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("listing voters for segment %s: %w", segmentID, err)
	}
	return collectVoters(rows)
}

func (s *SQLite) SeedLocations(ctx context.Context, locations []types.Location) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, loc := range locations {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO locations (id, name, normalized_name, state, district)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(normalized_name) DO UPDATE SET
			   name = excluded.name, state = excluded.state, district = excluded.district`,
			loc.ID, loc.Name, NormalizeName(loc.Name), loc.State, loc.District,
		)
		if err != nil {
			return fmt.Errorf("seeding location %s: %w", loc.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing location seed: %w", err)
	}
	return nil
}

func (s *SQLite) LookupLocation(ctx context.Context, normalizedName string) (*types.Location, error) {
	var loc types.Location
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, state, district FROM locations WHERE normalized_name = ?`,
		normalizedName).Scan(&loc.ID, &loc.Name, &loc.State, &loc.District)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up location %q: %w", normalizedName, err)
	}
	return &loc, nil
}

func (s *SQLite) Metrics(ctx context.Context) (*Metrics, error) {
	m := &Metrics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM runs),
			(SELECT COUNT(*) FROM runs WHERE status = 'completed'),
			(SELECT COUNT(*) FROM runs WHERE status = 'partially_completed'),
			(SELECT COUNT(*) FROM runs WHERE status = 'failed'),
			(SELECT COUNT(*) FROM voters),
			(SELECT COUNT(*) FROM segments)`,
	).Scan(&m.TotalDocuments, &m.TotalRuns, &m.CompletedRuns, &m.PartialRuns,
		&m.FailedRuns, &m.TotalVoters, &m.TotalSegments)
	if err != nil {
		return nil, fmt.Errorf("collecting metrics: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM attempts a
		JOIN (SELECT run_id, segment_id, MAX(idx) AS max_idx FROM attempts GROUP BY run_id, segment_id) latest
		  ON a.run_id = latest.run_id AND a.segment_id = latest.segment_id AND a.idx = latest.max_idx
		WHERE a.status = 'failed_permanent'`,
	).Scan(&m.FailedSegments)
	if err != nil {
		return nil, fmt.Errorf("counting failed segments: %w", err)
	}
	return m, nil
}

// helpers

const voterColumns = `SELECT id, document_id, serial_number, name, relative_name, relation_type,
	house_number, gender, age, photo_id, fingerprint, run_id, segment_id, attempt_id,
	location_id, needs_review, page, created_at FROM voters`

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*types.Document, error) {
	var doc types.Document
	var header sql.NullString
	err := row.Scan(&doc.ID, &doc.SourcePath, &doc.PageCount, &doc.Status, &header, &doc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning document: %w", err)
	}
	if header.Valid {
		doc.Header = &types.DocumentHeader{}
		if err := json.Unmarshal([]byte(header.String), doc.Header); err != nil {
			return nil, fmt.Errorf("unmarshaling document header: %w", err)
		}
	}
	return &doc, nil
}

func scanRun(row scannable) (*types.Run, error) {
	var run types.Run
	var config string
	var finishedAt sql.NullTime
	err := row.Scan(&run.ID, &run.DocumentID, &config, &run.Status,
		&run.CancelRequested, &run.StartedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &run.Config); err != nil {
		return nil, fmt.Errorf("unmarshaling run config: %w", err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}

func scanAttempt(row scannable) (*types.Attempt, error) {
	var a types.Attempt
	var finishedAt sql.NullTime
	err := row.Scan(&a.ID, &a.RunID, &a.SegmentID, &a.Index, &a.Status,
		&a.ErrorKind, &a.Error, &a.StartedAt, &finishedAt, &a.Heartbeat)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning attempt: %w", err)
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		a.FinishedAt = &t
	}
	return &a, nil
}

func collectVoters(rows *sql.Rows) ([]types.Voter, error) {
	defer rows.Close()
	voters := make([]types.Voter, 0)
	for rows.Next() {
		var v types.Voter
		err := rows.Scan(&v.ID, &v.DocumentID, &v.SerialNumber, &v.Name, &v.RelativeName,
			&v.RelationType, &v.HouseNumber, &v.Gender, &v.Age, &v.PhotoID, &v.Fingerprint,
			&v.RunID, &v.SegmentID, &v.AttemptID, &v.LocationID, &v.NeedsReview, &v.Page,
			&v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning voter: %w", err)
		}
		voters = append(voters, v)
	}
	return voters, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func marshalNullable(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case *types.DocumentHeader:
		if x == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
