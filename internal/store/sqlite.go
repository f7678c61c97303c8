package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mindlog-lab/mindlog/internal/model"
)

type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS interactions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    input_text TEXT NOT NULL DEFAULT '',
    sentiment_score REAL NOT NULL,
    severity_bucket TEXT NOT NULL CHECK(severity_bucket IN ('mild', 'moderate', 'severe')),
    assigned_variant TEXT CHECK(assigned_variant IN ('A', 'B')),
    response_time_ms INTEGER NOT NULL DEFAULT 0,
    time_to_decision_ms INTEGER,
    session_depth INTEGER NOT NULL DEFAULT 1,
    converted INTEGER NOT NULL DEFAULT 0 CHECK(converted IN (0, 1)),
    exclusion_reason TEXT,
    referral_source TEXT NOT NULL DEFAULT '',
    CHECK ((assigned_variant IS NULL) = (exclusion_reason IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id);
CREATE INDEX IF NOT EXISTS idx_interactions_variant ON interactions(assigned_variant);
CREATE INDEX IF NOT EXISTS idx_interactions_timestamp ON interactions(timestamp);
`

const selectColumns = `id, session_id, timestamp, input_text, sentiment_score, severity_bucket,
	assigned_variant, response_time_ms, time_to_decision_ms, session_depth, converted,
	exclusion_reason, referral_source`

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Apply schema
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, e *model.InteractionEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (
			session_id, timestamp, input_text, sentiment_score, severity_bucket,
			assigned_variant, response_time_ms, time_to_decision_ms, session_depth,
			converted, exclusion_reason, referral_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID,
		e.Timestamp.UTC().UnixNano(),
		e.InputText,
		e.SentimentScore,
		string(e.Severity),
		nullableString(string(e.Variant)),
		e.ResponseTimeMs,
		nullableInt(e.TimeToDecisionMs),
		e.SessionDepth,
		boolToInt(e.Converted),
		nullableString(string(e.ExclusionReason)),
		e.ReferralSource,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to append event: %w", ErrUnavailable, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("%w: failed to get last insert id: %w", ErrUnavailable, err)
	}
	e.ID = id

	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]*model.InteractionEvent, error) {
	var where []string
	var args []any

	if f.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Variant != model.VariantNone {
		where = append(where, "assigned_variant = ?")
		args = append(args, string(f.Variant))
	}
	if !f.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, f.Since.UTC().UnixNano())
	}
	if !f.Until.IsZero() {
		where = append(where, "timestamp < ?")
		args = append(args, f.Until.UTC().UnixNano())
	}
	if f.EligibleOnly {
		where = append(where, "exclusion_reason IS NULL")
	}

	query := "SELECT " + selectColumns + " FROM interactions"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query events: %w", ErrUnavailable, err)
	}
	defer rows.Close()

	var events []*model.InteractionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan event: %w", ErrUnavailable, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read events: %w", ErrUnavailable, err)
	}

	return events, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM interactions").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: failed to count events: %w", ErrUnavailable, err)
	}
	return n, nil
}

// SizeBytes reports the database size for health checks.
func (s *SQLiteStore) SizeBytes(ctx context.Context) (int64, error) {
	var size int64
	row := s.db.QueryRowContext(ctx, "SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	if err := row.Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to read database size: %w", err)
	}
	return size, nil
}

func scanEvent(rows *sql.Rows) (*model.InteractionEvent, error) {
	var e model.InteractionEvent
	var ts int64
	var severity string
	var variant, exclusion sql.NullString
	var ttd sql.NullInt64
	var converted int

	err := rows.Scan(&e.ID, &e.SessionID, &ts, &e.InputText, &e.SentimentScore, &severity,
		&variant, &e.ResponseTimeMs, &ttd, &e.SessionDepth, &converted, &exclusion, &e.ReferralSource)
	if err != nil {
		return nil, err
	}

	e.Timestamp = time.Unix(0, ts).UTC()
	e.Severity = model.Severity(severity)
	e.Variant = model.Variant(variant.String)
	e.ExclusionReason = model.ExclusionReason(exclusion.String)
	e.Converted = converted == 1
	if ttd.Valid {
		v := ttd.Int64
		e.TimeToDecisionMs = &v
	}

	return &e, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
