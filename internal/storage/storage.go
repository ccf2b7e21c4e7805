// Package storage provides SQLite persistence for timeline events and
// precomputed correlation records.
//
// Storage implements both collaborators the timeline service reads from: the
// event repository ("events for user X within [start, end)") and the
// correlation store ("records for user X overlapping a date range"). All
// timestamps are stored as epoch milliseconds and returned in UTC.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rewired-gh/flareline/internal/models"
)

// Storage provides thread-safe SQLite-backed storage.
type Storage struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath. ":memory:" opens a private
// in-memory database on a single connection.
func New(dbPath string) (*Storage, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A second connection to :memory: would see an empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *Storage) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS timeline_events (
		user_id   TEXT NOT NULL,
		id        TEXT NOT NULL,
		type      TEXT NOT NULL,
		ts_ms     INTEGER NOT NULL,
		summary   TEXT NOT NULL DEFAULT '',
		items     TEXT NOT NULL DEFAULT '[]',
		severity  INTEGER NOT NULL DEFAULT 0,
		event_ref TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (user_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_user_ts ON timeline_events(user_id, ts_ms);

	CREATE TABLE IF NOT EXISTS correlations (
		user_id        TEXT NOT NULL,
		pattern_id     TEXT NOT NULL,
		type           TEXT NOT NULL,
		item_a         TEXT NOT NULL,
		item_b         TEXT NOT NULL,
		coefficient    REAL NOT NULL,
		lag_hours      REAL NOT NULL,
		sample_size    INTEGER NOT NULL,
		confidence     TEXT NOT NULL DEFAULT '',
		range_start_ms INTEGER NOT NULL,
		range_end_ms   INTEGER NOT NULL,
		computed_at_ms INTEGER NOT NULL,
		PRIMARY KEY (user_id, range_start_ms, range_end_ms, pattern_id)
	);

	CREATE INDEX IF NOT EXISTS idx_correlations_user_range ON correlations(user_id, range_start_ms, range_end_ms);

	CREATE TABLE IF NOT EXISTS notified_patterns (
		user_id    TEXT NOT NULL,
		pattern_id TEXT NOT NULL,
		frequency  INTEGER NOT NULL,
		sent_at_ms INTEGER NOT NULL,
		PRIMARY KEY (user_id, pattern_id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveEvents validates and upserts events for a user.
func (s *Storage) SaveEvents(ctx context.Context, userID string, events []models.TimelineEvent) error {
	if userID == "" {
		return fmt.Errorf("user ID must not be empty")
	}
	for i := range events {
		if err := events[i].Validate(); err != nil {
			return fmt.Errorf("invalid event %q: %w", events[i].ID, err)
		}
	}
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO timeline_events (user_id, id, type, ts_ms, summary, items, severity, event_ref)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			type = excluded.type,
			ts_ms = excluded.ts_ms,
			summary = excluded.summary,
			items = excluded.items,
			severity = excluded.severity,
			event_ref = excluded.event_ref
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		items := e.Items
		if items == nil {
			items = []string{}
		}
		itemsJSON, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("failed to marshal items: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, userID, e.ID, string(e.Type), e.Timestamp.UnixMilli(),
			e.Summary, string(itemsJSON), e.Severity, e.EventRef); err != nil {
			return fmt.Errorf("failed to save event %q: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}
	return nil
}

// FindEvents returns a user's events with start <= timestamp < end, ordered by
// timestamp then id. When types are given only those types are returned.
func (s *Storage) FindEvents(ctx context.Context, userID string, start, end time.Time, types ...models.EventType) ([]models.TimelineEvent, error) {
	query := `
		SELECT id, type, ts_ms, summary, items, severity, event_ref
		FROM timeline_events
		WHERE user_id = ? AND ts_ms >= ? AND ts_ms < ?`
	args := []any{userID, start.UnixMilli(), end.UnixMilli()}

	if len(types) > 0 {
		placeholders := make([]string, len(types))
		for i, t := range types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		query += " AND type IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY ts_ms ASC, id ASC"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.TimelineEvent{}
	for rows.Next() {
		var (
			e         models.TimelineEvent
			eventType string
			tsMs      int64
			itemsJSON string
		)
		if err := rows.Scan(&e.ID, &eventType, &tsMs, &e.Summary, &itemsJSON, &e.Severity, &e.EventRef); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(eventType)
		e.Timestamp = time.UnixMilli(tsMs).UTC()
		if err := json.Unmarshal([]byte(itemsJSON), &e.Items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal items of event %q: %w", e.ID, err)
		}
		if len(e.Items) == 0 {
			e.Items = nil
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// PruneEvents deletes events older than cutoff across all users and returns
// the number removed.
func (s *Storage) PruneEvents(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM timeline_events WHERE ts_ms < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned events: %w", err)
	}
	return n, nil
}

// ReplaceCorrelations atomically replaces the records a user has for exactly
// [start, end).
func (s *Storage) ReplaceCorrelations(ctx context.Context, userID string, start, end time.Time, records []models.CorrelationRecord) error {
	if userID == "" {
		return fmt.Errorf("user ID must not be empty")
	}
	if end.Before(start) {
		return fmt.Errorf("invalid range: end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return fmt.Errorf("invalid correlation %s %q→%q: %w", records[i].Type, records[i].ItemAName, records[i].ItemBName, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM correlations WHERE user_id = ? AND range_start_ms = ? AND range_end_ms = ?",
		userID, start.UnixMilli(), end.UnixMilli()); err != nil {
		return fmt.Errorf("failed to clear correlations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO correlations (
			user_id, pattern_id, type, item_a, item_b, coefficient, lag_hours,
			sample_size, confidence, range_start_ms, range_end_ms, computed_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		computedAt := r.ComputedAt
		if computedAt.IsZero() {
			computedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			userID,
			models.PatternID(r.Type, r.ItemAName, r.ItemBName),
			string(r.Type), r.ItemAName, r.ItemBName,
			r.Coefficient, r.LagHours, r.SampleSize, string(r.Confidence),
			start.UnixMilli(), end.UnixMilli(), computedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to save correlation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit correlations: %w", err)
	}
	return nil
}

// FindCorrelations returns a user's records whose range overlaps
// [start, end). When several ranges hold the same pattern the most recently
// computed record wins. Results are sorted by type and item names.
func (s *Storage) FindCorrelations(ctx context.Context, userID string, start, end time.Time) ([]models.CorrelationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_id, type, item_a, item_b, coefficient, lag_hours, sample_size,
			confidence, range_start_ms, range_end_ms, computed_at_ms
		FROM correlations
		WHERE user_id = ? AND range_start_ms < ? AND range_end_ms > ?
		ORDER BY computed_at_ms DESC, range_end_ms DESC, pattern_id ASC
	`, userID, end.UnixMilli(), start.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("failed to query correlations: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	records := []models.CorrelationRecord{}
	for rows.Next() {
		var (
			r                                  models.CorrelationRecord
			patternID, corrType, confidence    string
			rangeStartMs, rangeEndMs, computed int64
		)
		if err := rows.Scan(&patternID, &corrType, &r.ItemAName, &r.ItemBName, &r.Coefficient,
			&r.LagHours, &r.SampleSize, &confidence, &rangeStartMs, &rangeEndMs, &computed); err != nil {
			return nil, fmt.Errorf("failed to scan correlation: %w", err)
		}
		if seen[patternID] {
			continue
		}
		seen[patternID] = true

		r.Type = models.CorrelationType(corrType)
		r.Confidence = models.Confidence(confidence)
		r.RangeStart = time.UnixMilli(rangeStartMs).UTC()
		r.RangeEnd = time.UnixMilli(rangeEndMs).UTC()
		r.ComputedAt = time.UnixMilli(computed).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate correlations: %w", err)
	}

	sortRecords(records)
	return records, nil
}

// FindNotified returns the digest entries previously sent to a user, keyed by
// pattern ID.
func (s *Storage) FindNotified(ctx context.Context, userID string) (map[string]models.NotifiedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT pattern_id, frequency, sent_at_ms FROM notified_patterns WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notified patterns: %w", err)
	}
	defer rows.Close()

	notified := make(map[string]models.NotifiedRecord)
	for rows.Next() {
		var (
			r      models.NotifiedRecord
			sentMs int64
		)
		if err := rows.Scan(&r.PatternID, &r.Frequency, &sentMs); err != nil {
			return nil, fmt.Errorf("failed to scan notified pattern: %w", err)
		}
		r.SentAt = time.UnixMilli(sentMs).UTC()
		notified[r.PatternID] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notified patterns: %w", err)
	}
	return notified, nil
}

// SaveNotified upserts digest entries for a user.
func (s *Storage) SaveNotified(ctx context.Context, userID string, records []models.NotifiedRecord) error {
	if userID == "" {
		return fmt.Errorf("user ID must not be empty")
	}
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notified_patterns (user_id, pattern_id, frequency, sent_at_ms)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, pattern_id) DO UPDATE SET
			frequency = excluded.frequency,
			sent_at_ms = excluded.sent_at_ms
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.PatternID == "" {
			return fmt.Errorf("notified pattern ID must not be empty")
		}
		if _, err := stmt.ExecContext(ctx, userID, r.PatternID, r.Frequency, r.SentAt.UnixMilli()); err != nil {
			return fmt.Errorf("failed to save notified pattern %q: %w", r.PatternID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notified patterns: %w", err)
	}
	return nil
}

// sortRecords orders records by legend type order, then item names.
func sortRecords(records []models.CorrelationRecord) {
	rank := make(map[models.CorrelationType]int, len(models.CorrelationTypes))
	for i, t := range models.CorrelationTypes {
		rank[t] = i
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if rank[a.Type] != rank[b.Type] {
			return rank[a.Type] < rank[b.Type]
		}
		if an, bn := models.NormalizeName(a.ItemAName), models.NormalizeName(b.ItemAName); an != bn {
			return an < bn
		}
		return models.NormalizeName(a.ItemBName) < models.NormalizeName(b.ItemBName)
	})
}
