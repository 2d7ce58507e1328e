// Package archive persists finished collection sessions to sqlite so
// callers can serve repeat requests without re-scraping.
package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"reviewharvest-backend/services/collector"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

type Store struct {
	db *sql.DB
}

// NewStore wraps an opened database. The caller applies Schema (directly
// or through a migration layer) before first use.
func NewStore(database *sql.DB) Store {
	return Store{db: database}
}

// Open opens (or creates) a sqlite archive at path and applies the schema.
func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	// sqlite performs poorly with concurrent writers, see
	// https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	if _, err := database.Exec("PRAGMA journal_mode=WAL"); err != nil {
		database.Close()
		return Store{}, err
	}
	if _, err := database.Exec(Schema); err != nil {
		database.Close()
		return Store{}, err
	}
	return Store{db: database}, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

// Save writes a session and its unique reviews in one transaction. Saving
// the same session id again replaces the previous record.
func (s Store) Save(ctx context.Context, result *collector.ComprehensiveCollectionResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`delete from collection_sessions where id = ?`, result.SessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`delete from collected_reviews where session_id = ?`, result.SessionID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`insert into collection_sessions
			(id, url, status, total_collected, total_unique, duplicates_removed,
			 collection_time_ms, degraded, truncated_by_timeout, metadata, created_at)
		 values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.SessionID,
		result.URL,
		result.Status,
		result.Metadata.TotalCollected,
		result.Metadata.TotalUnique,
		result.Metadata.DuplicatesRemoved,
		result.Metadata.CollectionTimeMs,
		boolInt(result.Metadata.Degraded),
		boolInt(result.Metadata.TruncatedByTimeout),
		string(metadata),
		time.Now().Unix(),
	)
	if err != nil {
		return err
	}

	for i, review := range result.UniqueReviews {
		var rating any
		if review.Rating != nil {
			rating = *review.Rating
		}
		_, err = tx.ExecContext(ctx,
			`insert into collected_reviews
				(session_id, review_id, author, rating, body, review_date, kept_from, position)
			 values (?, ?, ?, ?, ?, ?, ?, ?)`,
			result.SessionID,
			review.ID,
			review.Author,
			rating,
			review.Text,
			review.Date,
			string(result.KeptBy[review.ID]),
			i,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SessionSummary is the archived header of one session.
type SessionSummary struct {
	ID        string
	URL       string
	Status    string
	Metadata  collector.CollectionMetadata
	CreatedAt time.Time
}

// Latest returns the most recently archived session for a url, or
// sql.ErrNoRows when the url has never been collected.
func (s Store) Latest(ctx context.Context, url string) (SessionSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, url, status, metadata, created_at
		 from collection_sessions
		 where url = ?
		 order by created_at desc
		 limit 1`, url)
	return scanSummary(row)
}

// List returns archived session headers, newest first.
func (s Store) List(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select id, url, status, metadata, created_at
		 from collection_sessions
		 order by created_at desc
		 limit ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

// Reviews returns a session's unique reviews in their deduplicated
// order, with each review's winning category.
func (s Store) Reviews(ctx context.Context, sessionID string) ([]collector.RawReview, map[string]collector.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`select review_id, author, rating, body, review_date, kept_from
		 from collected_reviews
		 where session_id = ?
		 order by position`, sessionID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var reviews []collector.RawReview
	keptBy := map[string]collector.Category{}
	for rows.Next() {
		var r collector.RawReview
		var rating sql.NullInt64
		var keptFrom string
		if err := rows.Scan(&r.ID, &r.Author, &rating, &r.Text, &r.Date, &keptFrom); err != nil {
			return nil, nil, err
		}
		if rating.Valid {
			value := int(rating.Int64)
			r.Rating = &value
		}
		reviews = append(reviews, r)
		keptBy[r.ID] = collector.Category(keptFrom)
	}
	return reviews, keptBy, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (SessionSummary, error) {
	var summary SessionSummary
	var metadata string
	var createdAt int64
	if err := row.Scan(&summary.ID, &summary.URL, &summary.Status, &metadata, &createdAt); err != nil {
		return SessionSummary{}, err
	}
	if err := json.Unmarshal([]byte(metadata), &summary.Metadata); err != nil {
		return SessionSummary{}, err
	}
	summary.CreatedAt = time.Unix(createdAt, 0)
	return summary, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
