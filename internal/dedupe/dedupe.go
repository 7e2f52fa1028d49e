package dedupe

import (
	"context"
	"database/sql"
	"fmt"
)

// Tracker records regeneration submissions per asset so repeat requests are
// visible to operators instead of silently piling onto the queue.
type Tracker struct {
	db *sql.DB
}

// NewTracker creates a tracker and ensures its table exists.
func NewTracker(db *sql.DB) (*Tracker, error) {
	tracker := &Tracker{db: db}
	if err := tracker.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure dedupe table: %w", err)
	}
	return tracker, nil
}

func (t *Tracker) ensureTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS regenerate_dedupe (
			asset_id TEXT PRIMARY KEY,
			first_seen_at TIMESTAMPTZ DEFAULT NOW(),
			last_seen_at TIMESTAMPTZ DEFAULT NOW(),
			seen_count INTEGER DEFAULT 1
		)
	`
	if _, err := t.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create regenerate_dedupe table: %w", err)
	}
	return nil
}

// Record upserts a submission for the asset and returns the new seen count.
func (t *Tracker) Record(ctx context.Context, assetID string) (int, error) {
	query := `
		INSERT INTO regenerate_dedupe (asset_id, first_seen_at, last_seen_at, seen_count)
		VALUES ($1, NOW(), NOW(), 1)
		ON CONFLICT (asset_id) DO UPDATE
		SET last_seen_at = NOW(),
		    seen_count = regenerate_dedupe.seen_count + 1
		RETURNING seen_count
	`

	var seenCount int
	if err := t.db.QueryRowContext(ctx, query, assetID).Scan(&seenCount); err != nil {
		return 0, fmt.Errorf("failed to record dedupe: %w", err)
	}
	return seenCount, nil
}

// GetSeenCount returns how many times regeneration was requested for the
// asset; zero when never seen.
func (t *Tracker) GetSeenCount(ctx context.Context, assetID string) (int, error) {
	query := `SELECT seen_count FROM regenerate_dedupe WHERE asset_id = $1`

	var seenCount int
	err := t.db.QueryRowContext(ctx, query, assetID).Scan(&seenCount)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get seen count: %w", err)
	}
	return seenCount, nil
}
