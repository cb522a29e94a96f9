package mood

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const createMoodTableSQL = `
CREATE TABLE IF NOT EXISTS moods (
    user_id    TEXT PRIMARY KEY,
    valence    REAL NOT NULL,
    arousal    REAL NOT NULL,
    updated_at TEXT NOT NULL
);
`

// SQLiteStore persists one mood state per user.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a mood store using an existing SQLite DB connection.
// The moods table is created if it doesn't exist.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(createMoodTableSQL); err != nil {
		return nil, fmt.Errorf("create moods table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

var _ Provider = (*SQLiteStore)(nil)

// Resolve returns the stored mood for the user, or Baseline for a user with
// no history yet.
func (s *SQLiteStore) Resolve(ctx context.Context, userID string) (State, error) {
	var st State
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT valence, arousal, updated_at FROM moods WHERE user_id = ?`,
		userID,
	).Scan(&st.Valence, &st.Arousal, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Baseline, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load mood for %s: %w", userID, err)
	}

	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return st, nil
}

// Put stores the user's mood, replacing any previous state.
func (s *SQLiteStore) Put(ctx context.Context, userID string, st State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO moods (user_id, valence, arousal, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			valence = excluded.valence,
			arousal = excluded.arousal,
			updated_at = excluded.updated_at`,
		userID, st.Valence, st.Arousal, st.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store mood for %s: %w", userID, err)
	}
	return nil
}
