package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/models"
)

// GetMemo returns the stored body or apperr.ErrNotFound.
func (db *DB) GetMemo(ctx context.Context, windowID string, year int) (models.Memo, error) {
	m := models.Memo{WindowID: windowID, Year: year}
	err := db.conn.QueryRowContext(ctx, `
		SELECT body, updated_at FROM memos
		WHERE user_id = ? AND year = ? AND window_id = ?
	`, db.userID, year, windowID).Scan(&m.Body, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Memo{}, apperr.ErrNotFound
		}
		return models.Memo{}, fmt.Errorf("sqlstore: get memo: %w", err)
	}
	return m, nil
}

// PutMemo inserts or replaces a memo body.
func (db *DB) PutMemo(ctx context.Context, m models.Memo) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO memos (user_id, year, window_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, year, window_id) DO UPDATE SET
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, db.userID, m.Year, m.WindowID, m.Body, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("sqlstore: put memo: %w", err)
	}
	return nil
}

// DeleteMemo removes a memo if present.
func (db *DB) DeleteMemo(ctx context.Context, windowID string, year int) error {
	_, err := db.conn.ExecContext(ctx, `
		DELETE FROM memos WHERE user_id = ? AND year = ? AND window_id = ?
	`, db.userID, year, windowID)
	if err != nil {
		return fmt.Errorf("sqlstore: delete memo: %w", err)
	}
	return nil
}

// ListMemos returns every memo stored for a year.
func (db *DB) ListMemos(ctx context.Context, year int) ([]models.Memo, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT window_id, body, updated_at FROM memos
		WHERE user_id = ? AND year = ?
	`, db.userID, year)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list memos: %w", err)
	}
	defer rows.Close()

	var out []models.Memo
	for rows.Next() {
		m := models.Memo{Year: year}
		if err := rows.Scan(&m.WindowID, &m.Body, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
