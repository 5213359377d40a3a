package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/models"
)

// ListWindows returns the user's windows ordered by position.
func (db *DB) ListWindows(ctx context.Context) ([]models.Window, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, title, color, position, created_at
		FROM windows
		WHERE user_id = ?
		ORDER BY position, created_at
	`, db.userID)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list windows: %w", err)
	}
	defer rows.Close()

	var out []models.Window
	for rows.Next() {
		var w models.Window
		if err := rows.Scan(&w.ID, &w.Title, &w.Color, &w.Position, &w.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// CreateWindow inserts a window.
func (db *DB) CreateWindow(ctx context.Context, w models.Window) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO windows (id, user_id, title, color, position, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, w.ID, db.userID, w.Title, w.Color, w.Position, w.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperr.ErrAlreadyExists
		}
		return fmt.Errorf("sqlstore: create window: %w", err)
	}
	return nil
}

// UpdateWindow updates title, colour and position.
func (db *DB) UpdateWindow(ctx context.Context, w models.Window) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE windows SET title = ?, color = ?, position = ?
		WHERE user_id = ? AND id = ?
	`, w.Title, w.Color, w.Position, db.userID, w.ID)
	if err != nil {
		return fmt.Errorf("sqlstore: update window: %w", err)
	}
	return expectOne(res)
}

// DeleteWindow removes a window and its memos in one transaction.
func (db *DB) DeleteWindow(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.ExecContext(ctx, `DELETE FROM windows WHERE user_id = ? AND id = ?`, db.userID, id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete window: %w", err)
	}
	if err := expectOne(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM memos WHERE user_id = ? AND window_id = ?`, db.userID, id); err != nil {
		return fmt.Errorf("sqlstore: delete window memos: %w", err)
	}
	return tx.Commit()
}
