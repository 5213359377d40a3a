package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/models"
)

const planColumns = `id, window_id, title, note, date, end_date, all_day, done, created_at, updated_at`

// ListPlans returns plans matching f, ordered by date.
func (db *DB) ListPlans(ctx context.Context, f models.PlanFilter) ([]models.Plan, error) {
	where := []string{"user_id = ?"}
	args := []any{db.userID}
	if f.WindowID != "" && f.WindowID != models.AllWindowID {
		where = append(where, "window_id = ?")
		args = append(args, f.WindowID)
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, f.To.UTC())
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE `+strings.Join(where, " AND ")+` ORDER BY date, created_at`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list plans: %w", err)
	}
	defer rows.Close()

	var out []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPlan returns one plan or apperr.ErrNotFound.
func (db *DB) GetPlan(ctx context.Context, id string) (models.Plan, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = ? AND id = ?`, db.userID, id)
	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Plan{}, apperr.ErrNotFound
		}
		return models.Plan{}, fmt.Errorf("sqlstore: get plan: %w", err)
	}
	return p, nil
}

// PutPlan inserts or replaces a plan.
func (db *DB) PutPlan(ctx context.Context, p models.Plan) error {
	var end any
	if !p.EndDate.IsZero() {
		end = p.EndDate.UTC()
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, id) DO UPDATE SET
			window_id  = excluded.window_id,
			title      = excluded.title,
			note       = excluded.note,
			date       = excluded.date,
			end_date   = excluded.end_date,
			all_day    = excluded.all_day,
			done       = excluded.done,
			updated_at = excluded.updated_at
	`, p.ID, p.WindowID, p.Title, p.Note, p.Date.UTC(), end, p.AllDay, p.Done, p.CreatedAt, p.UpdatedAt, db.userID)
	if err != nil {
		return fmt.Errorf("sqlstore: put plan: %w", err)
	}
	return nil
}

// DeletePlan removes a plan.
func (db *DB) DeletePlan(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM plans WHERE user_id = ? AND id = ?`, db.userID, id)
	if err != nil {
		return fmt.Errorf("sqlstore: delete plan: %w", err)
	}
	return expectOne(res)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(s scanner) (models.Plan, error) {
	var (
		p   models.Plan
		end sql.NullTime
	)
	if err := s.Scan(&p.ID, &p.WindowID, &p.Title, &p.Note, &p.Date, &end,
		&p.AllDay, &p.Done, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Plan{}, err
	}
	if end.Valid {
		p.EndDate = end.Time
	}
	return p, nil
}
