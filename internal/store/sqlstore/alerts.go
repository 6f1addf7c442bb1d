package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptopulse/internal/model"
)

// Alerts implements model.AlertStore.
type Alerts struct{ *Store }

// Alerts returns the alert store view of s.
func (s *Store) Alerts() Alerts { return Alerts{s} }

type alertRow struct {
	ID              string          `db:"id"`
	UserID          string          `db:"user_id"`
	Asset           string          `db:"asset"`
	Timeframe       sql.NullString  `db:"timeframe"`
	AlertType       string          `db:"alert_type"`
	TargetPrice     sql.NullFloat64 `db:"target_price"`
	Operator        sql.NullString  `db:"operator"`
	IsRecurring     bool            `db:"is_recurring"`
	LastTriggeredAt *int64          `db:"last_triggered_at"`
	Status          string          `db:"status"`
	ConditionText   sql.NullString  `db:"condition_text"`
	CreatedAt       int64           `db:"created_at"`
}

const alertColumns = `id, user_id, asset, timeframe, alert_type, target_price, operator,
	is_recurring, last_triggered_at, status, condition_text, created_at`

func (r alertRow) toModel() model.Alert {
	a := model.Alert{
		ID:              r.ID,
		UserID:          r.UserID,
		Asset:           r.Asset,
		Timeframe:       model.Timeframe(r.Timeframe.String),
		AlertType:       r.AlertType,
		Operator:        model.Operator(r.Operator.String),
		IsRecurring:     r.IsRecurring,
		LastTriggeredAt: nullTime(r.LastTriggeredAt),
		Status:          model.AlertStatus(r.Status),
		ConditionText:   r.ConditionText.String,
		CreatedAt:       fromMillis(r.CreatedAt),
	}
	if r.TargetPrice.Valid {
		v := r.TargetPrice.Float64
		a.TargetPrice = &v
	}
	return a
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// ListActive returns every ACTIVE alert, oldest first.
func (s Alerts) ListActive(ctx context.Context) ([]model.Alert, error) {
	var rows []alertRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+alertColumns+`
		FROM alerts
		WHERE status = ?
		ORDER BY created_at ASC
	`), string(model.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list active alerts: %w", err)
	}
	out := make([]model.Alert, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// ListByUser returns the user's ACTIVE alerts, newest first.
func (s Alerts) ListByUser(ctx context.Context, userID string) ([]model.Alert, error) {
	var rows []alertRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT `+alertColumns+`
		FROM alerts
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC
	`), userID, string(model.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list alerts for %s: %w", userID, err)
	}
	out := make([]model.Alert, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// Create inserts a as a new ACTIVE alert with a fresh id.
func (s Alerts) Create(ctx context.Context, a model.Alert) (model.Alert, error) {
	if err := a.Validate(); err != nil {
		return model.Alert{}, err
	}
	a.ID = uuid.NewString()
	a.Status = model.StatusActive
	a.LastTriggeredAt = nil
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	var target sql.NullFloat64
	if a.TargetPrice != nil {
		target = sql.NullFloat64{Float64: *a.TargetPrice, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO alerts (`+alertColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)
	`), a.ID, a.UserID, a.Asset, nullString(string(a.Timeframe)), a.AlertType, target,
		nullString(string(a.Operator)), a.IsRecurring, string(a.Status), nullString(a.ConditionText),
		toMillis(a.CreatedAt))
	if err != nil {
		return model.Alert{}, fmt.Errorf("sqlstore: create alert: %w", err)
	}
	return a, nil
}

// Delete marks an ACTIVE alert DELETED.
func (s Alerts) Delete(ctx context.Context, alertID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.q(`
		UPDATE alerts SET status = ? WHERE id = ? AND status = ?
	`), string(model.StatusDeleted), alertID, string(model.StatusActive))
	if err != nil {
		return false, fmt.Errorf("sqlstore: delete alert %s: %w", alertID, err)
	}
	return affected(res)
}

// UpdateAfterTrigger claims a fire for the alert as it was read. The row must
// still be ACTIVE with the same last_triggered_at, so concurrent matchers
// cannot both claim it.
func (s Alerts) UpdateAfterTrigger(ctx context.Context, a model.Alert, triggerTime time.Time) (bool, error) {
	status := model.StatusTriggered
	if a.IsRecurring {
		status = model.StatusActive
	}
	query, args := whereLastTriggered(`
		UPDATE alerts SET status = ?, last_triggered_at = ?
		WHERE id = ? AND status = ?`,
		a.LastTriggeredAt,
		string(status), toMillis(triggerTime), a.ID, string(model.StatusActive))

	res, err := s.db.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return false, fmt.Errorf("sqlstore: claim alert %s: %w", a.ID, err)
	}
	return affected(res)
}

// UndoTrigger restores the status and last_triggered_at seen in a, provided
// the row still carries the claim made with triggerTime.
func (s Alerts) UndoTrigger(ctx context.Context, a model.Alert, triggerTime time.Time) error {
	claimed := model.StatusTriggered
	if a.IsRecurring {
		claimed = model.StatusActive
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		UPDATE alerts SET status = ?, last_triggered_at = ?
		WHERE id = ? AND status = ? AND last_triggered_at = ?
	`), string(model.StatusActive), nullMillis(a.LastTriggeredAt), a.ID, string(claimed), toMillis(triggerTime))
	if err != nil {
		return fmt.Errorf("sqlstore: undo claim on alert %s: %w", a.ID, err)
	}
	return nil
}

// Get returns one alert by id regardless of status.
func (s Alerts) Get(ctx context.Context, alertID string) (*model.Alert, error) {
	var row alertRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT `+alertColumns+` FROM alerts WHERE id = ?`), alertID)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get alert %s: %w", alertID, err)
	}
	a := row.toModel()
	return &a, nil
}

// whereLastTriggered appends a null-safe equality on last_triggered_at.
func whereLastTriggered(query string, last *time.Time, args ...any) (string, []any) {
	if last == nil {
		return query + ` AND last_triggered_at IS NULL`, args
	}
	return query + ` AND last_triggered_at = ?`, append(args, toMillis(*last))
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlstore: rows affected: %w", err)
	}
	return n > 0, nil
}
