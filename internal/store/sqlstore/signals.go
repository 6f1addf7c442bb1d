package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptopulse/internal/model"
)

// Signals implements model.SignalStore.
type Signals struct{ *Store }

// Signals returns the signal store view of s.
func (s *Store) Signals() Signals { return Signals{s} }

type signalRow struct {
	Asset      string `db:"asset"`
	Timeframe  string `db:"timeframe"`
	SignalType string `db:"signal_type"`
	DetectedAt int64  `db:"detected_at"`
}

// Upsert keeps one row per (asset, timeframe, signal_type), overwriting detected_at.
func (s Signals) Upsert(ctx context.Context, ev model.SignalEvent) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO signals (asset, timeframe, signal_type, detected_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (asset, timeframe, signal_type)
		DO UPDATE SET detected_at = excluded.detected_at
	`), ev.Asset, string(ev.Timeframe), string(ev.Type), toMillis(ev.DetectedAt))
	if err != nil {
		return fmt.Errorf("sqlstore: upsert signal %s %s/%s: %w", ev.Type, ev.Asset, ev.Timeframe, err)
	}
	return nil
}

// Find returns the key's row when detected_at >= since, else nil.
func (s Signals) Find(ctx context.Context, asset string, tf model.Timeframe, st model.SignalType, since time.Time) (*model.SignalEvent, error) {
	var row signalRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT asset, timeframe, signal_type, detected_at
		FROM signals
		WHERE asset = ? AND timeframe = ? AND signal_type = ? AND detected_at >= ?
	`), asset, string(tf), string(st), toMillis(since))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find signal %s %s/%s: %w", st, asset, tf, err)
	}
	return &model.SignalEvent{
		Asset:      row.Asset,
		Timeframe:  model.Timeframe(row.Timeframe),
		Type:       model.SignalType(row.SignalType),
		DetectedAt: fromMillis(row.DetectedAt),
	}, nil
}

// Recent lists signals detected at or after since, newest first.
func (s Signals) Recent(ctx context.Context, since time.Time, limit int) ([]model.SignalEvent, error) {
	var rows []signalRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT asset, timeframe, signal_type, detected_at
		FROM signals
		WHERE detected_at >= ?
		ORDER BY detected_at DESC
		LIMIT ?
	`), toMillis(since), limit)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: recent signals: %w", err)
	}
	out := make([]model.SignalEvent, len(rows))
	for i, r := range rows {
		out[i] = model.SignalEvent{
			Asset:      r.Asset,
			Timeframe:  model.Timeframe(r.Timeframe),
			Type:       model.SignalType(r.SignalType),
			DetectedAt: fromMillis(r.DetectedAt),
		}
	}
	return out, nil
}
