package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These decouple the detector, matcher and API from concrete market data,
// storage and delivery implementations.

// CandleSource supplies OHLCV history.
type CandleSource interface {
	// FetchCandles returns up to limit candles, oldest first.
	// The last element may still be forming.
	FetchCandles(ctx context.Context, asset string, tf Timeframe, limit int) ([]Candle, error)
}

// PriceSource supplies the live spot price of an asset.
type PriceSource interface {
	FetchPrice(ctx context.Context, asset string) (float64, error)
}

// SignalStore keeps the latest detection per (asset, timeframe, signal type).
type SignalStore interface {
	// Upsert inserts the event or overwrites DetectedAt on the existing row.
	Upsert(ctx context.Context, ev SignalEvent) error

	// Find returns the row for the key if it was detected at or after since.
	// Returns nil, nil when there is none.
	Find(ctx context.Context, asset string, tf Timeframe, st SignalType, since time.Time) (*SignalEvent, error)
}

// AlertStore persists user alerts.
type AlertStore interface {
	// ListActive returns every alert with status ACTIVE.
	ListActive(ctx context.Context) ([]Alert, error)

	// UpdateAfterTrigger records a fire for an alert read as a. It only applies
	// while the row is still ACTIVE with the LastTriggeredAt seen in a.
	// Recurring alerts get last_triggered_at=triggerTime, one-shot alerts become TRIGGERED.
	// Returns false when another writer got there first.
	UpdateAfterTrigger(ctx context.Context, a Alert, triggerTime time.Time) (bool, error)

	// UndoTrigger reverts a successful UpdateAfterTrigger(a, triggerTime) so the
	// alert is evaluated again next cycle.
	UndoTrigger(ctx context.Context, a Alert, triggerTime time.Time) error

	// Create inserts a new ACTIVE alert and returns it with ID and CreatedAt set.
	Create(ctx context.Context, a Alert) (Alert, error)

	// ListByUser returns the user's ACTIVE alerts, newest first.
	ListByUser(ctx context.Context, userID string) ([]Alert, error)

	// Delete marks an ACTIVE alert DELETED. Returns false when no ACTIVE alert has that id.
	Delete(ctx context.Context, alertID string) (bool, error)
}

// EndpointResolver maps a user to a messaging endpoint.
type EndpointResolver interface {
	// ResolveEndpoint returns "" with a nil error when the user has no endpoint.
	ResolveEndpoint(ctx context.Context, userID string) (string, error)
}

// UserStore manages accounts and their Telegram link.
type UserStore interface {
	EndpointResolver

	// CreateUser registers a new account. webhookURL may be empty.
	CreateUser(ctx context.Context, webhookURL string) (User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
	UserByChatID(ctx context.Context, chatID string) (*User, error)

	// LinkTelegram sets the chat id on an existing user. Returns false if the user does not exist.
	LinkTelegram(ctx context.Context, userID, chatID string) (bool, error)
}

// Notifier delivers a text message to an endpoint.
type Notifier interface {
	Send(ctx context.Context, endpoint, text string) error
}
