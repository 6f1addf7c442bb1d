package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"cryptopulse/internal/model"
)

// Users implements model.UserStore.
type Users struct{ *Store }

// Users returns the user store view of s.
func (s *Store) Users() Users { return Users{s} }

type userRow struct {
	ID             string         `db:"id"`
	TelegramChatID sql.NullString `db:"telegram_chat_id"`
	WebhookURL     sql.NullString `db:"webhook_url"`
	CreatedAt      int64          `db:"created_at"`
}

func (r userRow) toModel() model.User {
	return model.User{
		ID:             r.ID,
		TelegramChatID: r.TelegramChatID.String,
		WebhookURL:     r.WebhookURL.String,
		CreatedAt:      fromMillis(r.CreatedAt),
	}
}

// CreateUser registers a user with a fresh uuid.
func (s Users) CreateUser(ctx context.Context, webhookURL string) (model.User, error) {
	u := model.User{
		ID:         uuid.NewString(),
		WebhookURL: webhookURL,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO users (id, telegram_chat_id, webhook_url, created_at)
		VALUES (?, NULL, ?, ?)
	`), u.ID, nullString(webhookURL), toMillis(u.CreatedAt))
	if err != nil {
		return model.User{}, fmt.Errorf("sqlstore: create user: %w", err)
	}
	return u, nil
}

// GetUser returns the user or nil when unknown.
func (s Users) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.getBy(ctx, "id", userID)
}

// UserByChatID returns the user linked to a Telegram chat, or nil.
func (s Users) UserByChatID(ctx context.Context, chatID string) (*model.User, error) {
	return s.getBy(ctx, "telegram_chat_id", chatID)
}

func (s Users) getBy(ctx context.Context, column, value string) (*model.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, s.q(`
		SELECT id, telegram_chat_id, webhook_url, created_at FROM users WHERE `+column+` = ?
	`), value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlstore: get user by %s: %w", column, err)
	}
	u := row.toModel()
	return &u, nil
}

// LinkTelegram attaches chatID to the user. A chat already linked to another
// user is moved over.
func (s Users) LinkTelegram(ctx context.Context, userID, chatID string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlstore: link telegram: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE users SET telegram_chat_id = NULL WHERE telegram_chat_id = ? AND id <> ?
	`), chatID, userID); err != nil {
		return false, fmt.Errorf("sqlstore: link telegram: release chat: %w", err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE users SET telegram_chat_id = ? WHERE id = ?
	`), chatID, userID)
	if err != nil {
		return false, fmt.Errorf("sqlstore: link telegram: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("sqlstore: link telegram: commit: %w", err)
	}
	return true, nil
}

// ResolveEndpoint returns the user's chat id, else webhook URL, else "".
func (s Users) ResolveEndpoint(ctx context.Context, userID string) (string, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", nil
	}
	return u.Endpoint(), nil
}
