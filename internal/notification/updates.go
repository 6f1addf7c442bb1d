package notification

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"cryptopulse/internal/model"
)

// PhraseAlerts creates an alert from a free-text phrase.
type PhraseAlerts interface {
	CreateFromPhrase(ctx context.Context, userID, phrase string) (model.Alert, error)
}

// UpdateSource is the getUpdates side of the Bot API.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error)
}

// UpdatesListener handles bot commands:
//
//	/start <uuid>, /link <uuid>  link this chat to an account
//	/help                        usage
//	anything else                parsed as an alert phrase for the linked account
type UpdatesListener struct {
	src     UpdateSource
	reply   Sender
	users   model.UserStore
	alerts  PhraseAlerts
	timeout time.Duration
	backoff time.Duration
}

// NewUpdatesListener wires the listener.
func NewUpdatesListener(src UpdateSource, reply Sender, users model.UserStore, alerts PhraseAlerts) *UpdatesListener {
	return &UpdatesListener{
		src:     src,
		reply:   reply,
		users:   users,
		alerts:  alerts,
		timeout: 30 * time.Second,
		backoff: 5 * time.Second,
	}
}

const helpText = `CryptoPulse alerts

Link this chat: /start <your user id>
Then send a phrase, for example:
  BTC above 60k
  ETH 50 MA crosses above 200 MA on 4h
  SOL volume surge 1h every time`

// Run long-polls until ctx is done.
func (l *UpdatesListener) Run(ctx context.Context) {
	var offset int64
	log.Printf("[telegram] update listener started")
	for {
		updates, err := l.src.GetUpdates(ctx, offset, l.timeout)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Printf("[telegram] getUpdates: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.backoff):
			}
			continue
		}
		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
				continue
			}
			chatID := strconv.FormatInt(u.Message.Chat.ID, 10)
			text := l.Handle(ctx, chatID, u.Message.Text)
			if text == "" {
				continue
			}
			if err := l.reply.Send(ctx, chatID, text); err != nil {
				log.Printf("[telegram] reply to %s: %v", chatID, err)
			}
		}
	}
}

// Handle processes one message and returns the reply text.
func (l *UpdatesListener) Handle(ctx context.Context, chatID, text string) string {
	text = strings.TrimSpace(text)
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	cmd := strings.ToLower(fields[0])
	// "/start@MyBot" in groups.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/help":
		return helpText
	case "/start", "/link":
		if len(fields) < 2 {
			return helpText
		}
		return l.link(ctx, chatID, fields[1])
	}
	if strings.HasPrefix(cmd, "/") {
		return "Unknown command. " + helpText
	}

	u, err := l.users.UserByChatID(ctx, chatID)
	if err != nil {
		log.Printf("[telegram] lookup chat %s: %v", chatID, err)
		return "Something went wrong, try again later."
	}
	if u == nil {
		return "This chat is not linked yet. Send /start <your user id> first."
	}
	a, err := l.alerts.CreateFromPhrase(ctx, u.ID, text)
	if err != nil {
		return fmt.Sprintf("Could not create alert: %v", err)
	}
	return "Alert created: " + describe(a)
}

func (l *UpdatesListener) link(ctx context.Context, chatID, userID string) string {
	if _, err := uuid.Parse(userID); err != nil {
		return "That does not look like a user id."
	}
	ok, err := l.users.LinkTelegram(ctx, userID, chatID)
	if err != nil {
		log.Printf("[telegram] link %s -> %s: %v", chatID, userID, err)
		return "Something went wrong, try again later."
	}
	if !ok {
		return "Unknown user id."
	}
	log.Printf("[telegram] linked chat %s to user %s", chatID, userID)
	return "Chat linked. You will receive your alerts here."
}

func describe(a model.Alert) string {
	mode := "once"
	if a.IsRecurring {
		mode = "every time"
	}
	if a.IsPrice() && a.TargetPrice != nil {
		return fmt.Sprintf("%s %s %s (%s)", a.Asset, strings.ToLower(string(a.Operator)),
			strconv.FormatFloat(*a.TargetPrice, 'f', -1, 64), mode)
	}
	return fmt.Sprintf("%s %s on %s (%s)", a.Asset, a.SignalType().Readable(), a.Timeframe, mode)
}
