package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const telegramAPI = "https://api.telegram.org"

// Telegram is a Bot API client: sendMessage for alerts, getUpdates for the
// command listener.
type Telegram struct {
	botToken string
	baseURL  string
	client   *http.Client
}

// NewTelegram creates a client for the bot token from @BotFather.
func NewTelegram(botToken string) *Telegram {
	return &Telegram{
		botToken: botToken,
		baseURL:  telegramAPI,
		// getUpdates long-polls up to 30s.
		client: &http.Client{Timeout: 40 * time.Second},
	}
}

// WithBaseURL points the client at another API root (tests, self-hosted Bot API).
func (t *Telegram) WithBaseURL(u string) *Telegram {
	t.baseURL = u
	return t
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

func (t *Telegram) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: %s: marshal: %w", method, err)
	}
	u := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: %s: create request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the token; keep it out of logs.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	var r apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return fmt.Errorf("telegram: %s: status %d: decode: %w", method, resp.StatusCode, err)
	}
	if !r.OK {
		return fmt.Errorf("telegram: %s: %d %s", method, r.ErrorCode, r.Description)
	}
	if out != nil {
		if err := json.Unmarshal(r.Result, out); err != nil {
			return fmt.Errorf("telegram: %s: decode result: %w", method, err)
		}
	}
	return nil
}

// Send posts text to a chat. Implements Sender.
func (t *Telegram) Send(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q: %w", chatID, err)
	}
	err = t.call(ctx, "sendMessage", map[string]any{
		"chat_id":    id,
		"text":       escapeMarkdown(text),
		"parse_mode": "MarkdownV2",
	}, nil)
	if err != nil {
		return err
	}
	log.Printf("[telegram] sent message to %s", chatID)
	return nil
}

// Update is the subset of a Bot API update the listener handles.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an incoming chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	Text      string `json:"text"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// GetUpdates long-polls for updates after offset.
func (t *Telegram) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	var out []Update
	err := t.call(ctx, "getUpdates", map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}, &out)
	return out, err
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2.
func escapeMarkdown(s string) string {
	const specials = "_*[]()~`>#+-=|{}.!\\"
	var buf bytes.Buffer
	for _, r := range s {
		if r < 128 && bytes.IndexByte([]byte(specials), byte(r)) >= 0 {
			buf.WriteByte('\\')
		}
		buf.WriteRune(r)
	}
	return buf.String()
}
