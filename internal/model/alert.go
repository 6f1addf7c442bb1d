package model

import (
	"fmt"
	"strings"
	"time"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusActive    AlertStatus = "ACTIVE"
	StatusTriggered AlertStatus = "TRIGGERED"
	StatusDeleted   AlertStatus = "DELETED"
)

// Operator is the comparison used by price alerts.
type Operator string

const (
	OpAbove Operator = "ABOVE"
	OpBelow Operator = "BELOW"
)

// ParseOperator accepts symbolic and word forms (">", ">=", "above", "over", "<", "below", ...).
func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case ">", ">=", "ABOVE", "OVER", "GT", "GTE":
		return OpAbove, nil
	case "<", "<=", "BELOW", "UNDER", "LT", "LTE":
		return OpBelow, nil
	}
	return "", fmt.Errorf("unsupported operator %q", s)
}

// AlertTypePriceTarget marks a price-level alert; any other AlertType is a SignalType.
const AlertTypePriceTarget = "PRICE_TARGET"

// Alert is a user subscription, either to a price level or to a detected signal.
type Alert struct {
	ID              string
	UserID          string
	Asset           string
	Timeframe       Timeframe // empty for price alerts
	AlertType       string
	TargetPrice     *float64
	Operator        Operator // empty for pattern alerts
	IsRecurring     bool
	LastTriggeredAt *time.Time
	Status          AlertStatus
	ConditionText   string
	CreatedAt       time.Time
}

// IsPrice reports whether the alert compares the live price to a target.
func (a Alert) IsPrice() bool {
	return a.AlertType == AlertTypePriceTarget
}

// SignalType returns the pattern the alert waits for.
func (a Alert) SignalType() SignalType {
	return SignalType(a.AlertType)
}

// Validate checks the fields required for the alert's kind.
func (a Alert) Validate() error {
	if a.UserID == "" {
		return fmt.Errorf("alert: user_id required")
	}
	if a.Asset == "" {
		return fmt.Errorf("alert: asset required")
	}
	if a.IsPrice() {
		if a.TargetPrice == nil || *a.TargetPrice <= 0 {
			return fmt.Errorf("alert: price alert needs a positive target_price")
		}
		if a.Operator != OpAbove && a.Operator != OpBelow {
			return fmt.Errorf("alert: price alert needs operator ABOVE or BELOW")
		}
		return nil
	}
	if !a.SignalType().Known() {
		return fmt.Errorf("alert: unknown alert_type %q", a.AlertType)
	}
	if !a.Timeframe.Valid() {
		return fmt.Errorf("alert: pattern alert needs a valid timeframe, got %q", a.Timeframe)
	}
	return nil
}

// User maps an account to its messaging endpoints.
type User struct {
	ID             string
	TelegramChatID string
	WebhookURL     string
	CreatedAt      time.Time
}

// Endpoint returns the delivery address: the linked Telegram chat, else the webhook URL.
func (u User) Endpoint() string {
	if u.TelegramChatID != "" {
		return u.TelegramChatID
	}
	return u.WebhookURL
}
