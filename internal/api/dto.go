package api

import (
	"time"

	"cryptopulse/internal/model"
)

// CreateAlertRequest is the body of POST /api/create-alert.
type CreateAlertRequest struct {
	UserID      string `json:"user_id" binding:"required"`
	AlertPhrase string `json:"alert_phrase" binding:"required"`
	IsRecurring bool   `json:"is_recurring"`
}

// AlertFormRequest is the body of POST /api/alerts.
type AlertFormRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	Asset       string   `json:"asset" binding:"required"`
	AlertType   string   `json:"alert_type"`
	Timeframe   string   `json:"timeframe"`
	TargetPrice *float64 `json:"target_price"`
	Operator    string   `json:"operator"`
	IsRecurring bool     `json:"is_recurring"`
}

// DeleteAlertRequest is the body of POST /api/delete-alert.
type DeleteAlertRequest struct {
	AlertID string `json:"alert_id" binding:"required"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	WebhookURL string `json:"webhook_url" binding:"omitempty,url"`
}

// ErrorResponse is returned for every 4xx/5xx.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// AlertResponse is the JSON view of an alert.
type AlertResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Asset           string     `json:"asset"`
	Timeframe       string     `json:"timeframe,omitempty"`
	AlertType       string     `json:"alert_type"`
	TargetPrice     *float64   `json:"target_price,omitempty"`
	Operator        string     `json:"operator,omitempty"`
	IsRecurring     bool       `json:"is_recurring"`
	Status          string     `json:"status"`
	ConditionText   string     `json:"condition_text,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toAlertResponse(a model.Alert) AlertResponse {
	return AlertResponse{
		ID:              a.ID,
		UserID:          a.UserID,
		Asset:           a.Asset,
		Timeframe:       string(a.Timeframe),
		AlertType:       a.AlertType,
		TargetPrice:     a.TargetPrice,
		Operator:        string(a.Operator),
		IsRecurring:     a.IsRecurring,
		Status:          string(a.Status),
		ConditionText:   a.ConditionText,
		LastTriggeredAt: a.LastTriggeredAt,
		CreatedAt:       a.CreatedAt,
	}
}

// CreateAlertResponse is returned with 201.
type CreateAlertResponse struct {
	Message string        `json:"message"`
	Alert   AlertResponse `json:"alert"`
}

// AlertsResponse lists alerts.
type AlertsResponse struct {
	Alerts []AlertResponse `json:"alerts"`
}

// UserResponse is returned by POST /api/users.
type UserResponse struct {
	UserID       string `json:"user_id"`
	TelegramLink string `json:"telegram_link,omitempty"`
}

// SignalsResponse lists recent detections.
type SignalsResponse struct {
	Signals []model.SignalEvent `json:"signals"`
}
