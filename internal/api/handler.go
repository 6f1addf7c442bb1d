package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"cryptopulse/internal/alertsvc"
	"cryptopulse/internal/model"
)

// AlertService is what the handlers need from alertsvc.Service.
type AlertService interface {
	Create(ctx context.Context, userID, phrase string, forceRecurring bool) (model.Alert, error)
	CreateForm(ctx context.Context, f alertsvc.Form) (model.Alert, error)
	List(ctx context.Context, userID string) ([]model.Alert, error)
	Delete(ctx context.Context, alertID string) (bool, error)
}

// UserRegistry creates accounts.
type UserRegistry interface {
	CreateUser(ctx context.Context, webhookURL string) (model.User, error)
}

// SignalFeed lists recent detections.
type SignalFeed interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]model.SignalEvent, error)
}

// Handler serves the alert API.
type Handler struct {
	alerts      AlertService
	users       UserRegistry
	signals     SignalFeed
	botUsername string
}

// NewHandler wires the handlers. signals may be nil, in which case
// GET /api/signals is not registered. botUsername is used for deep links.
func NewHandler(alerts AlertService, users UserRegistry, signals SignalFeed, botUsername string) *Handler {
	return &Handler{alerts: alerts, users: users, signals: signals, botUsername: botUsername}
}

func (h *Handler) writeError(c *gin.Context, err error, msg string) {
	if errors.Is(err, alertsvc.ErrInvalid) {
		slog.Warn("rejected request", "path", c.FullPath(), "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Details: err.Error()})
		return
	}
	slog.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

// CreateAlert parses alert_phrase and stores the alert.
func (h *Handler) CreateAlert(c *gin.Context) {
	var req CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required fields: alert_phrase and user_id", Details: err.Error()})
		return
	}
	a, err := h.alerts.Create(c.Request.Context(), req.UserID, req.AlertPhrase, req.IsRecurring)
	if err != nil {
		h.writeError(c, err, "could not understand your alert phrase")
		return
	}
	c.JSON(http.StatusCreated, CreateAlertResponse{Message: "alert created", Alert: toAlertResponse(a)})
}

// CreateAlertForm stores an alert from explicit fields.
func (h *Handler) CreateAlertForm(c *gin.Context) {
	var req AlertFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: err.Error()})
		return
	}
	a, err := h.alerts.CreateForm(c.Request.Context(), alertsvc.Form{
		UserID:      req.UserID,
		Asset:       req.Asset,
		AlertType:   req.AlertType,
		Timeframe:   req.Timeframe,
		TargetPrice: req.TargetPrice,
		Operator:    req.Operator,
		IsRecurring: req.IsRecurring,
	})
	if err != nil {
		h.writeError(c, err, "invalid alert")
		return
	}
	c.JSON(http.StatusCreated, CreateAlertResponse{Message: "alert created", Alert: toAlertResponse(a)})
}

// ListAlerts returns the user's ACTIVE alerts.
func (h *Handler) ListAlerts(c *gin.Context) {
	alerts, err := h.alerts.List(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		h.writeError(c, err, "user id is required")
		return
	}
	out := AlertsResponse{Alerts: make([]AlertResponse, 0, len(alerts))}
	for _, a := range alerts {
		out.Alerts = append(out.Alerts, toAlertResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

// DeleteAlert soft-deletes an ACTIVE alert.
func (h *Handler) DeleteAlert(c *gin.Context) {
	var req DeleteAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "missing required field: alert_id"})
		return
	}
	ok, err := h.alerts.Delete(c.Request.Context(), req.AlertID)
	if err != nil {
		h.writeError(c, err, "invalid alert id")
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no active alert with id " + req.AlertID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "alert " + req.AlertID + " deleted"})
}

// CreateUser registers an account and returns its Telegram deep link.
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Details: err.Error()})
			return
		}
	}
	u, err := h.users.CreateUser(c.Request.Context(), req.WebhookURL)
	if err != nil {
		h.writeError(c, err, "could not create user")
		return
	}
	resp := UserResponse{UserID: u.ID}
	if h.botUsername != "" {
		resp.TelegramLink = "https://t.me/" + h.botUsername + "?start=" + u.ID
	}
	slog.Info("user registered", "user_id", u.ID, "webhook", req.WebhookURL != "")
	c.JSON(http.StatusCreated, resp)
}

// RecentSignals lists detections from the last `hours` (default 24, max 168).
func (h *Handler) RecentSignals(c *gin.Context) {
	hours, err := strconv.Atoi(c.DefaultQuery("hours", "24"))
	if err != nil || hours <= 0 || hours > 168 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "hours must be between 1 and 168"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 || limit > 500 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be between 1 and 500"})
		return
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	signals, err := h.signals.Recent(c.Request.Context(), since, limit)
	if err != nil {
		h.writeError(c, err, "could not load signals")
		return
	}
	if signals == nil {
		signals = []model.SignalEvent{}
	}
	c.JSON(http.StatusOK, SignalsResponse{Signals: signals})
}
