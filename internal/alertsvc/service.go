// Package alertsvc creates, lists and deletes user alerts. It is shared by
// the HTTP API and the Telegram listener.
package alertsvc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	"cryptopulse/internal/parser"
)

// ErrInvalid marks input errors (bad phrase, unknown signal, bad operator).
// Callers map it to a 400.
var ErrInvalid = errors.New("invalid alert")

// Service wraps the alert store with phrase parsing and HIT resolution.
type Service struct {
	alerts  model.AlertStore
	prices  model.PriceSource
	parser  *parser.Parser
	metrics *metrics.Metrics
}

// New wires a service. prices is only used to resolve "hits" phrases.
func New(alerts model.AlertStore, prices model.PriceSource, p *parser.Parser, m *metrics.Metrics) *Service {
	if p == nil {
		p = parser.New(nil)
	}
	return &Service{alerts: alerts, prices: prices, parser: p, metrics: m}
}

// CreateFromPhrase is the Telegram entry point.
func (s *Service) CreateFromPhrase(ctx context.Context, userID, phrase string) (model.Alert, error) {
	a, err := s.create(ctx, userID, phrase, false)
	if err == nil {
		s.metrics.AlertCreated("telegram")
	}
	return a, err
}

// Create parses phrase and stores the alert. forceRecurring makes it
// recurring even if the phrase does not say so.
func (s *Service) Create(ctx context.Context, userID, phrase string, forceRecurring bool) (model.Alert, error) {
	a, err := s.create(ctx, userID, phrase, forceRecurring)
	if err == nil {
		s.metrics.AlertCreated("phrase")
	}
	return a, err
}

func (s *Service) create(ctx context.Context, userID, phrase string, forceRecurring bool) (model.Alert, error) {
	if strings.TrimSpace(userID) == "" {
		return model.Alert{}, fmt.Errorf("%w: user_id required", ErrInvalid)
	}
	req, err := s.parser.Parse(phrase)
	if err != nil {
		return model.Alert{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	a := model.Alert{
		UserID:        userID,
		Asset:         req.Asset,
		IsRecurring:   req.Recurring || forceRecurring,
		ConditionText: strings.TrimSpace(phrase),
	}
	if req.IsPrice {
		op, err := s.resolveOperator(ctx, req.Asset, req.Op, req.Target)
		if err != nil {
			return model.Alert{}, err
		}
		target := req.Target
		a.AlertType = model.AlertTypePriceTarget
		a.TargetPrice = &target
		a.Operator = op
	} else {
		a.AlertType = string(req.Signal)
		a.Timeframe = req.Timeframe
	}
	return s.store(ctx, a)
}

// Form is a structured alert request.
type Form struct {
	UserID        string
	Asset         string
	AlertType     string // PRICE_TARGET or a signal type
	Timeframe     string
	TargetPrice   *float64
	Operator      string // ABOVE, BELOW, HIT or a symbol such as ">="
	IsRecurring   bool
	ConditionText string
}

// CreateForm stores an alert built from explicit fields.
func (s *Service) CreateForm(ctx context.Context, f Form) (model.Alert, error) {
	a := model.Alert{
		UserID:        strings.TrimSpace(f.UserID),
		Asset:         strings.ToUpper(strings.TrimSpace(f.Asset)),
		AlertType:     strings.ToUpper(strings.TrimSpace(f.AlertType)),
		IsRecurring:   f.IsRecurring,
		ConditionText: f.ConditionText,
	}
	if a.AlertType == "" {
		a.AlertType = model.AlertTypePriceTarget
	}

	if a.IsPrice() {
		if f.TargetPrice == nil || *f.TargetPrice <= 0 {
			return model.Alert{}, fmt.Errorf("%w: target_price must be positive", ErrInvalid)
		}
		var op model.Operator
		if strings.EqualFold(strings.TrimSpace(f.Operator), string(parser.OpHit)) {
			op = parser.OpHit
		} else {
			parsed, err := model.ParseOperator(f.Operator)
			if err != nil {
				return model.Alert{}, fmt.Errorf("%w: %w", ErrInvalid, err)
			}
			op = parsed
		}
		resolved, err := s.resolveOperator(ctx, a.Asset, op, *f.TargetPrice)
		if err != nil {
			return model.Alert{}, err
		}
		target := *f.TargetPrice
		a.TargetPrice = &target
		a.Operator = resolved
	} else {
		tf := s.parser.DefaultTimeframe
		if strings.TrimSpace(f.Timeframe) != "" {
			parsed, err := model.ParseTimeframe(f.Timeframe)
			if err != nil {
				return model.Alert{}, fmt.Errorf("%w: %w", ErrInvalid, err)
			}
			tf = parsed
		}
		a.Timeframe = tf
	}

	if a.ConditionText == "" {
		a.ConditionText = describe(a)
	}
	created, err := s.store(ctx, a)
	if err == nil {
		s.metrics.AlertCreated("form")
	}
	return created, err
}

// resolveOperator turns HIT into ABOVE or BELOW against the live price.
func (s *Service) resolveOperator(ctx context.Context, asset string, op model.Operator, target float64) (model.Operator, error) {
	if op != parser.OpHit {
		return op, nil
	}
	if s.prices == nil {
		return "", fmt.Errorf("alertsvc: no price source to resolve %q", op)
	}
	price, err := s.prices.FetchPrice(ctx, asset)
	if err != nil {
		return "", fmt.Errorf("alertsvc: price for %s: %w", asset, err)
	}
	return parser.ResolveHit(target, price), nil
}

func (s *Service) store(ctx context.Context, a model.Alert) (model.Alert, error) {
	if err := a.Validate(); err != nil {
		return model.Alert{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	created, err := s.alerts.Create(ctx, a)
	if err != nil {
		return model.Alert{}, fmt.Errorf("alertsvc: create: %w", err)
	}
	log.Printf("[alertsvc] created %s for user %s: %s", created.ID, created.UserID, describe(created))
	return created, nil
}

// List returns the user's ACTIVE alerts, newest first.
func (s *Service) List(ctx context.Context, userID string) ([]model.Alert, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id required", ErrInvalid)
	}
	return s.alerts.ListByUser(ctx, userID)
}

// Delete marks an ACTIVE alert DELETED. It reports false when there was none.
func (s *Service) Delete(ctx context.Context, alertID string) (bool, error) {
	if strings.TrimSpace(alertID) == "" {
		return false, fmt.Errorf("%w: alert_id required", ErrInvalid)
	}
	ok, err := s.alerts.Delete(ctx, alertID)
	if err != nil {
		return false, fmt.Errorf("alertsvc: delete: %w", err)
	}
	if ok {
		log.Printf("[alertsvc] deleted %s", alertID)
	}
	return ok, nil
}

func describe(a model.Alert) string {
	if a.IsPrice() && a.TargetPrice != nil {
		return fmt.Sprintf("%s %s %g", a.Asset, strings.ToLower(string(a.Operator)), *a.TargetPrice)
	}
	return fmt.Sprintf("%s %s on %s", a.Asset, a.SignalType().Readable(), a.Timeframe)
}
