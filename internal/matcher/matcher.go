// Package matcher evaluates ACTIVE alerts against live prices and stored
// signals and delivers a message for each alert that fires.
//
// A fire is claimed in the store before the message is sent, and the claim
// is rolled back if delivery fails. Two matchers sharing a store therefore
// deliver a one-shot alert at most once, and a recurring alert at most once
// per signal occurrence or cooldown window.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
)

// Config controls trigger timing.
type Config struct {
	Cooldown     time.Duration // minimum gap between fires of a recurring price alert
	Recency      time.Duration // how old a stored signal may be and still fire
	AlertTimeout time.Duration // per-alert deadline
}

// Bounds for Config.Recency.
const (
	MinRecency = 15 * time.Minute
	MaxRecency = 24 * time.Hour
)

// DefaultConfig returns a 1h cooldown, a 24h signal window and a 15s per-alert timeout.
func DefaultConfig() Config {
	return Config{
		Cooldown:     time.Hour,
		Recency:      24 * time.Hour,
		AlertTimeout: 15 * time.Second,
	}
}

// Fire describes one delivered alert.
type Fire struct {
	AlertID     string
	Endpoint    string
	Message     string
	TriggerTime time.Time
}

// CycleReport summarizes one RunCycle.
type CycleReport struct {
	Evaluated int
	Fired     int
	Skipped   int
	Failed    int
	Results   map[string]model.Result[Fire] // by alert id
}

// Matcher owns no state between cycles; everything lives in the stores.
type Matcher struct {
	cfg      Config
	alerts   model.AlertStore
	signals  model.SignalStore
	prices   model.PriceSource
	users    model.EndpointResolver
	notifier model.Notifier
	metrics  *metrics.Metrics

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New creates a matcher. Recency is clamped to MinRecency..MaxRecency. m may be nil.
func New(cfg Config, alerts model.AlertStore, signals model.SignalStore, prices model.PriceSource,
	users model.EndpointResolver, notifier model.Notifier, m *metrics.Metrics) *Matcher {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	switch {
	case cfg.Recency <= 0:
		cfg.Recency = def.Recency
	case cfg.Recency < MinRecency:
		cfg.Recency = MinRecency
	case cfg.Recency > MaxRecency:
		cfg.Recency = MaxRecency
	}
	if cfg.AlertTimeout <= 0 {
		cfg.AlertTimeout = def.AlertTimeout
	}
	return &Matcher{
		cfg:      cfg,
		alerts:   alerts,
		signals:  signals,
		prices:   prices,
		users:    users,
		notifier: notifier,
		metrics:  m,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle evaluates every ACTIVE alert once. The error is non-nil only when
// the alert list itself could not be loaded.
func (m *Matcher) RunCycle(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	active, err := m.alerts.ListActive(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("matcher: list active: %w", err)
	}

	report := CycleReport{Results: make(map[string]model.Result[Fire], len(active))}
	for _, a := range active {
		if ctx.Err() != nil {
			break
		}
		actx, cancel := context.WithTimeout(ctx, m.cfg.AlertTimeout)
		res := m.Evaluate(actx, a, m.Now())
		cancel()

		report.Evaluated++
		report.Results[a.ID] = res
		m.metrics.ObserveAlert(res.Outcome.String())
		switch res.Outcome {
		case model.OutcomeOK:
			report.Fired++
		case model.OutcomeSkip:
			report.Skipped++
		case model.OutcomeFatal:
			report.Failed++
			log.Printf("[matcher] alert %s (%s %s): %v", a.ID, a.Asset, a.AlertType, res.Err)
		}
	}
	m.metrics.ObserveAlertCycle(time.Since(start))
	return report, nil
}

// Evaluate checks one alert at time now and, if it fires, claims and delivers it.
func (m *Matcher) Evaluate(ctx context.Context, a model.Alert, now time.Time) model.Result[Fire] {
	endpoint, err := m.users.ResolveEndpoint(ctx, a.UserID)
	if err != nil {
		return model.Fatal[Fire](fmt.Errorf("resolve endpoint: %w", err))
	}
	if endpoint == "" {
		return model.Skip[Fire]("user %s has no endpoint", a.UserID)
	}

	var (
		trig model.Result[trigger]
		kind string
	)
	if a.IsPrice() {
		trig, kind = m.checkPrice(ctx, a, now), "price"
	} else {
		trig, kind = m.checkPattern(ctx, a, now), "pattern"
	}
	if trig.Outcome != model.OutcomeOK {
		return model.Result[Fire]{Outcome: trig.Outcome, Reason: trig.Reason, Err: trig.Err}
	}
	t := trig.Value

	claimed, err := m.alerts.UpdateAfterTrigger(ctx, a, t.at)
	if err != nil {
		return model.Fatal[Fire](fmt.Errorf("claim: %w", err))
	}
	if !claimed {
		m.metrics.ClaimLost()
		return model.Skip[Fire]("alert already claimed")
	}

	if err := m.notifier.Send(ctx, endpoint, t.message); err != nil {
		m.metrics.NotifyFailed()
		// Use a fresh context: the alert deadline may be what failed the send.
		undoCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if uerr := m.alerts.UndoTrigger(undoCtx, a, t.at); uerr != nil {
			return model.Fatal[Fire](errors.Join(fmt.Errorf("send: %w", err), fmt.Errorf("undo: %w", uerr)))
		}
		return model.Fatal[Fire](fmt.Errorf("send: %w", err))
	}

	m.metrics.AlertFired(kind)
	log.Printf("[matcher] fired %s alert %s for %s (recurring=%v)", kind, a.ID, a.Asset, a.IsRecurring)
	return model.Ok(Fire{AlertID: a.ID, Endpoint: endpoint, Message: t.message, TriggerTime: t.at})
}

type trigger struct {
	at      time.Time
	message string
}

func (m *Matcher) checkPrice(ctx context.Context, a model.Alert, now time.Time) model.Result[trigger] {
	if a.TargetPrice == nil {
		return model.Fatal[trigger](errors.New("price alert without target"))
	}
	if a.IsRecurring && a.LastTriggeredAt != nil && now.Sub(*a.LastTriggeredAt) < m.cfg.Cooldown {
		return model.Skip[trigger]("cooldown until %s", a.LastTriggeredAt.Add(m.cfg.Cooldown).Format(time.RFC3339))
	}

	price, err := m.prices.FetchPrice(ctx, a.Asset)
	if err != nil {
		return model.Fatal[trigger](fmt.Errorf("price: %w", err))
	}
	target := *a.TargetPrice

	var hit bool
	switch a.Operator {
	case model.OpAbove:
		hit = price >= target
	case model.OpBelow:
		hit = price <= target
	default:
		return model.Fatal[trigger](fmt.Errorf("unknown operator %q", a.Operator))
	}
	if !hit {
		return model.Skip[trigger]("price %s not %s %s", fmtPrice(price), a.Operator, fmtPrice(target))
	}
	return model.Ok(trigger{at: now, message: PriceMessage(a.Asset, price, target, a.Operator)})
}

func (m *Matcher) checkPattern(ctx context.Context, a model.Alert, now time.Time) model.Result[trigger] {
	ev, err := m.signals.Find(ctx, a.Asset, a.Timeframe, a.SignalType(), now.Add(-m.cfg.Recency))
	if err != nil {
		return model.Fatal[trigger](fmt.Errorf("find signal: %w", err))
	}
	if ev == nil {
		return model.Skip[trigger]("no recent %s", a.AlertType)
	}
	if a.IsRecurring && a.LastTriggeredAt != nil && !ev.DetectedAt.After(*a.LastTriggeredAt) {
		return model.Skip[trigger]("signal at %s already notified", ev.DetectedAt.Format(time.RFC3339))
	}
	return model.Ok(trigger{at: ev.DetectedAt, message: SignalMessage(*ev)})
}

// PriceMessage is the notification text for a price alert.
func PriceMessage(asset string, price, target float64, op model.Operator) string {
	icon := "📈"
	if op == model.OpBelow {
		icon = "📉"
	}
	return fmt.Sprintf("%s PRICE ALERT\n#%s reached $%s (target: %s $%s)",
		icon, asset, fmtPrice(price), op, fmtPrice(target))
}

// SignalMessage is the notification text for a pattern alert.
func SignalMessage(ev model.SignalEvent) string {
	return fmt.Sprintf("🚀 SIGNAL ALERT\n#%s (%s)\n%s detected on the candle closed %s",
		ev.Asset, ev.Timeframe, ev.Type.Readable(), ev.DetectedAt.UTC().Format("2006-01-02 15:04 UTC"))
}

func fmtPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
