package alertsvc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptopulse/internal/model"
	"cryptopulse/internal/parser"
	"cryptopulse/internal/store/sqlstore"
)

type fixedPrice struct {
	price float64
	err   error
	calls int
}

func (f *fixedPrice) FetchPrice(context.Context, string) (float64, error) {
	f.calls++
	return f.price, f.err
}

func newService(t *testing.T, prices model.PriceSource) (*Service, sqlstore.Alerts) {
	t.Helper()
	db, err := sqlstore.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db.Alerts(), prices, parser.New(nil), nil), db.Alerts()
}

const user = "8f6c1c8e-2f5a-4b8e-9d1b-0c7a4f3e2d10"

func TestCreate_PriceAlert(t *testing.T) {
	svc, _ := newService(t, nil)
	a, err := svc.Create(context.Background(), user, "BTC above 60k", false)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StatusActive, a.Status)
	assert.Equal(t, model.AlertTypePriceTarget, a.AlertType)
	assert.Equal(t, model.OpAbove, a.Operator)
	require.NotNil(t, a.TargetPrice)
	assert.Equal(t, 60000.0, *a.TargetPrice)
	assert.Equal(t, "BTC above 60k", a.ConditionText)
	assert.False(t, a.IsRecurring)
}

func TestCreate_PatternAlertForceRecurring(t *testing.T) {
	svc, _ := newService(t, nil)
	a, err := svc.Create(context.Background(), user, "ETH 50 MA crosses above 200 MA on 1h", true)
	require.NoError(t, err)

	assert.Equal(t, string(model.SignalGoldenCross), a.AlertType)
	assert.Equal(t, model.TF1h, a.Timeframe)
	assert.True(t, a.IsRecurring)
	assert.Nil(t, a.TargetPrice)
}

func TestCreate_HitResolvesAgainstLivePrice(t *testing.T) {
	prices := &fixedPrice{price: 350}
	svc, _ := newService(t, prices)

	a, err := svc.CreateFromPhrase(context.Background(), user, "If BNB hits 300")
	require.NoError(t, err)
	assert.Equal(t, model.OpBelow, a.Operator)

	a, err = svc.CreateFromPhrase(context.Background(), user, "BNB hits 400")
	require.NoError(t, err)
	assert.Equal(t, model.OpAbove, a.Operator)
	assert.Equal(t, 2, prices.calls)

	// explicit direction needs no price lookup
	_, err = svc.CreateFromPhrase(context.Background(), user, "BNB above 400")
	require.NoError(t, err)
	assert.Equal(t, 2, prices.calls)
}

func TestCreate_HitPriceFailure(t *testing.T) {
	svc, alerts := newService(t, &fixedPrice{err: errors.New("exchange down")})
	_, err := svc.Create(context.Background(), user, "BTC hits 70000", false)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrInvalid), "price outage is not an input error")

	list, err := alerts.ListByUser(context.Background(), user)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCreate_InvalidPhrase(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Create(context.Background(), user, "BTC 20 MA crosses 50 MA", false)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.ErrorIs(t, err, parser.ErrUnsupportedMA)

	_, err = svc.Create(context.Background(), "", "BTC above 1", false)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCreateForm(t *testing.T) {
	svc, _ := newService(t, &fixedPrice{price: 3000})
	ctx := context.Background()
	target := 2500.0

	a, err := svc.CreateForm(ctx, Form{UserID: user, Asset: "eth", TargetPrice: &target, Operator: "<="})
	require.NoError(t, err)
	assert.Equal(t, "ETH", a.Asset)
	assert.Equal(t, model.OpBelow, a.Operator)
	assert.Equal(t, "ETH below 2500", a.ConditionText)

	a, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "ETH", TargetPrice: &target, Operator: "hit"})
	require.NoError(t, err)
	assert.Equal(t, model.OpBelow, a.Operator)

	a, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "SOL", AlertType: "volume_surge", Timeframe: "1H", IsRecurring: true})
	require.NoError(t, err)
	assert.Equal(t, model.TF1h, a.Timeframe)
	assert.Equal(t, string(model.SignalVolumeSurge), a.AlertType)

	a, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "SOL", AlertType: "GOLDEN_CROSS"})
	require.NoError(t, err)
	assert.Equal(t, model.TF4h, a.Timeframe, "default timeframe")

	_, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "SOL", AlertType: "MOON_SHOT"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "SOL", AlertType: "GOLDEN_CROSS", Timeframe: "3w"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "SOL", TargetPrice: &target, Operator: "sideways"})
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = svc.CreateForm(ctx, Form{UserID: user, Asset: "SOL", Operator: ">"})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestListAndDelete(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	a, err := svc.Create(ctx, user, "BTC above 60k", false)
	require.NoError(t, err)
	_, err = svc.Create(ctx, user, "SOL volume surge", false)
	require.NoError(t, err)

	list, err := svc.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	ok, err := svc.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.Delete(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second delete finds no ACTIVE alert")

	list, err = svc.List(ctx, user)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.Delete(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalid)
}
