package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptopulse/internal/alertsvc"
	"cryptopulse/internal/model"
	"cryptopulse/internal/parser"
	"cryptopulse/internal/store/sqlstore"
)

type stubPrice float64

func (p stubPrice) FetchPrice(context.Context, string) (float64, error) { return float64(p), nil }

func newTestRouter(t *testing.T) (*gin.Engine, *sqlstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := sqlstore.Open(context.Background(), "sqlite://:memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := alertsvc.New(db.Alerts(), stubPrice(350), parser.New(nil), nil)
	h := NewHandler(svc, db.Users(), db.Signals(), "CryptoPulseBot")
	return NewRouter(h, nil), db
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const uid = "4c7f2b9e-1d3a-4e8b-a6f0-9b2c5d7e1f30"

func TestCreateAlert(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name       string
		body       gin.H
		wantStatus int
		check      func(t *testing.T, resp CreateAlertResponse)
	}{
		{
			name:       "price phrase",
			body:       gin.H{"user_id": uid, "alert_phrase": "BTC above 60k"},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, resp CreateAlertResponse) {
				assert.Equal(t, "PRICE_TARGET", resp.Alert.AlertType)
				assert.Equal(t, "ABOVE", resp.Alert.Operator)
				require.NotNil(t, resp.Alert.TargetPrice)
				assert.Equal(t, 60000.0, *resp.Alert.TargetPrice)
				assert.Equal(t, "ACTIVE", resp.Alert.Status)
			},
		},
		{
			name:       "ma cross with recurring flag",
			body:       gin.H{"user_id": uid, "alert_phrase": "ETH 50 MA crosses above 200 MA on the 1h chart", "is_recurring": true},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, resp CreateAlertResponse) {
				assert.Equal(t, "GOLDEN_CROSS", resp.Alert.AlertType)
				assert.Equal(t, "1h", resp.Alert.Timeframe)
				assert.True(t, resp.Alert.IsRecurring)
			},
		},
		{
			name:       "hit resolves against live price",
			body:       gin.H{"user_id": uid, "alert_phrase": "If BNB hits 300"},
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, resp CreateAlertResponse) {
				assert.Equal(t, "BELOW", resp.Alert.Operator)
			},
		},
		{
			name:       "unparseable phrase",
			body:       gin.H{"user_id": uid, "alert_phrase": "LTC to the moon"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing phrase",
			body:       gin.H{"user_id": uid},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, http.MethodPost, "/api/create-alert", tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.check != nil {
				var resp CreateAlertResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				tt.check(t, resp)
			} else {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
				assert.NotEmpty(t, resp.Error)
			}
		})
	}
}

func TestCreateAlertForm(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/alerts", gin.H{
		"user_id": uid, "asset": "sol", "alert_type": "VOLUME_SURGE", "timeframe": "1h",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/alerts", gin.H{
		"user_id": uid, "asset": "BTC", "target_price": 70000, "operator": ">",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/alerts", gin.H{
		"user_id": uid, "asset": "BTC", "alert_type": "NOT_A_SIGNAL",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListAndDeleteAlerts(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/create-alert", gin.H{"user_id": uid, "alert_phrase": "BTC above 60k"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created CreateAlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = do(t, r, http.MethodGet, "/api/my-alerts/"+uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list AlertsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Alerts, 1)
	assert.Equal(t, created.Alert.ID, list.Alerts[0].ID)

	w = do(t, r, http.MethodPost, "/api/delete-alert", gin.H{"alert_id": created.Alert.ID})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodPost, "/api/delete-alert", gin.H{"alert_id": created.Alert.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, http.MethodPost, "/api/delete-alert", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, r, http.MethodGet, "/api/my-alerts/"+uid, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"alerts":[]}`, w.Body.String())
}

func TestCreateUser(t *testing.T) {
	r, db := newTestRouter(t)

	w := do(t, r, http.MethodPost, "/api/users", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.UserID)
	assert.Equal(t, "https://t.me/CryptoPulseBot?start="+resp.UserID, resp.TelegramLink)

	w = do(t, r, http.MethodPost, "/api/users", gin.H{"webhook_url": "https://hooks.example.test/me"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	endpoint, err := db.Users().ResolveEndpoint(context.Background(), resp.UserID)
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.example.test/me", endpoint)

	w = do(t, r, http.MethodPost, "/api/users", gin.H{"webhook_url": "not a url"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecentSignals(t *testing.T) {
	r, db := newTestRouter(t)
	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, db.Signals().Upsert(context.Background(), model.SignalEvent{
		Asset: "BTC", Timeframe: model.TF4h, Type: model.SignalGoldenCross, DetectedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, db.Signals().Upsert(context.Background(), model.SignalEvent{
		Asset: "ETH", Timeframe: model.TF1h, Type: model.SignalVolumeSurge, DetectedAt: now.Add(-48 * time.Hour),
	}))

	w := do(t, r, http.MethodGet, "/api/signals?hours=24", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp SignalsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Signals, 1)
	assert.Equal(t, model.SignalGoldenCross, resp.Signals[0].Type)

	w = do(t, r, http.MethodGet, "/api/signals?hours=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := do(t, r, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

type failingService struct{ AlertService }

func (failingService) Create(context.Context, string, string, bool) (model.Alert, error) {
	return model.Alert{}, errors.New("sqlstore: create alert: database is locked")
}

func TestCreateAlert_StoreFailureIs500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(NewHandler(failingService{}, nil, nil, ""), nil)

	w := do(t, r, http.MethodPost, "/api/create-alert", gin.H{"user_id": uid, "alert_phrase": "BTC above 1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.False(t, strings.Contains(w.Body.String(), "locked"), "internal errors are not leaked")

	w = do(t, r, http.MethodGet, "/api/signals", nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "signals route is off without a feed")
}
