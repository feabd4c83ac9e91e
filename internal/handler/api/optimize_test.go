package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"EdgeScan/internal/domain/models"
	"EdgeScan/internal/service/ratelimit"
	"EdgeScan/internal/services/optimizer"
	"EdgeScan/internal/usecase"
	xhttp "EdgeScan/pkg/http"
	"EdgeScan/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatSeries(n int) []models.CandleDTO {
	out := make([]models.CandleDTO, n)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rsi, sma, adx, body, adr, hour := 50.0, 99.0, 30.0, 0.4, 50.0, 11
	for i := range out {
		out[i] = models.CandleDTO{
			Time:         t0.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			Open:         100,
			High:         101.5,
			Low:          99.9,
			Close:        100,
			RSI:          &rsi,
			SMA200:       &sma,
			ADX:          &adx,
			BodySizePct:  &body,
			ADRFilledPct: &adr,
			HourUTC:      &hour,
		}
	}
	return out
}

func payload(n int) models.OptimizePayload {
	return models.OptimizePayload{
		Series:          flatSeries(n),
		CandidateIndex:  n - 1,
		Trade:           models.TradeParams{Type: models.Long, EntryPrice: 100, StopLoss: 98, TakeProfit: 101},
		MaxDurationBars: 20,
	}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, rl *ratelimit.Limiter) *xhttp.Server {
	t.Helper()
	log := logger.NewNop()
	series := usecase.NewSeriesUseCase(nil, 0)
	tasks := usecase.NewTaskManager(log, optimizer.New(), series, nil, nil, nil, usecase.ManagerConfig{})
	h := NewOptimizeHandler(log, tasks, usecase.NewBacktestUseCase(series, nil), rl)
	return xhttp.NewServer(log, h, xhttp.WithCORS(false))
}

func do(t *testing.T, s *xhttp.Server, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestBacktestEndpoint(t *testing.T) {
	s := newTestServer(t, nil)

	req := models.BacktestRequest{OptimizePayload: payload(300), Filters: []string{"RSI", "TREND"}}
	rec, env := do(t, s, http.MethodPost, "/api/backtest", req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.BacktestResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 99, res.Matches)
	assert.Equal(t, 100.0, res.WinRate)
}

func TestBacktestEndpointErrors(t *testing.T) {
	s := newTestServer(t, nil)

	short := models.BacktestRequest{OptimizePayload: payload(203), Filters: []string{"RSI"}}
	rec, _ := do(t, s, http.MethodPost, "/api/backtest", short)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_INSUFFICIENT_SAMPLE")

	unknown := models.BacktestRequest{OptimizePayload: payload(300), Filters: []string{"MOON"}}
	rec, _ = do(t, s, http.MethodPost, "/api/backtest", unknown)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	badGeometry := models.BacktestRequest{OptimizePayload: payload(300), Filters: []string{"RSI"}}
	badGeometry.Trade.StopLoss = 102
	rec, _ = do(t, s, http.MethodPost, "/api/backtest", badGeometry)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	invalid := models.BacktestRequest{OptimizePayload: payload(300), Tier: "EXTREME"}
	rec, _ = do(t, s, http.MethodPost, "/api/backtest", invalid)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_ONEOF")
}

func TestOptimizeLifecycle(t *testing.T) {
	s := newTestServer(t, nil)
	srv := httptest.NewServer(s.Echo())
	defer srv.Close()

	p := payload(300)
	rec, env := do(t, s, http.MethodPost, "/api/optimize", p)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var snap usecase.TaskSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, "/api/optimize/"+snap.ID, rec.Header().Get("Location"))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/optimize/" + snap.ID + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last models.TaskEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(30*time.Second)))
	for {
		var ev models.TaskEvent
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, snap.ID, ev.TaskID)
		last = ev
		if ev.Terminal() {
			break
		}
	}
	assert.Equal(t, models.EventDone, last.Type)
	assert.Len(t, last.Results, optimizer.TopN)

	rec, env = do(t, s, http.MethodGet, "/api/optimize/"+snap.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, usecase.TaskDone, snap.State)
	assert.Len(t, snap.Results, optimizer.TopN)

	// cancelling a finished task is acknowledged without changing it
	rec, env = do(t, s, http.MethodDelete, "/api/optimize/"+snap.ID, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, usecase.TaskDone, snap.State)
}

func TestOptimizeNotFoundAndRateLimit(t *testing.T) {
	s := newTestServer(t, ratelimit.New(1, 0))

	rec, _ := do(t, s, http.MethodGet, "/api/optimize/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = do(t, s, http.MethodDelete, "/api/optimize/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, s, http.MethodPost, "/api/optimize", models.OptimizePayload{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing trade type")
	rec, _ = do(t, s, http.MethodPost, "/api/optimize", payload(250))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	rec, _ := do(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
