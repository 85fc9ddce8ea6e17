package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
)

type recordedRequest struct {
	Method string
	Path   string
	Form   url.Values
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recordedRequest
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	fs := &fakeServer{handlers: make(map[string]func(http.ResponseWriter, *http.Request))}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		fs.mu.Lock()
		fs.requests = append(fs.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Form: r.Form})
		h := fs.handlers[r.URL.Path]
		fs.mu.Unlock()
		if h == nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"response":{"executed":true}}`))
			return
		}
		h(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) handle(path string, h func(w http.ResponseWriter, r *http.Request)) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[path] = h
}

func (fs *fakeServer) reply(path string, status int, body string) {
	fs.handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (fs *fakeServer) recorded() []recordedRequest {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return append([]recordedRequest(nil), fs.requests...)
}

type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	id        string
}

func (f *fakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) ClientID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

func (f *fakeChannel) set(connected bool, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected, f.id = connected, id
}

type staticInstruments map[string]int

func (s staticInstruments) InstrumentID(symbol string) (int, bool) {
	id, ok := s[symbol]
	return id, ok
}

func newTestClient(fs *fakeServer) *Client {
	return NewClient(Config{
		Environment:      types.Environment{Name: "test", AuthURL: fs.URL + "/oauth/token", TradingURL: fs.URL},
		ClientID:         "client",
		ClientSecret:     "secret",
		DisableRateLimit: true,
		Location:         time.UTC,
		Logger:           logger.Nop,
	})
}

func TestOpenTradeMissingParameterSendsNothing(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)

	resp, err := c.OpenTrade(context.Background(), types.OpenTradeRequest{
		Symbol: "USD/JPY",
		IsBuy:  types.Bool(true),
		Amount: types.Float(10),
	})

	var missing *types.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"account_id"}, missing.Params)
	require.NotNil(t, resp)
	assert.False(t, resp.Status)
	assert.Empty(t, fs.recorded())
}

func TestOpenTradeFalseAndZeroArePresent(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)

	resp, err := c.OpenTrade(context.Background(), types.OpenTradeRequest{
		AccountID: "1234",
		Symbol:    "EUR/USD",
		IsBuy:     types.Bool(false),
		Amount:    types.Float(0),
		Stop:      types.Float(-5),
		IsInPips:  types.Bool(true),
	})
	require.NoError(t, err)
	assert.True(t, resp.Status)

	reqs := fs.recorded()
	require.Len(t, reqs, 1)
	form := reqs[0].Form
	assert.Equal(t, EndpointOpenTrade, reqs[0].Path)
	assert.Equal(t, "false", form.Get("is_buy"))
	assert.Equal(t, "0", form.Get("amount"))
	assert.Equal(t, "0", form.Get("rate"))
	assert.Equal(t, "0", form.Get("at_market"))
	assert.Equal(t, "GTC", form.Get("time_in_force"))
	assert.Equal(t, "AtMarket", form.Get("order_type"))
	assert.Equal(t, "-5", form.Get("stop"))
	assert.Equal(t, "true", form.Get("is_in_pips"))
	assert.False(t, form.Has("limit"))
	assert.False(t, form.Has("socket_id"))
}

func TestEntryOrderRateOnlyWhenGiven(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	req := types.EntryOrderRequest{
		AccountID:   "1234",
		Symbol:      "EUR/USD",
		IsBuy:       types.Bool(true),
		Amount:      types.Float(10),
		Limit:       types.Float(1.2),
		IsInPips:    types.Bool(false),
		OrderType:   "Entry",
		TimeInForce: "GTC",
	}

	_, err := c.CreateEntryOrder(context.Background(), req)
	require.NoError(t, err)
	req.Rate = types.Float(0)
	_, err = c.CreateEntryOrder(context.Background(), req)
	require.NoError(t, err)

	reqs := fs.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, EndpointCreateEntryOrder, reqs[0].Path)
	assert.False(t, reqs[0].Form.Has("rate"))
	assert.Equal(t, "1.2", reqs[0].Form.Get("limit"))
	assert.False(t, reqs[0].Form.Has("stop"))
	assert.Equal(t, "0", reqs[1].Form.Get("rate"))
}

func TestCommandsRejectMissingFields(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	ctx := context.Background()

	cases := []struct {
		name string
		call func() error
		want []string
	}{
		{"close_trade", func() error {
			_, err := c.CloseTrade(ctx, types.CloseTradeRequest{TradeID: "1"})
			return err
		}, []string{"amount"}},
		{"change_order", func() error {
			_, err := c.ChangeOrder(ctx, types.ChangeOrderRequest{OrderID: "1", Amount: types.Float(1)})
			return err
		}, []string{"rate", "range"}},
		{"create_entry_order", func() error {
			_, err := c.CreateEntryOrder(ctx, types.EntryOrderRequest{AccountID: "1", Symbol: "EUR/USD", IsBuy: types.Bool(true), Amount: types.Float(1)})
			return err
		}, []string{"limit", "is_in_pips", "order_type", "time_in_force"}},
		{"remove_from_oco", func() error {
			_, err := c.RemoveFromOCO(ctx, nil)
			return err
		}, []string{"orderIds"}},
		{"change_trade_stop_limit", func() error {
			_, err := c.ChangeTradeStopLimit(ctx, types.StopLimitRequest{ID: "1", IsStop: types.Bool(false), Rate: types.Float(0)})
			return err
		}, []string{"is_in_pips", "trailing_step"}},
		{"close_all_for_symbol", func() error {
			_, err := c.CloseAllForSymbol(ctx, types.CloseAllRequest{AccountID: "1", Symbol: "EUR/USD"})
			return err
		}, []string{"forSymbol", "order_type", "time_in_force"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var missing *types.MissingParameterError
			require.ErrorAs(t, tc.call(), &missing)
			assert.Equal(t, tc.want, missing.Params)
		})
	}
	assert.Empty(t, fs.recorded())
}

func TestOCOListsAreRepeatedKeys(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)

	_, err := c.EditOCO(context.Background(), "bulk-1", []string{"1", "2"}, []string{"3"})
	require.NoError(t, err)

	reqs := fs.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"1", "2"}, reqs[0].Form["addOrderIds"])
	assert.Equal(t, []string{"3"}, reqs[0].Form["removeOrderIds"])
	assert.Equal(t, "bulk-1", reqs[0].Form.Get("ocoBulkId"))
}

func TestSendInjectsIdentityAtSendTime(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	c.SetToken("trading-token")
	ch := &fakeChannel{}
	c.AttachChannel(ch)
	ctx := context.Background()

	_, err := c.Permissions(ctx)
	require.NoError(t, err)

	ch.set(true, "sid-1")
	_, err = c.SubscribeSymbols(ctx, "EUR/USD")
	require.NoError(t, err)

	ch.set(true, "sid-2")
	_, err = c.SubscribeSymbols(ctx, "USD/JPY")
	require.NoError(t, err)

	reqs := fs.recorded()
	require.Len(t, reqs, 3)
	assert.False(t, reqs[0].Form.Has("socket_id"))
	assert.Equal(t, "sid-1", reqs[1].Form.Get("socket_id"))
	assert.Equal(t, "trading-token", reqs[1].Form.Get("access_token"))
	assert.Equal(t, "sid-2", reqs[2].Form.Get("socket_id"))
	assert.Equal(t, "USD/JPY", reqs[2].Form.Get("pairs"))
}

func TestSendFailureKinds(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)
	ctx := context.Background()

	fs.reply(EndpointPermissions, http.StatusServiceUnavailable, `busy`)
	resp, err := c.Permissions(ctx)
	var terr *types.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.False(t, resp.Status)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	fs.reply(EndpointLogout, http.StatusOK, `{"response":{"executed":false,"error":"session expired"},"extra":1}`)
	resp, err = c.Logout(ctx)
	var berr *types.BusinessError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, "session expired", berr.Message)
	assert.False(t, resp.Status)
	assert.Contains(t, resp.Payload, "extra")

	fs.reply(EndpointGetModel, http.StatusOK, `{"response": {"executed": tr`)
	resp, err = c.GetModel(ctx, types.ModelOffer)
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Detail, "malformed")
	assert.False(t, resp.Status)
	assert.True(t, errors.Is(resp.Err, err))
}

func TestGetModelSnapshot(t *testing.T) {
	fs := newFakeServer(t)
	c := newTestClient(fs)

	fs.reply(EndpointGetModel, http.StatusOK, `{"response":{"executed":true},"accounts":[{"accountId":"A1","balance":100},{"accountId":"A2"}]}`)
	records, err := c.Snapshot(context.Background(), types.ModelAccount)
	require.NoError(t, err)
	require.Len(t, records, 2)
	id, _ := records[0].String("accountId")
	assert.Equal(t, "A1", id)
	balance, _ := records[0].Float("balance")
	assert.Equal(t, 100.0, balance)

	reqs := fs.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodGet, reqs[0].Method)
	assert.Equal(t, "Account", reqs[0].Form.Get("models"))
}
