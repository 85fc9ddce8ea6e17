package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/socketio/sockettest"
	"github.com/betbot/gofx/fxcm/types"
)

// fakeBroker 模拟 REST 交易接口和推送通道
type fakeBroker struct {
	*httptest.Server
	hub *sockettest.Hub

	mu         sync.Mutex
	calls      []recordedCall
	authStatus int
	accounts   string
}

type recordedCall struct {
	Path string
	Form url.Values
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{
		hub:        sockettest.NewHub(),
		authStatus: http.StatusOK,
		accounts:   `[{"accountId":""},{"accountId":"A2","balance":100},{"accountId":"A3"}]`,
	}
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", b.hub)
	mux.HandleFunc("/", b.serveREST)
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *fakeBroker) serveREST(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	b.mu.Lock()
	b.calls = append(b.calls, recordedCall{Path: r.URL.Path, Form: r.Form})
	authStatus, accounts := b.authStatus, b.accounts
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/oauth/token":
		if authStatus != http.StatusOK {
			w.WriteHeader(authStatus)
			_, _ = w.Write([]byte(`{"error":"denied"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"outer"}`))
	case "/authenticate":
		_, _ = w.Write([]byte(`{"response":{"executed":true},"access_token":"trading-token"}`))
	case "/trading/get_model":
		switch r.Form.Get("models") {
		case "Account":
			_, _ = w.Write([]byte(`{"response":{"executed":true},"accounts":` + accounts + `}`))
		case "Offer":
			_, _ = w.Write([]byte(`{"response":{"executed":true},"offers":[{"currency":"EUR/USD","offerId":1,"ratePrecision":5}]}`))
		default:
			_, _ = w.Write([]byte(`{"response":{"executed":true}}`))
		}
	default:
		_, _ = w.Write([]byte(`{"response":{"executed":true}}`))
	}
}

func (b *fakeBroker) setAuthStatus(status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authStatus = status
}

func (b *fakeBroker) callsTo(path string) []recordedCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedCall
	for _, c := range b.calls {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

func (b *fakeBroker) options(loops *LoopRegistry) Options {
	return Options{
		User:     "user",
		Password: "pw",
		Environment: types.Environment{
			Name:       "demo",
			AuthURL:    b.URL + "/oauth/token",
			TradingURL: b.URL,
		},
		Logger:           logger.Nop,
		Loops:            loops,
		WaitSlice:        20 * time.Millisecond,
		ReconnectDelay:   20 * time.Millisecond,
		DisableRateLimit: true,
	}
}

func newLoggedIn(t *testing.T, b *fakeBroker, loops *LoopRegistry) *Manager {
	t.Helper()
	m, err := New(b.options(loops))
	require.NoError(t, err)
	require.NoError(t, m.Login(context.Background()))
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// waitDefaultModels 等待 connect 事件触发的默认模型订阅完成
func waitDefaultModels(t *testing.T, m *Manager) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Registry().Len() == len(DefaultSubscriptionList)
	}, 3*time.Second, 10*time.Millisecond)
}

func TestLoginLoadsAccounts(t *testing.T) {
	b := newFakeBroker(t)
	m := newLoggedIn(t, b, NewLoopRegistry())

	assert.True(t, m.LoggedIn())
	assert.Equal(t, "A2", m.AccountID())
	assert.Equal(t, []string{"", "A2", "A3"}, m.AccountList())
	assert.Equal(t, "sid-1", m.Channel().ClientID())
	assert.Equal(t, []string{"trading-token"}, b.hub.Tokens())
	assert.Equal(t, "userdemoGeneral", m.Identity())

	waitDefaultModels(t, m)
	_, ok := m.Mirror().Instrument("EUR/USD")
	assert.True(t, ok)
}

func TestLoginAuthenticationFailure(t *testing.T) {
	b := newFakeBroker(t)
	b.setAuthStatus(http.StatusUnauthorized)
	m, err := New(b.options(NewLoopRegistry()))
	require.NoError(t, err)

	err = m.Login(context.Background())

	var authErr *types.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, types.AuthPhaseToken, authErr.Phase)
	assert.False(t, m.LoggedIn())
	assert.Equal(t, 0, b.hub.Accepted())
}

func TestCommandsCarrySocketID(t *testing.T) {
	b := newFakeBroker(t)
	m := newLoggedIn(t, b, NewLoopRegistry())
	waitDefaultModels(t, m)

	results, err := m.SubscribeSymbols(context.Background(), "EUR/USD")
	require.NoError(t, err)
	require.Len(t, results, 1)

	subs := b.callsTo("/subscribe")
	require.Len(t, subs, 1)
	assert.Equal(t, "sid-1", subs[0].Form.Get("socket_id"))
	assert.Equal(t, "trading-token", subs[0].Form.Get("access_token"))
	assert.Equal(t, "EUR/USD", subs[0].Form.Get("pairs"))

	require.NoError(t, b.hub.Emit("EUR/USD", map[string]any{
		"Symbol":  "EUR/USD",
		"Rates":   []float64{1.1, 1.2, 1.3, 1.0},
		"Updated": 1500854400000,
	}))
	require.Eventually(t, func() bool {
		_, ok := m.Mirror().Price("EUR/USD")
		return ok
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSecondLoginStopsFirstLoop(t *testing.T) {
	b := newFakeBroker(t)
	loops := NewLoopRegistry()

	first := newLoggedIn(t, b, loops)
	firstLoop := loops.Active(first.Identity())
	require.NotNil(t, firstLoop)

	second := newLoggedIn(t, b, loops)

	assert.False(t, firstLoop.KeepGoing())
	assert.Equal(t, 1, loops.Running())
	assert.NotSame(t, firstLoop, loops.Active(second.Identity()))
}

func TestLogoutIsIdempotent(t *testing.T) {
	b := newFakeBroker(t)
	loops := NewLoopRegistry()
	m := newLoggedIn(t, b, loops)
	waitDefaultModels(t, m)

	require.NoError(t, m.Logout(context.Background()))
	require.NoError(t, m.Logout(context.Background()))

	assert.False(t, m.LoggedIn())
	assert.Len(t, b.callsTo("/logout"), 1)
	assert.Equal(t, 0, m.Registry().Len())
	assert.Equal(t, 0, loops.Running())
	assert.False(t, m.Channel().Connected())
	assert.Empty(t, b.callsTo("/trading/unsubscribe"))
}

func TestFailedReloginStopsListenLoop(t *testing.T) {
	b := newFakeBroker(t)
	loops := NewLoopRegistry()
	m := newLoggedIn(t, b, loops)
	waitDefaultModels(t, m)
	oldLoop := loops.Active(m.Identity())
	require.NotNil(t, oldLoop)

	b.setAuthStatus(http.StatusUnauthorized)
	var authErr *types.AuthenticationError
	require.ErrorAs(t, m.Login(context.Background()), &authErr)

	assert.False(t, m.LoggedIn())
	assert.False(t, oldLoop.KeepGoing())
	assert.Equal(t, 0, loops.Running())
	assert.Equal(t, 0, m.Registry().Len())

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, 0, loops.Running())
	assert.False(t, m.Channel().Connected())
	assert.Empty(t, b.callsTo("/logout"))
}

func TestLogoutStopsLoopAfterSessionLost(t *testing.T) {
	b := newFakeBroker(t)
	loops := NewLoopRegistry()
	m := newLoggedIn(t, b, loops)
	waitDefaultModels(t, m)

	// 会话失效但循环仍在
	m.active.Store(false)
	require.Equal(t, 1, loops.Running())

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, 0, loops.Running())
	assert.Equal(t, 0, m.Registry().Len())
	assert.False(t, m.Channel().Connected())
	assert.Empty(t, b.callsTo("/logout"))
}

func TestReconnectResubscribesWithNewClientID(t *testing.T) {
	b := newFakeBroker(t)
	m := newLoggedIn(t, b, NewLoopRegistry())
	waitDefaultModels(t, m)
	_, err := m.SubscribeSymbols(context.Background(), "EUR/USD")
	require.NoError(t, err)

	b.hub.DropAll()

	require.Eventually(t, func() bool {
		for _, c := range b.callsTo("/subscribe") {
			if c.Form.Get("socket_id") == "sid-2" && c.Form.Get("pairs") == "EUR/USD" {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "sid-2", m.Channel().ClientID())
	assert.Equal(t, []string{"trading-token", "trading-token"}, b.hub.Tokens())
	assert.True(t, m.Registry().Has("EUR/USD"))

	var modelResubs int
	for _, c := range b.callsTo("/trading/subscribe") {
		if c.Form.Get("socket_id") == "sid-2" {
			modelResubs++
		}
	}
	assert.Equal(t, len(DefaultSubscriptionList), modelResubs)
	assert.True(t, strings.HasPrefix(m.Name(), "user_demo_"))
}
