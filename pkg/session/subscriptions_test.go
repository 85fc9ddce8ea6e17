package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/socketio"
	"github.com/betbot/gofx/fxcm/types"
)

type fakeTransport struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (f *fakeTransport) record(op, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+":"+name)
	return f.fail[op+":"+name]
}

func (f *fakeTransport) setFail(call string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail == nil {
		f.fail = make(map[string]error)
	}
	if err == nil {
		delete(f.fail, call)
		return
	}
	f.fail[call] = err
}

func (f *fakeTransport) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeTransport) result(err error) (*types.Response, error) {
	if err != nil {
		return types.Failed(err), err
	}
	return &types.Response{Status: true}, nil
}

func (f *fakeTransport) SubscribeSymbols(_ context.Context, pairs ...string) (*types.Response, error) {
	return f.result(f.record("sub", pairs[0]))
}

func (f *fakeTransport) UnsubscribeSymbols(_ context.Context, pairs ...string) (*types.Response, error) {
	return f.result(f.record("unsub", pairs[0]))
}

func (f *fakeTransport) SubscribeModels(_ context.Context, kinds ...types.ModelKind) (*types.Response, error) {
	return f.result(f.record("sub", kinds[0].String()))
}

func (f *fakeTransport) UnsubscribeModels(_ context.Context, kinds ...types.ModelKind) (*types.Response, error) {
	return f.result(f.record("unsub", kinds[0].String()))
}

type fakeEvents struct {
	mu       sync.Mutex
	handlers map[string]socketio.Handler
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{handlers: make(map[string]socketio.Handler)}
}

func (f *fakeEvents) On(name string, h socketio.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[name] = h
}

func (f *fakeEvents) Off(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, name)
}

func (f *fakeEvents) Has(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[name]
	return ok
}

func noopHandler(Key) socketio.Handler {
	return func(json.RawMessage) {}
}

func newTestRegistry() (*Registry, *fakeTransport, *fakeEvents) {
	tr := &fakeTransport{}
	ev := newFakeEvents()
	return NewRegistry(tr, ev, logger.Nop), tr, ev
}

func TestSubscribeThenUnsubscribe(t *testing.T) {
	r, tr, ev := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, SymbolKey("EUR/USD"), noopHandler(Key{})))
	assert.True(t, r.Has("EUR/USD"))
	assert.True(t, ev.Has("EUR/USD"))

	require.NoError(t, r.Unsubscribe(ctx, SymbolKey("EUR/USD")))
	assert.False(t, r.Has("EUR/USD"))
	assert.False(t, ev.Has("EUR/USD"))
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, []string{"sub:EUR/USD", "unsub:EUR/USD"}, tr.Calls())
}

func TestUnsubscribeUnknownKeyIsNoop(t *testing.T) {
	r, tr, _ := newTestRegistry()

	require.NoError(t, r.Unsubscribe(context.Background(), SymbolKey("USD/JPY")))
	assert.Empty(t, tr.Calls())
}

func TestFailedSubscribeRecordsNothing(t *testing.T) {
	r, tr, ev := newTestRegistry()
	tr.setFail("sub:EUR/USD", &types.BusinessError{Message: "no"})

	err := r.Subscribe(context.Background(), SymbolKey("EUR/USD"), noopHandler(Key{}))

	var berr *types.BusinessError
	require.ErrorAs(t, err, &berr)
	assert.False(t, r.Has("EUR/USD"))
	assert.False(t, ev.Has("EUR/USD"))
}

func TestFailedUnsubscribeStillForgets(t *testing.T) {
	r, tr, ev := newTestRegistry()
	ctx := context.Background()
	require.NoError(t, r.Subscribe(ctx, ModelKey(types.ModelOrder), noopHandler(Key{})))
	tr.setFail("unsub:Order", &types.TransportError{StatusCode: 500})

	err := r.Unsubscribe(ctx, ModelKey(types.ModelOrder))

	require.Error(t, err)
	assert.False(t, r.Has("Order"))
	assert.False(t, ev.Has("Order"))
}

func TestDuplicateSubscribeSendsOnce(t *testing.T) {
	r, tr, _ := newTestRegistry()
	ctx := context.Background()

	require.NoError(t, r.Subscribe(ctx, SymbolKey("EUR/USD"), noopHandler(Key{})))
	require.NoError(t, r.Subscribe(ctx, SymbolKey("EUR/USD"), noopHandler(Key{})))

	assert.Equal(t, []string{"sub:EUR/USD"}, tr.Calls())
	assert.Equal(t, 1, r.Len())
}

func TestBatchReportsPerKey(t *testing.T) {
	r, tr, _ := newTestRegistry()
	failure := errors.New("rejected")
	tr.setFail("sub:USD/JPY", failure)

	keys := []Key{SymbolKey("EUR/USD"), SymbolKey("USD/JPY"), SymbolKey("GBP/USD")}
	results, err := r.SubscribeBatch(context.Background(), keys, noopHandler)

	var serr *types.SubscriptionError
	require.ErrorAs(t, err, &serr)
	assert.Len(t, serr.Failures, 1)
	assert.Equal(t, failure, serr.Failures["USD/JPY"])
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, []Key{SymbolKey("EUR/USD"), SymbolKey("GBP/USD")}, r.Keys())

	results, err = r.UnsubscribeBatch(context.Background(), keys)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, 0, r.Len())
}

func TestResubscribeDropsFailedKeys(t *testing.T) {
	r, tr, ev := newTestRegistry()
	ctx := context.Background()
	_, err := r.SubscribeBatch(ctx, []Key{SymbolKey("EUR/USD"), ModelKey(types.ModelOffer)}, noopHandler)
	require.NoError(t, err)

	tr.setFail("sub:EUR/USD", errors.New("gone"))
	results, err := r.Resubscribe(ctx)

	require.Error(t, err)
	assert.Len(t, results, 2)
	assert.False(t, r.Has("EUR/USD"))
	assert.False(t, ev.Has("EUR/USD"))
	assert.True(t, r.Has("Offer"))
	assert.True(t, ev.Has("Offer"))
	assert.Equal(t, []string{"sub:EUR/USD", "sub:Offer", "sub:EUR/USD", "sub:Offer"}, tr.Calls())
}

func TestClearSendsNothing(t *testing.T) {
	r, tr, ev := newTestRegistry()
	ctx := context.Background()
	_, err := r.SubscribeBatch(ctx, []Key{SymbolKey("EUR/USD"), ModelKey(types.ModelOffer)}, noopHandler)
	require.NoError(t, err)

	dropped := r.Clear()

	assert.Len(t, dropped, 2)
	assert.Equal(t, 0, r.Len())
	assert.False(t, ev.Has("Offer"))
	assert.Len(t, tr.Calls(), 2)
}
