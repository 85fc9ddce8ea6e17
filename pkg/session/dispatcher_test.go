package session

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gofx/fxcm/pkg/logger"
	"github.com/betbot/gofx/fxcm/types"
	"github.com/betbot/gofx/pkg/marketstate"
)

func newTestDispatcher(override Handler) (*Dispatcher, *marketstate.Mirror) {
	mirror := marketstate.New(marketstate.WithLogger(logger.Nop))
	return NewDispatcher(mirror, override, nil, logger.Nop), mirror
}

func TestDispatchOrderActions(t *testing.T) {
	d, mirror := newTestDispatcher(nil)
	h := d.ModelHandler("Order")

	h(json.RawMessage(`{"orderId":"O1","amount":1}`))
	o, ok := mirror.Order("O1")
	require.True(t, ok)
	assert.Empty(t, o.Actions)

	h(json.RawMessage(`{"orderId":"O1","action":"U","amount":2}`))
	o, _ = mirror.Order("O1")
	assert.Len(t, o.Actions, 1)

	h(json.RawMessage(`{"orderId":"O1","status":"Executed"}`))
	o, _ = mirror.Order("O1")
	assert.Len(t, o.Actions, 1)
	assert.Equal(t, "Executed", o.Fields["status"])
}

func TestDispatchRoutesEveryModel(t *testing.T) {
	d, mirror := newTestDispatcher(nil)
	mirror.SeedOffers([]types.Record{{"currency": "EUR/USD", "offerId": 1}})

	d.ModelHandler("Account")(json.RawMessage(`{"accountId":"A1","balance":5}`))
	d.ModelHandler("OpenPosition")(json.RawMessage(`{"tradeId":"T1"}`))
	d.ModelHandler("ClosedPosition")(json.RawMessage(`{"tradeId":"T0"}`))
	d.ModelHandler("Summary")(json.RawMessage(`{"offerId":1,"amountK":3}`))
	d.ModelHandler("LeverageProfile")(json.RawMessage(`{"leverage":50}`))
	d.ModelHandler("Properties")(json.RawMessage(`{"offerId":1,"minQuantity":1}`))
	d.ModelHandler("Offer")(json.RawMessage(`{"offerId":1,"buy":1.5}`))

	_, ok := mirror.Account("A1")
	assert.True(t, ok)
	assert.Contains(t, mirror.OpenPositions(), "T1")
	assert.Contains(t, mirror.ClosedPositions(), "T0")
	assert.Contains(t, mirror.Summary(), "1")
	assert.Len(t, mirror.LeverageProfile(), 1)
	assert.Equal(t, "EUR/USD", mirror.Properties()["1"]["symbol"])
	inst, _ := mirror.Instrument("EUR/USD")
	buy, _ := inst.Fields.Float("buy")
	assert.Equal(t, 1.5, buy)
}

func TestDispatchUnknownModelDropped(t *testing.T) {
	d, mirror := newTestDispatcher(nil)

	d.ModelHandler("Mystery")(json.RawMessage(`{"accountId":"A1","orderId":"O1","tradeId":"T1"}`))
	d.ModelHandler("Order")(json.RawMessage(`not json`))

	assert.Empty(t, mirror.Accounts())
	assert.Empty(t, mirror.Orders())
	assert.Empty(t, mirror.OpenPositions())
}

func TestDispatchPriceNeedsInstrument(t *testing.T) {
	d, mirror := newTestDispatcher(nil)
	mirror.SeedOffers([]types.Record{{"currency": "EUR/USD", "offerId": 1, "ratePrecision": 5}})

	d.PriceHandler("GBP/USD")(json.RawMessage(`{"Symbol":"GBP/USD","Rates":[1.3,1.31,1.32,1.29],"Updated":1500854400000}`))
	_, ok := mirror.Price("GBP/USD")
	assert.False(t, ok)

	d.PriceHandler("EUR/USD")(json.RawMessage(`{"Symbol":"EUR/USD","Rates":[1.1,1.2,1.3,1.0],"Updated":1500854400000}`))
	q, ok := mirror.Price("EUR/USD")
	require.True(t, ok)
	assert.Equal(t, "1.1", q.Bid.String())
}

func TestOverrideHandlerReceivesEverything(t *testing.T) {
	var got []string
	d, mirror := newTestDispatcher(func(name string, data json.RawMessage) {
		got = append(got, name+" "+string(data))
	})

	d.ModelHandler("Order")(json.RawMessage(`{"orderId":"O1","action":"I"}`))
	d.PriceHandler("EUR/USD")(json.RawMessage(`{"Symbol":"EUR/USD"}`))

	assert.Equal(t, []string{`Order {"orderId":"O1","action":"I"}`, `EUR/USD {"Symbol":"EUR/USD"}`}, got)
	assert.Empty(t, mirror.Orders())
}
