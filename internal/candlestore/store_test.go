package candlestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/gofx/fxcm/types"
)

func candles(ts ...int64) *types.CandleResult {
	r := &types.CandleResult{InstrumentID: 1, Period: "m1", Headers: types.CandleHeaders}
	for _, t := range ts {
		r.Candles = append(r.Candles, types.Candle{Timestamp: t, BidOpen: 1.1, AskClose: 1.2, TickQty: 7})
	}
	return r
}

func TestSaveAndLoad(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "db", "candles.db"))
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	n, err := s.Save(ctx, "EUR/USD", "m1", candles(300, 100, 200))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// 重复写入同一时间戳是覆盖
	_, err = s.Save(ctx, "EUR/USD", "m1", candles(300))
	require.NoError(t, err)

	all, err := s.Load(ctx, "EUR/USD", "m1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{all[0].Timestamp, all[1].Timestamp, all[2].Timestamp})
	assert.Equal(t, 1.1, all[0].BidOpen)
	assert.Equal(t, 7.0, all[0].TickQty)

	latest, err := s.Load(ctx, "EUR/USD", "m1", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, int64(200), latest[0].Timestamp)

	other, err := s.Load(ctx, "EUR/USD", "H1", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSaveEmptyResult(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "candles.db"))
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Save(context.Background(), "EUR/USD", "m1", &types.CandleResult{})
	require.NoError(t, err)
	assert.Zero(t, n)
}
