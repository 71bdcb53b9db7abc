package market

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantbt/internal/types"
)

func TestStoreSaveAndRangeBars(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveBars(ctx, []types.Bar{
		mkBar("ACME", "2024-01-03", 10.5),
		mkBar("ACME", "2024-01-02", 10.0),
		mkBar("BETA", "2024-01-02", 50.0),
	}))

	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-31")

	got, err := s.RangeBars(ctx, "ACME", start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// 按日期升序，decimal 精度不变
	assert.Equal(t, "2024-01-02", DateKey(got[0].Date))
	assert.Equal(t, "10", got[0].Close.String())
	assert.Equal(t, "10.5", got[1].Close.String())

	all, err := s.AllBars(ctx, start, end)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStoreSaveBarsIsIdempotent(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.SaveBars(ctx, []types.Bar{mkBar("ACME", "2024-01-02", 10.0)}))
	// 同 key 覆盖
	require.NoError(t, s.SaveBars(ctx, []types.Bar{mkBar("ACME", "2024-01-02", 11.0)}))

	start, _ := time.Parse("2006-01-02", "2024-01-01")
	end, _ := time.Parse("2006-01-02", "2024-01-31")
	got, err := s.RangeBars(ctx, "ACME", start, end)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "11", got[0].Close.String())
}

func TestStoreRejectsAfterClose(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.SaveBars(context.Background(), []types.Bar{mkBar("ACME", "2024-01-02", 10.0)})
	assert.Error(t, err)
}
