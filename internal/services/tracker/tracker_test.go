package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortWindowFor(t *testing.T) {
	tests := map[int]int{2: 2, 4: 4, 9: 5, 15: 5, 30: 10, 60: 20}
	for long, want := range tests {
		assert.Equal(t, want, ShortWindowFor(long), "long=%d", long)
	}
}

func TestNewRejectsTinyWindow(t *testing.T) {
	_, err := New("BTCUSDT", 1)
	require.Error(t, err)
}

func TestFirstPointHasNoMetrics(t *testing.T) {
	tr, err := New("BTCUSDT", 9)
	require.NoError(t, err)
	_, ok, err := tr.Update(100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Len())
}

func TestFlatSeriesHasZeroDispersion(t *testing.T) {
	tr, err := New("BTCUSDT", 9)
	require.NoError(t, err)

	var ok bool
	for i := 0; i < 3; i++ {
		m, gotOK, err := tr.Update(100)
		require.NoError(t, err)
		ok = gotOK
		if i == 2 {
			assert.False(t, m.WarmingUp)
			assert.Zero(t, m.RollingStd)
			assert.Zero(t, m.ShortVol)
			assert.Zero(t, m.LongVol)
			assert.Equal(t, 100.0, m.RollingMean)
		}
	}
	assert.True(t, ok)
}

func TestSecondPointIsWarmUp(t *testing.T) {
	tr, err := New("ETHUSDT", 9)
	require.NoError(t, err)
	_, _, _ = tr.Update(100)
	m, ok, err := tr.Update(110)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.WarmingUp)
	assert.Zero(t, m.ShortVol)
	assert.Zero(t, m.LongVol)
	assert.InDelta(t, 105.0, m.RollingMean, 1e-12)
	assert.InDelta(t, 10.0, m.Range, 1e-12)
	assert.InDelta(t, 10.0, m.Slope, 1e-12)
}

func TestWindowEvictsOldest(t *testing.T) {
	tr, err := New("BTCUSDT", 9)
	require.NoError(t, err)
	for i := 1; i <= 9; i++ {
		_, _, err := tr.Update(float64(i))
		require.NoError(t, err)
		assert.LessOrEqual(t, tr.Len(), 9)
	}
	assert.Equal(t, 9, tr.Len())

	_, _, err = tr.Update(10)
	require.NoError(t, err)
	assert.Equal(t, 9, tr.Len())
	assert.Equal(t, []float64{2, 3, 4, 5, 6, 7, 8, 9, 10}, tr.Prices())

	for i := 11; i <= 30; i++ {
		_, _, _ = tr.Update(float64(i))
		assert.Equal(t, 9, tr.Len())
	}
}

func TestUpdateRejectsInvalidPrice(t *testing.T) {
	tr, err := New("BTCUSDT", 9)
	require.NoError(t, err)
	_, _, err = tr.Update(0)
	assert.ErrorIs(t, err, ErrInvalidPrice)
	assert.Zero(t, tr.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	orig, err := New("BTCUSDT", 9)
	require.NoError(t, err)
	for _, p := range []float64{100, 101, 99, 103, 102, 104, 101} {
		_, _, err := orig.Update(p)
		require.NoError(t, err)
	}

	restored, err := New("BTCUSDT", 9)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(orig.Snapshot()))

	want, _, err := orig.Update(105)
	require.NoError(t, err)
	got, _, err := restored.Update(105)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSnapshotIsACopy(t *testing.T) {
	tr, _ := New("BTCUSDT", 9)
	_, _, _ = tr.Update(100)
	snap := tr.Snapshot()
	snap.Prices[0] = -1
	assert.Equal(t, []float64{100}, tr.Prices())
}

func TestRestoreWithDifferentLongWindow(t *testing.T) {
	big, _ := New("BTCUSDT", 30)
	for i := 1; i <= 30; i++ {
		_, _, _ = big.Update(float64(i))
	}
	snap := big.Snapshot()
	assert.Equal(t, 10, snap.ShortWindow)

	small, _ := New("BTCUSDT", 9)
	require.NoError(t, small.Restore(snap))
	assert.Equal(t, 9, small.Len())
	assert.Equal(t, 5, small.ShortWindow())
	assert.Equal(t, 9, small.LongWindow())
	assert.Equal(t, 30.0, small.Prices()[8])

	other, _ := New("ETHUSDT", 9)
	assert.ErrorIs(t, other.Restore(snap), ErrAssetMismatch)
}

func TestCorrelation(t *testing.T) {
	a, _ := New("BTCUSDT", 9)
	b, _ := New("ETHUSDT", 9)
	assert.Zero(t, Correlation(a, b))

	for _, p := range []float64{100, 102, 101, 105, 104} {
		_, _, _ = a.Update(p)
		_, _, _ = b.Update(p * 2)
	}
	assert.InDelta(t, 1.0, Correlation(a, b), 1e-9)
	assert.InDelta(t, 1.0, Correlation(a, a), 1e-9)
}
