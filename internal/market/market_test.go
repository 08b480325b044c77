package market

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteRecompute(t *testing.T) {
	t.Parallel()

	q := Quote{Price: 110, PreviousClose: 100}
	q.Recompute()
	require.InDelta(t, 10, q.Change, 1e-9)
	require.InDelta(t, 10, q.ChangePercent, 1e-9)

	// zero previous close never divides
	q = Quote{Price: 42, PreviousClose: 0}
	q.Recompute()
	require.InDelta(t, 42, q.Change, 1e-9)
	require.Zero(t, q.ChangePercent)
}

func TestRebase_FirstPointIsZero(t *testing.T) {
	t.Parallel()

	pts := []HistoryPoint{
		{Date: "2025-01-01", Close: 200},
		{Date: "2025-01-02", Close: 210},
		{Date: "2025-01-03", Close: 190},
	}
	s := Rebase("URTH", "MSCI World", pts)
	require.Len(t, s.Points, 3)
	require.Zero(t, s.Points[0].ReturnPct)
	require.InDelta(t, 5, s.Points[1].ReturnPct, 1e-9)
	require.InDelta(t, -5, s.Points[2].ReturnPct, 1e-9)
}

func TestRebase_Empty(t *testing.T) {
	t.Parallel()

	s := Rebase("URTH", "MSCI World", nil)
	require.Empty(t, s.Points)
}

func TestParsePeriod(t *testing.T) {
	t.Parallel()

	p, err := ParsePeriod("")
	require.NoError(t, err)
	require.Equal(t, DefaultPeriod, p)

	p, err = ParsePeriod(" 1Y ")
	require.NoError(t, err)
	require.Equal(t, Period1Y, p)

	_, err = ParsePeriod("2centuries")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPeriodDays(t *testing.T) {
	t.Parallel()

	require.Equal(t, 7, Period1W.Days())
	require.Equal(t, 1095, Period3Y.Days())
	require.Zero(t, PeriodMax.Days())
}
