package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

func TestLineSqm(t *testing.T) {
	assert.Equal(t, 24.0, LineSqm(2, 3, 4))
	assert.InDelta(t, 3.0, LineSqm(1.5, 2, 1), 1e-9)
	assert.Equal(t, 0.0, LineSqm(0, 3, 4))
	// half-up at the third place
	assert.Equal(t, 1.235, LineSqm(1.2345, 1, 1))
	assert.Equal(t, 0.001, LineSqm(0.0005, 1, 1))
}

func TestLineSqmPassesNegativeThrough(t *testing.T) {
	assert.Equal(t, -6.0, LineSqm(-2, 3, 1))
}

func TestLineFinalPriceWastageBeforeDiscount(t *testing.T) {
	assert.InDelta(t, 1150.0, LineFinalPrice(100, 10, 15, 0), 1e-9)
	assert.InDelta(t, 1035.0, LineFinalPrice(100, 10, 15, 10), 1e-9)
	// discount applied to the raw cost would give 1050
	assert.NotEqual(t, 1050.0, LineFinalPrice(100, 10, 15, 10))
}

func TestLineFinalPriceMonotonic(t *testing.T) {
	prices := []float64{0, 0.5, 1, 10, 99.99, 250}
	percents := []float64{0, 1, 12.5, 50, 99, 100}
	for _, sqm := range []float64{0, 0.001, 2.5, 100} {
		for _, w := range percents {
			for _, disc := range percents {
				prev := -1.0
				for _, p := range prices {
					got := LineFinalPrice(sqm, p, w, disc)
					require.GreaterOrEqual(t, got, prev, "sqm=%v w=%v disc=%v price=%v", sqm, w, disc, p)
					prev = got
				}
			}
			for _, p := range prices {
				prev := LineFinalPrice(sqm, p, w, 0)
				for _, disc := range percents {
					got := LineFinalPrice(sqm, p, w, disc)
					require.LessOrEqual(t, got, prev, "sqm=%v w=%v price=%v disc=%v", sqm, w, p, disc)
					prev = got
				}
			}
		}
	}
}

func TestOrderTotals(t *testing.T) {
	assert.InDelta(t, 150.0, Tax(1000), 1e-9)
	assert.InDelta(t, 1150.0, GrandTotal(1000), 1e-9)
	assert.Equal(t, 0.0, TaxableAmount(100, 250))
	assert.InDelta(t, 60.0, TaxableAmount(100, 40), 1e-9)
	assert.InDelta(t, 0.6, SubTotal(0.1, 0.2, 0.3), 1e-12)
}

func TestBalanceDue(t *testing.T) {
	assert.Equal(t, 650.0, BalanceDue(1150, 500))
	assert.Equal(t, 0.0, BalanceDue(1000, 1100))
}

func TestIsPaid(t *testing.T) {
	assert.True(t, IsPaid(0.3, 0.1+0.2))
	assert.True(t, IsPaid(1000, 999.99))
	assert.False(t, IsPaid(1000, 980))
	assert.True(t, IsPaid(1000, 1200))
	assert.False(t, IsPaid(1000, 999.98))
}

func TestNegligible(t *testing.T) {
	assert.True(t, Negligible(0))
	assert.True(t, Negligible(-5))
	assert.True(t, Negligible(0.005))
	assert.False(t, Negligible(0.01))
}

func TestQuoteTotals(t *testing.T) {
	items := []orders.LineItem{
		{ID: "a", Width: 2, Height: 5, Pieces: 10, PricePerSqm: 10, WastagePercent: 15},
		{ID: "b", Width: 1, Height: 1, Pieces: 10, PricePerSqm: 20, WastagePercent: 0, DiscountPercent: 50},
	}
	priced, tot := QuoteTotals(items, 50)

	require.Len(t, priced, 2)
	assert.Equal(t, 100.0, priced[0].TotalSqm)
	assert.InDelta(t, 1000.0, priced[0].RawPrice, 1e-9)
	assert.InDelta(t, 1150.0, priced[0].FinalPrice, 1e-9)
	assert.InDelta(t, 100.0, priced[1].FinalPrice, 1e-9)

	assert.InDelta(t, 1250.0, tot.SubTotal, 1e-9)
	assert.InDelta(t, 1200.0, tot.Taxable, 1e-9)
	assert.InDelta(t, 180.0, tot.Tax, 1e-9)
	assert.InDelta(t, 1380.0, tot.GrandTotal, 1e-9)

	// inputs are not mutated
	assert.Zero(t, items[0].FinalPrice)
}

func TestReprice(t *testing.T) {
	q := orders.Quote{
		Items:          []orders.LineItem{{Width: 1, Height: 1, Pieces: 1, PricePerSqm: 1000}},
		DiscountAmount: 0,
	}
	Reprice(&q)
	assert.InDelta(t, 1000.0, q.SubTotal, 1e-9)
	assert.InDelta(t, 150.0, q.Tax, 1e-9)
	assert.InDelta(t, 1150.0, q.GrandTotal, 1e-9)
}

func TestRepriceStoresCents(t *testing.T) {
	q := orders.Quote{Items: []orders.LineItem{{Width: 1, Height: 1, Pieces: 1, PricePerSqm: 333.333}}}
	Reprice(&q)
	assert.Equal(t, 333.33, q.SubTotal)
	assert.Equal(t, 50.0, q.Tax)
	assert.Equal(t, 383.33, q.GrandTotal)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 5000.0, Percent(10000, 50))
	assert.InDelta(t, 3450.0, Percent(11500, 30), 1e-9)
}

func TestRoundMoney(t *testing.T) {
	assert.Equal(t, 3333.33, RoundMoney(10000.0/3))
	assert.Equal(t, 0.13, RoundMoney(0.125))
}
