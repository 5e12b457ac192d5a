// Package pricing holds the pure money maths for quotes: per-line square
// metres and prices, order totals, VAT and balance checks. Nothing here does
// I/O or rejects input; callers clamp values before calling in.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/stonefab-orders/internal/orders"
)

var (
	// TaxRate is the single fixed VAT rate.
	TaxRate = decimal.RequireFromString("0.15")
	// PrecisionThreshold absorbs float noise when comparing money.
	PrecisionThreshold = decimal.RequireFromString("0.01")

	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

const sqmPlaces = 3

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// LineSqm = width × height × pieces rounded half-up to 3 places.
func LineSqm(width, height, pieces float64) float64 {
	return d(width).Mul(d(height)).Mul(d(pieces)).Round(sqmPlaces).InexactFloat64()
}

// LineRawPrice is sqm × pricePerSqm with no wastage or discount.
func LineRawPrice(sqm, pricePerSqm float64) float64 {
	return d(sqm).Mul(d(pricePerSqm)).InexactFloat64()
}

// LineFinalPrice applies wastage first, then the line discount, to the padded cost.
func LineFinalPrice(sqm, pricePerSqm, wastagePercent, discountPercent float64) float64 {
	return lineFinal(d(sqm), d(pricePerSqm), d(wastagePercent), d(discountPercent)).InexactFloat64()
}

func lineFinal(sqm, price, wastage, discount decimal.Decimal) decimal.Decimal {
	base := sqm.Mul(price)
	withWastage := base.Mul(one.Add(wastage.Div(hundred)))
	return withWastage.Mul(one.Sub(discount.Div(hundred)))
}

func SubTotal(finalPrices ...float64) float64 {
	sum := decimal.Zero
	for _, p := range finalPrices {
		sum = sum.Add(d(p))
	}
	return sum.InexactFloat64()
}

// TaxableAmount = max(0, subTotal − order discount).
func TaxableAmount(subTotal, orderDiscount float64) float64 {
	return decimal.Max(decimal.Zero, d(subTotal).Sub(d(orderDiscount))).InexactFloat64()
}

func Tax(taxable float64) float64 {
	return d(taxable).Mul(TaxRate).InexactFloat64()
}

func GrandTotal(taxable float64) float64 {
	t := d(taxable)
	return t.Add(t.Mul(TaxRate)).InexactFloat64()
}

// BalanceDue never goes negative.
func BalanceDue(grandTotal, amountPaid float64) float64 {
	return decimal.Max(decimal.Zero, d(grandTotal).Sub(d(amountPaid))).InexactFloat64()
}

// IsPaid compares through the balance with tolerance, never with equality.
func IsPaid(grandTotal, amountPaid float64) bool {
	return decimal.Max(decimal.Zero, d(grandTotal).Sub(d(amountPaid))).LessThanOrEqual(PrecisionThreshold)
}

// Percent returns amount × pct/100.
func Percent(amount, pct float64) float64 {
	return d(amount).Mul(d(pct)).Div(hundred).InexactFloat64()
}

// Sum adds amounts in decimal space.
func Sum(amounts ...float64) float64 {
	return SubTotal(amounts...)
}

// RoundMoney rounds half-up to cents.
func RoundMoney(amount float64) float64 {
	return d(amount).Round(2).InexactFloat64()
}

// Negligible reports whether an amount is within the rounding epsilon of zero or below.
func Negligible(amount float64) bool {
	return d(amount).LessThanOrEqual(decimal.RequireFromString("0.005"))
}

// PriceLine fills the derived fields of a line item.
func PriceLine(it orders.LineItem) orders.LineItem {
	it.TotalSqm = LineSqm(it.Width, it.Height, it.Pieces)
	it.RawPrice = LineRawPrice(it.TotalSqm, it.PricePerSqm)
	it.FinalPrice = LineFinalPrice(it.TotalSqm, it.PricePerSqm, it.WastagePercent, it.DiscountPercent)
	return it
}

type Totals struct {
	SubTotal   float64 `json:"sub_total"`
	Taxable    float64 `json:"taxable"`
	Tax        float64 `json:"tax"`
	GrandTotal float64 `json:"grand_total"`
}

// QuoteTotals re-prices every line and derives the order totals.
func QuoteTotals(items []orders.LineItem, orderDiscount float64) ([]orders.LineItem, Totals) {
	priced := make([]orders.LineItem, len(items))
	sub := decimal.Zero
	for i, it := range items {
		priced[i] = PriceLine(it)
		sub = sub.Add(lineFinal(d(priced[i].TotalSqm), d(it.PricePerSqm), d(it.WastagePercent), d(it.DiscountPercent)))
	}
	taxable := decimal.Max(decimal.Zero, sub.Sub(d(orderDiscount)))
	tax := taxable.Mul(TaxRate)
	return priced, Totals{
		SubTotal:   sub.InexactFloat64(),
		Taxable:    taxable.InexactFloat64(),
		Tax:        tax.InexactFloat64(),
		GrandTotal: taxable.Add(tax).InexactFloat64(),
	}
}

// Reprice applies QuoteTotals to a quote in place. Stored totals are in cents.
func Reprice(q *orders.Quote) {
	items, t := QuoteTotals(q.Items, q.DiscountAmount)
	q.Items = items
	q.SubTotal = RoundMoney(t.SubTotal)
	q.Tax = RoundMoney(t.Tax)
	q.GrandTotal = RoundMoney(t.GrandTotal)
}
