package ledger

import "github.com/shopspring/decimal"

// Cost reporting reads persisted provenance and lot state only; nothing in
// this file mutates the ledger.

// CMV returns the cost of goods sold of a line: the sum of quantity taken
// times unit cost over its provenance.
func CMV(records []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, rec := range records {
		total = total.Add(rec.UnitCost.Mul(decimal.NewFromInt(rec.QtyTaken)))
	}
	return total
}

// Margin returns (revenue - cmv) / revenue. Zero revenue yields zero margin
// rather than a division error.
func Margin(revenue, cmv decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return revenue.Sub(cmv).Div(revenue)
}

// LotROI returns the return on investment of the consumed portion of a lot:
// (revenue attributed to the lot - cost of the consumed units) / cost of the
// consumed units. Only consumed units count; the unsold remainder must not
// dilute the ROI of the units actually sold. A lot with no consumption or a
// zero consumed cost yields zero.
func LotROI(lot EntryItem, revenue decimal.Decimal) decimal.Decimal {
	consumed := lot.Consumed()
	if consumed <= 0 {
		return decimal.Zero
	}
	cost := lot.UnitCost.Mul(decimal.NewFromInt(consumed))
	if cost.IsZero() {
		return decimal.Zero
	}
	return revenue.Sub(cost).Div(cost)
}
