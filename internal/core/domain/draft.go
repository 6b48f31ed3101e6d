package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// MaxQuantity bounds a line quantity and the total demand for one product.
// Stock columns are 32-bit.
const MaxQuantity = math.MaxInt32

type LineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// DraftLine is a validated line with the unit price captured from the catalog.
type DraftLine struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.Decimal
	Subtotal  decimal.Decimal
}

// Draft is a validated order that has not been written yet.
type Draft struct {
	UserID          string
	ShippingAddress *string
	Lines           []DraftLine
	Total           decimal.Decimal
}

// Demand returns the total requested quantity per product.
func (d *Draft) Demand() map[int64]int {
	demand := make(map[int64]int, len(d.Lines))
	for _, l := range d.Lines {
		demand[l.ProductID] += l.Quantity
	}
	return demand
}
