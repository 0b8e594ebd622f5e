package models

// Bill represents a receipt to be split among the participants of a session.
type Bill struct {
	// Merchant is the name of the shop or restaurant on the receipt.
	Merchant string `json:"merchant"`

	// Date is the bill date in YYYY-MM-DD format.
	Date string `json:"date"`

	// Currency is an ISO-like currency code (e.g., "INR", "USD").
	Currency string `json:"currency"`

	// Items are the line items, in receipt order.
	Items []BillItem `json:"items"`

	// Charges holds the aggregate amounts. Charges.Total is authoritative.
	Charges BillCharges `json:"charges"`
}

// BillItem represents a single line item on a bill.
type BillItem struct {
	// ID is unique within the bill.
	ID string `json:"id" diff:"id,identifier"`

	// Name is the description of the item (e.g., "Margherita Pizza").
	Name string `json:"name"`

	// Quantity is the number of units on the receipt (at least 1).
	Quantity int `json:"quantity"`

	// UnitPrice is the price of one unit.
	UnitPrice float64 `json:"unitPrice"`

	// TotalPrice is Quantity × UnitPrice, kept in sync by the bill editor.
	TotalPrice float64 `json:"totalPrice"`
}

// BillCharges holds the aggregate amounts of a bill.
//
// Invariants: SubTotal == Σ Items[].TotalPrice and
// Total == SubTotal + Tax + ServiceCharge - Discount.
type BillCharges struct {
	SubTotal      float64 `json:"subTotal"`
	Tax           float64 `json:"tax"`
	ServiceCharge float64 `json:"serviceCharge"`
	Discount      float64 `json:"discount"`
	Total         float64 `json:"total"`
}

// FindItem returns the item with the given ID, or nil.
func (b *Bill) FindItem(itemID string) *BillItem {
	for i := range b.Items {
		if b.Items[i].ID == itemID {
			return &b.Items[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the bill.
func (b Bill) Clone() Bill {
	out := b
	if b.Items != nil {
		out.Items = make([]BillItem, len(b.Items))
		copy(out.Items, b.Items)
	}
	return out
}
