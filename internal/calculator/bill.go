package calculator

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/r3labs/diff/v3"

	"github.com/mmynk/splitsession/internal/models"
)

// DefaultCurrency is used for new bills and receipts that omit a currency.
const DefaultCurrency = "INR"

var ErrInvalidBill = errors.New("invalid bill")

// NewBill returns an empty bill dated today.
func NewBill(now time.Time) models.Bill {
	return models.Bill{
		Date:     now.Format("2006-01-02"),
		Currency: DefaultCurrency,
		Items:    []models.BillItem{},
	}
}

// Recalculate restores the derived fields of a bill after any mutation:
// every item's TotalPrice, the charges SubTotal, and the charges Total.
func Recalculate(bill *models.Bill) {
	subTotal := 0.0
	for i := range bill.Items {
		item := &bill.Items[i]
		item.TotalPrice = float64(item.Quantity) * item.UnitPrice
		subTotal += item.TotalPrice
	}
	c := &bill.Charges
	c.SubTotal = subTotal
	c.Total = c.SubTotal + c.Tax + c.ServiceCharge - c.Discount
}

// ValidateBill checks the bill schema. It does not check derived fields; run
// Recalculate first.
func ValidateBill(bill models.Bill) error {
	if bill.Merchant == "" {
		return fmt.Errorf("%w: merchant is required", ErrInvalidBill)
	}
	if bill.Currency == "" {
		return fmt.Errorf("%w: currency is required", ErrInvalidBill)
	}
	if bill.Charges.Tax < 0 || bill.Charges.ServiceCharge < 0 || bill.Charges.Discount < 0 {
		return fmt.Errorf("%w: charges cannot be negative", ErrInvalidBill)
	}

	seen := make(map[string]bool, len(bill.Items))
	for i, item := range bill.Items {
		switch {
		case item.ID == "":
			return fmt.Errorf("%w: item %d has no id", ErrInvalidBill, i+1)
		case seen[item.ID]:
			return fmt.Errorf("%w: duplicate item id %q", ErrInvalidBill, item.ID)
		case item.Name == "":
			return fmt.Errorf("%w: item %d has no name", ErrInvalidBill, i+1)
		case item.Quantity < 1:
			return fmt.Errorf("%w: item %q quantity must be at least 1", ErrInvalidBill, item.Name)
		case item.UnitPrice < 0:
			return fmt.Errorf("%w: item %q unit price cannot be negative", ErrInvalidBill, item.Name)
		}
		seen[item.ID] = true
	}
	return nil
}

// BillEditor applies organizer edits to a bill, keeping derived fields in sync
// after every call.
type BillEditor struct {
	bill models.Bill
}

// NewBillEditor starts editing a copy of bill.
func NewBillEditor(bill models.Bill) *BillEditor {
	e := &BillEditor{bill: bill.Clone()}
	if e.bill.Items == nil {
		e.bill.Items = []models.BillItem{}
	}
	Recalculate(&e.bill)
	return e
}

// Bill returns a copy of the edited bill.
func (e *BillEditor) Bill() models.Bill {
	return e.bill.Clone()
}

// SetInfo updates the descriptive fields.
func (e *BillEditor) SetInfo(merchant, date, currency string) {
	e.bill.Merchant = merchant
	e.bill.Date = date
	e.bill.Currency = currency
}

// AddItem appends an item and returns its generated ID.
func (e *BillEditor) AddItem(name string, quantity int, unitPrice float64) string {
	id := uuid.NewString()
	e.bill.Items = append(e.bill.Items, models.BillItem{
		ID:        id,
		Name:      name,
		Quantity:  quantity,
		UnitPrice: unitPrice,
	})
	Recalculate(&e.bill)
	return id
}

// ImportItem appends an existing item. Its ID is kept unless it is empty or
// already on the bill, in which case a new one is generated. It returns the ID
// the item ended up with.
func (e *BillEditor) ImportItem(item models.BillItem) string {
	if item.ID == "" || e.bill.FindItem(item.ID) != nil {
		item.ID = uuid.NewString()
	}
	e.bill.Items = append(e.bill.Items, item)
	Recalculate(&e.bill)
	return item.ID
}

// UpdateItem replaces the editable fields of the item at index.
func (e *BillEditor) UpdateItem(index int, name string, quantity int, unitPrice float64) error {
	if index < 0 || index >= len(e.bill.Items) {
		return fmt.Errorf("%w: item index %d out of range", ErrInvalidBill, index)
	}
	item := &e.bill.Items[index]
	item.Name = name
	item.Quantity = quantity
	item.UnitPrice = unitPrice
	Recalculate(&e.bill)
	return nil
}

// RemoveItem deletes the item at index.
func (e *BillEditor) RemoveItem(index int) error {
	if index < 0 || index >= len(e.bill.Items) {
		return fmt.Errorf("%w: item index %d out of range", ErrInvalidBill, index)
	}
	e.bill.Items = append(e.bill.Items[:index], e.bill.Items[index+1:]...)
	Recalculate(&e.bill)
	return nil
}

// SetCharges updates tax, service charge and discount. SubTotal and Total are derived.
func (e *BillEditor) SetCharges(tax, serviceCharge, discount float64) {
	e.bill.Charges.Tax = tax
	e.bill.Charges.ServiceCharge = serviceCharge
	e.bill.Charges.Discount = discount
	Recalculate(&e.bill)
}

// DiffBills lists field-level changes between two versions of a bill.
// Items are matched by ID.
func DiffBills(before, after models.Bill) (diff.Changelog, error) {
	differ, err := diff.NewDiffer(diff.SliceOrdering(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create differ: %w", err)
	}
	changes, err := differ.Diff(before, after)
	if err != nil {
		return nil, fmt.Errorf("failed to diff bills: %w", err)
	}
	return changes, nil
}
