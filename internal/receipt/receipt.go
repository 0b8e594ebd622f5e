// Package receipt turns a photo of a receipt into a bill using a vision model.
//
// Whatever the model returns is normalized and validated before it reaches the
// caller; a result that cannot be made into a valid bill is reported as
// ErrMalformedReceipt and never used for allocation.
package receipt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmynk/splitsession/internal/calculator"
	"github.com/mmynk/splitsession/internal/models"
)

var (
	ErrMalformedReceipt = errors.New("receipt could not be parsed into a bill")
	ErrUnsupportedImage = errors.New("unsupported image type")
	ErrUnavailable      = errors.New("receipt analysis service unavailable")
)

// Analyzer extracts a bill from a receipt image.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*models.Bill, error)
}

var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// ImageType returns the MIME type to send for an upload, sniffing the content when
// mimeType is empty. Non-image uploads are rejected with ErrUnsupportedImage.
func ImageType(image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrUnsupportedImage)
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if !supportedImageTypes[mimeType] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mimeType)
	}
	return mimeType, nil
}

// Normalize repairs what a model commonly gets wrong and validates the result:
// missing or duplicate item IDs are regenerated, missing currency and date are
// defaulted, unit prices are derived from line totals when absent, and every
// derived amount is recomputed from the items and charges.
func Normalize(bill *models.Bill, now time.Time) (*models.Bill, error) {
	if bill == nil {
		return nil, fmt.Errorf("%w: empty result", ErrMalformedReceipt)
	}
	if len(bill.Items) == 0 {
		return nil, fmt.Errorf("%w: no items found", ErrMalformedReceipt)
	}

	merchant := strings.TrimSpace(bill.Merchant)
	if merchant == "" {
		merchant = "Unknown merchant"
	}
	currency := strings.ToUpper(strings.TrimSpace(bill.Currency))
	if currency == "" {
		currency = calculator.DefaultCurrency
	}
	date := bill.Date
	if _, err := time.Parse("2006-01-02", date); err != nil {
		date = now.Format("2006-01-02")
	}

	editor := calculator.NewBillEditor(calculator.NewBill(now))
	editor.SetInfo(merchant, date, currency)
	for _, item := range bill.Items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Quantity < 1 {
			item.Quantity = 1
		}
		if item.UnitPrice == 0 && item.TotalPrice > 0 {
			item.UnitPrice = item.TotalPrice / float64(item.Quantity)
		}
		editor.ImportItem(item)
	}
	editor.SetCharges(bill.Charges.Tax, bill.Charges.ServiceCharge, bill.Charges.Discount)

	out := editor.Bill()
	if err := calculator.ValidateBill(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReceipt, err)
	}
	return &out, nil
}
