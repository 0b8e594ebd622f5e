package service

import (
	"context"
	"errors"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/splitsession/internal/auth"
	"github.com/mmynk/splitsession/internal/calculator"
	"github.com/mmynk/splitsession/internal/lifecycle"
	"github.com/mmynk/splitsession/internal/payment"
	"github.com/mmynk/splitsession/internal/receipt"
	"github.com/mmynk/splitsession/internal/storage"
)

var (
	errInvalidArgument     = errors.New("invalid argument")
	errParticipantNotFound = errors.New("participant not found")
	errNotAllSubmitted     = errors.New("not every participant has submitted")
	errReceiptDisabled     = errors.New("receipt analysis is not configured")
)

// toConnectError maps a domain error onto the Connect code the client sees.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		return err
	}

	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errParticipantNotFound):
		return connect.NewError(connect.CodeNotFound, err)

	case errors.Is(err, errInvalidArgument),
		errors.Is(err, calculator.ErrInvalidBill),
		errors.Is(err, calculator.ErrUnknownItem),
		errors.Is(err, calculator.ErrInvalidDelta),
		errors.Is(err, receipt.ErrUnsupportedImage),
		errors.Is(err, receipt.ErrMalformedReceipt):
		return connect.NewError(connect.CodeInvalidArgument, err)

	case errors.Is(err, lifecycle.ErrSessionLocked),
		errors.Is(err, lifecycle.ErrAlreadySubmitted),
		errors.Is(err, errNotAllSubmitted),
		errors.Is(err, payment.ErrNoPayee):
		return connect.NewError(connect.CodeFailedPrecondition, err)

	case errors.Is(err, auth.ErrMissingToken):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, auth.ErrWrongSession):
		return connect.NewError(connect.CodePermissionDenied, err)

	case errors.Is(err, receipt.ErrUnavailable), errors.Is(err, errReceiptDisabled):
		return connect.NewError(connect.CodeUnavailable, err)

	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	}

	slog.Error("unexpected error", "error", err)
	return connect.NewError(connect.CodeInternal, err)
}
