package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"
)

// Request messages that name a session or participant expose them with
// protobuf-style getters so every RPC log line can be tied to a session, even
// when the caller carries no organizer token.
type sessionRequest interface {
	GetSessionID() string
}

type participantRequest interface {
	GetParticipantID() string
}

// LoggingInterceptor logs each RPC with its session, participant, outcome and
// duration. OrganizerAuth must run first for the organizer flag to be set.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			attrs := rpcAttrs(ctx, req)

			resp, err := next(ctx, req)

			attrs = append(attrs, "duration_ms", time.Since(start).Milliseconds())
			if err == nil {
				slog.Info("RPC ok", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			attrs = append(attrs, "code", code.String())
			var connectErr *connect.Error
			if errors.As(err, &connectErr) {
				attrs = append(attrs, "error", connectErr.Message())
			} else {
				attrs = append(attrs, "error", err)
			}
			slog.Log(ctx, levelFor(code), "RPC error", attrs...)
			return resp, err
		}
	}
}

// rpcAttrs collects the log fields known before the handler runs. The session
// comes from the organizer token when present, otherwise from the message.
func rpcAttrs(ctx context.Context, req connect.AnyRequest) []any {
	attrs := []any{"procedure", req.Spec().Procedure}

	sessionID := GetSessionID(ctx)
	organizer := sessionID != ""
	if m, ok := req.Any().(sessionRequest); ok && sessionID == "" {
		sessionID = m.GetSessionID()
	}
	if sessionID != "" {
		attrs = append(attrs, "session_id", sessionID)
	}
	if m, ok := req.Any().(participantRequest); ok && m.GetParticipantID() != "" {
		attrs = append(attrs, "participant_id", m.GetParticipantID())
	}
	return append(attrs, "organizer", organizer)
}

// levelFor keeps caller mistakes such as a locked session or an unknown id at
// warn, and server-side failures at error.
func levelFor(code connect.Code) slog.Level {
	switch code {
	case connect.CodeInvalidArgument, connect.CodeNotFound, connect.CodeFailedPrecondition,
		connect.CodeUnauthenticated, connect.CodePermissionDenied, connect.CodeCanceled,
		connect.CodeAlreadyExists, connect.CodeOutOfRange:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
