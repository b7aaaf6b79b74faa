package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/bianshufei/meetnow/internal/chat"
	"github.com/bianshufei/meetnow/internal/confirm"
	"github.com/bianshufei/meetnow/internal/domain/order"
	"github.com/bianshufei/meetnow/internal/store"
)

// errorBody is the JSON error response shape.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError maps domain errors onto HTTP status codes. Unmapped errors are
// logged and reported as 500 without leaking internals.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := classify(err)
	if code == http.StatusInternalServerError {
		span := trace.SpanFromContext(r.Context())
		span.RecordError(err)
		span.SetStatus(codes.Error, "internal error")
		zctx.From(r.Context()).Error("unhandled error", zap.Error(err))
		writeJSON(w, code, errorBody{Code: code, Message: "internal error"})
		return
	}
	writeJSON(w, code, errorBody{Code: code, Message: err.Error()})
}

func classify(err error) int {
	var (
		notFound    *order.NotFoundError
		msgNotFound *chat.MessageNotFoundError
		badMove     *order.InvalidTransitionError
		badState    *confirm.InvalidStateError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &msgNotFound):
		return http.StatusNotFound
	case errors.As(err, &badMove), errors.As(err, &badState):
		return http.StatusConflict
	case errors.Is(err, confirm.ErrNoActiveRequest),
		errors.Is(err, confirm.ErrRequestOutstanding),
		errors.Is(err, confirm.ErrTooManyRequests),
		errors.Is(err, chat.ErrPermanentlyFailed),
		errors.Is(err, chat.ErrNotRetryable):
		return http.StatusConflict
	case errors.Is(err, confirm.ErrInitiatorResponse),
		errors.Is(err, confirm.ErrNotParticipant),
		errors.Is(err, store.ErrOwnOrder):
		return http.StatusForbidden
	case errors.Is(err, store.ErrCreatorRequired),
		errors.Is(err, store.ErrTakerRequired),
		errors.Is(err, store.ErrNegativeAmount),
		errors.Is(err, chat.ErrOrderRequired),
		errors.Is(err, chat.ErrSenderRequired),
		errors.Is(err, chat.ErrUnknownKind):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
