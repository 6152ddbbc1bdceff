package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/observability"
	"github.com/plaenen/purchasing/pkg/validators"
)

const errorIdempotencyConflict = "idempotency_key_conflict"

// apiError is the JSON error envelope returned by the API.
type apiError struct {
	Code    string
	Message string
	Status  int
	Details map[string]any
}

func newError(code, message string, status int) apiError {
	return apiError{Code: code, Message: sanitize(message, 512), Status: status}
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
		"status":  e.Status,
	}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = id
	}
	if id := observability.TraceID(ctx); id != "" {
		payload["trace_id"] = id
	}
	for k, v := range e.Details {
		payload[k] = v
	}
	writeJSON(w, e.Status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeCommandError maps pipeline and query failures onto HTTP statuses.
func writeCommandError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	var verr *validators.ValidationError
	switch {
	case errors.As(err, &verr):
		e := newError("validation_failed", "request validation failed", http.StatusBadRequest)
		e.Details = map[string]any{"fields": verr.Fields}
		writeError(ctx, w, e)
	case errors.Is(err, domain.ErrIdempotencyKeyConflict):
		writeError(ctx, w, newError(errorIdempotencyConflict, "the Idempotency-Key was already used for a different request", http.StatusConflict))
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeError(ctx, w, newError(purchaserequest.CodeVersionMismatch, "the purchase request was changed by someone else, reload and retry", http.StatusPreconditionFailed))
	case isDomainError(err):
		de, _ := purchaserequest.AsDomainError(err)
		writeError(ctx, w, newError(de.Code, de.Message, domainStatus(de.Code)))
	case errors.Is(err, domain.ErrAggregateNotFound):
		writeError(ctx, w, newError(purchaserequest.CodeRequestNotFound, "purchase request not found", http.StatusNotFound))
	case errors.Is(err, domain.ErrInvalidCommand):
		writeError(ctx, w, newError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		logger.ErrorContext(ctx, "Request failed", slog.String("error", err.Error()))
		writeError(ctx, w, newError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func isDomainError(err error) bool {
	_, ok := purchaserequest.AsDomainError(err)
	return ok
}

func domainStatus(code string) int {
	switch code {
	case purchaserequest.CodeRequestNotFound:
		return http.StatusNotFound
	case purchaserequest.CodeUserNotAuthenticated:
		return http.StatusUnauthorized
	case purchaserequest.CodeNotAssignedApprover, purchaserequest.CodeNotRequester:
		return http.StatusForbidden
	case purchaserequest.CodeUnknownIntent, purchaserequest.CodeReasonRequired:
		return http.StatusBadRequest
	case purchaserequest.CodeVersionMismatch:
		return http.StatusPreconditionFailed
	default:
		return http.StatusConflict
	}
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(value[cut]) {
			cut--
		}
		value = value[:cut]
	}
	return value
}
