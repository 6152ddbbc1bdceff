package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/internal/purchaserequest/boundary"
	"github.com/plaenen/purchasing/internal/purchaserequest/features"
	"github.com/plaenen/purchasing/internal/purchaserequest/queries"
	"github.com/plaenen/purchasing/pkg/cqrs"
	"github.com/plaenen/purchasing/pkg/domain"
	"github.com/plaenen/purchasing/pkg/idgen"
	"github.com/plaenen/purchasing/pkg/multitenancy"
)

const (
	headerUserID         = "X-User-ID"
	headerTenantID       = "X-Tenant-ID"
	headerIdempotencyKey = "Idempotency-Key"

	maxBodyBytes = 1 << 20
)

type principalKey struct{}

// CommandResults looks up commands that were already processed.
type CommandResults interface {
	GetCommandResult(ctx context.Context, commandID string) (*domain.CommandResult, error)
}

// PurchaseRequestHandlers serves the purchase request endpoints.
type PurchaseRequestHandlers struct {
	bus     cqrs.CommandBus
	results CommandResults
	query   *queries.ContextQuery
	service *boundary.Service
	logger  *slog.Logger
}

// NewPurchaseRequestHandlers wires handlers over the command bus and the context query.
func NewPurchaseRequestHandlers(bus cqrs.CommandBus, results CommandResults, query *queries.ContextQuery, service *boundary.Service, logger *slog.Logger) *PurchaseRequestHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurchaseRequestHandlers{bus: bus, results: results, query: query, service: service, logger: logger}
}

// Routes registers the endpoints against r.
func (h *PurchaseRequestHandlers) Routes(r chi.Router) {
	r.Use(identity)
	r.Post("/", h.createPurchaseRequest)
	r.Route("/{requestID}", func(r chi.Router) {
		r.Get("/", h.getPurchaseRequest)
		r.Get("/context", h.getApprovalContext)
		r.Post("/submit", h.submitPurchaseRequest)
		r.Post("/intents", h.executeIntent)
		r.Post("/cancel", h.cancelPurchaseRequest)
	})
}

// identity reads the acting user and tenant from request headers.
func identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		user, err := uuid.Parse(strings.TrimSpace(r.Header.Get(headerUserID)))
		if err != nil || user == uuid.Nil {
			writeError(ctx, w, newError(purchaserequest.CodeUserNotAuthenticated, "a valid X-User-ID header is required", http.StatusUnauthorized))
			return
		}
		tenant := strings.TrimSpace(r.Header.Get(headerTenantID))
		if tenant == "" {
			writeError(ctx, w, newError("tenant_required", "X-Tenant-ID header is required", http.StatusBadRequest))
			return
		}
		ctx = multitenancy.WithTenantID(ctx, tenant)
		ctx = context.WithValue(ctx, principalKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFrom(ctx context.Context) uuid.UUID {
	user, _ := ctx.Value(principalKey{}).(uuid.UUID)
	return user
}

func tenantFrom(ctx context.Context) string {
	tenant, _ := multitenancy.GetTenantID(ctx)
	return tenant
}

type lineItemPayload struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unitPrice"`
}

type createRequestPayload struct {
	RequestID     string            `json:"requestId"`
	RequesterName string            `json:"requesterName"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	LineItems     []lineItemPayload `json:"lineItems"`
}

type intentPayload struct {
	Intent  string `json:"intent"`
	Comment string `json:"comment"`
}

type cancelPayload struct {
	Reason string `json:"reason"`
}

func (h *PurchaseRequestHandlers) createPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var payload createRequestPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(ctx, w, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}

	requestID := uuid.New()
	if payload.RequestID != "" {
		parsed, err := uuid.Parse(payload.RequestID)
		if err != nil {
			writeError(ctx, w, newError("invalid_request_id", "requestId must be a UUID", http.StatusBadRequest))
			return
		}
		requestID = parsed
	}

	items := make([]purchaserequest.LineItem, 0, len(payload.LineItems))
	for i, item := range payload.LineItems {
		price, err := parseAmount(item.UnitPrice)
		if err != nil {
			writeError(ctx, w, newError("invalid_line_item", fmt.Sprintf("lineItems[%d].unitPrice: %v", i, err), http.StatusBadRequest))
			return
		}
		items = append(items, purchaserequest.LineItem{Name: item.Name, Quantity: item.Quantity, UnitPrice: price})
	}

	cmd := &features.CreatePurchaseRequest{
		RequestID:      requestID,
		RequesterID:    principalFrom(ctx),
		RequesterName:  payload.RequesterName,
		Title:          payload.Title,
		Description:    payload.Description,
		LineItems:      items,
		IdempotencyKey: idempotencyKey(r),
	}
	if !h.send(w, r, cmd) {
		return
	}

	w.Header().Set("Location", "/api/v1/purchase-requests/"+requestID.String())
	h.writeView(w, r, requestID, http.StatusCreated)
}

func (h *PurchaseRequestHandlers) getPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	h.writeView(w, r, requestID, http.StatusOK)
}

func (h *PurchaseRequestHandlers) getApprovalContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	result, err := h.query.GetApprovalContext(ctx, tenantFrom(ctx), requestID, principalFrom(ctx))
	if err != nil {
		writeCommandError(ctx, h.logger, w, err)
		return
	}
	w.Header().Set("ETag", formatETag(result.Version))
	writeJSON(w, http.StatusOK, result)
}

func (h *PurchaseRequestHandlers) submitPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	cmd := &features.SubmitPurchaseRequest{
		RequestID:      requestID,
		ActorID:        principalFrom(r.Context()),
		IdempotencyKey: idempotencyKey(r),
	}
	if !applyIfMatch(w, r, cmd) || !h.send(w, r, cmd) {
		return
	}
	h.writeView(w, r, requestID, http.StatusOK)
}

// executeIntent carries out an intent offered by the approval context.
func (h *PurchaseRequestHandlers) executeIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var payload intentPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(ctx, w, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}

	intent := boundary.Intent(strings.TrimSpace(payload.Intent))
	actor := principalFrom(ctx)
	cmd, err := h.service.CreateCommandFromIntent(intent, requestID, actor, payload.Comment, r.Header.Get(headerIdempotencyKey))
	if err != nil {
		writeCommandError(ctx, h.logger, w, err)
		return
	}

	replay, err := h.alreadyProcessed(ctx, purchaserequest.AggregateIDFor(tenantFrom(ctx), requestID), cmd)
	if err != nil {
		writeCommandError(ctx, h.logger, w, err)
		return
	}
	// A replayed key goes straight to the bus so the recorded result comes back.
	if !replay {
		req, err := h.query.Load(ctx, tenantFrom(ctx), requestID)
		if err != nil {
			writeCommandError(ctx, h.logger, w, err)
			return
		}
		if !h.service.CanExecuteIntent(req, intent, actor) {
			writeCommandError(ctx, h.logger, w, intentDenied(h.service.CheckEligibility(req, actor), intent))
			return
		}
	}

	if !applyIfMatch(w, r, cmd) || !h.send(w, r, cmd) {
		return
	}
	h.writeView(w, r, requestID, http.StatusOK)
}

// alreadyProcessed reports whether cmd was recorded against aggregateID. A key
// recorded for anything else is a conflict, never a replay.
func (h *PurchaseRequestHandlers) alreadyProcessed(ctx context.Context, aggregateID string, cmd domain.Command) (bool, error) {
	if h.results == nil {
		return false, nil
	}
	result, err := h.results.GetCommandResult(ctx, cmd.ID())
	if err != nil || result == nil {
		return false, err
	}
	if err := result.SameCommand(aggregateID, cmd.CommandType()); err != nil {
		return false, err
	}
	return true, nil
}

func intentDenied(e boundary.Eligibility, intent boundary.Intent) error {
	if reason, ok := e.FirstReason(); ok {
		return &reason
	}
	return purchaserequest.NewDomainError(purchaserequest.CodeInvalidState, "intent %s is not available in the current status", intent)
}

func (h *PurchaseRequestHandlers) cancelPurchaseRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID, ok := requestIDParam(w, r)
	if !ok {
		return
	}
	var payload cancelPayload
	if err := decodeJSON(w, r, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(ctx, w, newError("invalid_json", err.Error(), http.StatusBadRequest))
		return
	}
	cmd := &features.CancelPurchaseRequest{
		RequestID:      requestID,
		ActorID:        principalFrom(ctx),
		Reason:         payload.Reason,
		IdempotencyKey: idempotencyKey(r),
	}
	if !applyIfMatch(w, r, cmd) || !h.send(w, r, cmd) {
		return
	}
	h.writeView(w, r, requestID, http.StatusOK)
}

func (h *PurchaseRequestHandlers) send(w http.ResponseWriter, r *http.Request, cmd domain.Command) bool {
	ctx := r.Context()
	_, err := h.bus.Send(ctx, domain.NewCommandEnvelope(cmd, domain.CommandMetadata{
		CorrelationID: r.Header.Get("X-Correlation-ID"),
		PrincipalID:   principalFrom(ctx).String(),
		TenantID:      tenantFrom(ctx),
	}))
	if err != nil {
		writeCommandError(ctx, h.logger, w, err)
		return false
	}
	return true
}

func (h *PurchaseRequestHandlers) writeView(w http.ResponseWriter, r *http.Request, requestID uuid.UUID, status int) {
	ctx := r.Context()
	view, err := h.query.GetPurchaseRequest(ctx, tenantFrom(ctx), requestID)
	if err != nil {
		writeCommandError(ctx, h.logger, w, err)
		return
	}
	w.Header().Set("ETag", formatETag(view.Version))
	writeJSON(w, status, view)
}

func requestIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(r.Context(), w, newError("invalid_request_id", "request id must be a UUID", http.StatusBadRequest))
		return uuid.Nil, false
	}
	return id, true
}

// applyIfMatch copies the If-Match version token onto cmd.
func applyIfMatch(w http.ResponseWriter, r *http.Request, cmd domain.Command) bool {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" {
		return true
	}
	version, err := parseETag(raw)
	if err != nil {
		writeError(r.Context(), w, newError("invalid_if_match", err.Error(), http.StatusBadRequest))
		return false
	}
	if vc, ok := cmd.(features.VersionedCommand); ok {
		vc.SetExpectedVersion(version)
	}
	return true
}

func idempotencyKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(headerIdempotencyKey)); key != "" {
		return key
	}
	return idgen.MustGenerateSortableID()
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, errors.New("amount is required")
	}
	return decimal.NewFromString(raw)
}

func formatETag(version int64) string {
	return strconv.Quote(strconv.FormatInt(version, 10))
}

func parseETag(raw string) (int64, error) {
	raw = strings.TrimPrefix(raw, "W/")
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || version < 1 {
		return 0, errors.New("If-Match must carry a version returned in an ETag")
	}
	return version, nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
