// Package queries reads purchase requests for presentation.
package queries

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/internal/purchaserequest/boundary"
	"github.com/plaenen/purchasing/pkg/domain"
)

// ApprovalContextResult is a boundary context with the version it was built
// from. The version is the token to send back as the expected version.
type ApprovalContextResult struct {
	Context boundary.ApprovalContext `json:"context"`
	Version int64                    `json:"version"`
}

// PurchaseRequestView is a read model of one request.
type PurchaseRequestView struct {
	RequestID     uuid.UUID                  `json:"requestId"`
	RequesterID   uuid.UUID                  `json:"requesterId"`
	RequesterName string                     `json:"requesterName"`
	Title         string                     `json:"title"`
	Description   string                     `json:"description,omitempty"`
	LineItems     []purchaserequest.LineItem `json:"lineItems"`
	Total         decimal.Decimal            `json:"total"`
	Status        purchaserequest.Status     `json:"status"`
	CreatedAt     time.Time                  `json:"createdAt"`
	SubmittedAt   *time.Time                 `json:"submittedAt,omitempty"`
	ApprovedAt    *time.Time                 `json:"approvedAt,omitempty"`
	RejectedAt    *time.Time                 `json:"rejectedAt,omitempty"`
	CancelledAt   *time.Time                 `json:"cancelledAt,omitempty"`
	Version       int64                      `json:"version"`
}

// ContextQuery loads requests and describes them through the boundary.
type ContextQuery struct {
	repo    *purchaserequest.Repository
	service *boundary.Service
}

// NewContextQuery creates a query over repo.
func NewContextQuery(repo *purchaserequest.Repository, service *boundary.Service) *ContextQuery {
	return &ContextQuery{repo: repo, service: service}
}

// Load returns the request or domain.ErrAggregateNotFound.
func (q *ContextQuery) Load(ctx context.Context, tenantID string, requestID uuid.UUID) (*purchaserequest.PurchaseRequest, error) {
	return q.repo.Load(ctx, purchaserequest.AggregateIDFor(tenantID, requestID))
}

// GetApprovalContext describes the request for actor. A missing request
// yields a context blocked with REQUEST_NOT_FOUND and domain.ErrAggregateNotFound.
func (q *ContextQuery) GetApprovalContext(ctx context.Context, tenantID string, requestID, actor uuid.UUID) (*ApprovalContextResult, error) {
	r, err := q.Load(ctx, tenantID, requestID)
	if errors.Is(err, domain.ErrAggregateNotFound) {
		return &ApprovalContextResult{Context: q.service.GetContext(nil, actor)}, err
	}
	if err != nil {
		return nil, err
	}
	return &ApprovalContextResult{
		Context: q.service.GetContext(r, actor),
		Version: r.Version(),
	}, nil
}

// GetPurchaseRequest returns the read model of a request.
func (q *ContextQuery) GetPurchaseRequest(ctx context.Context, tenantID string, requestID uuid.UUID) (*PurchaseRequestView, error) {
	r, err := q.Load(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}
	return &PurchaseRequestView{
		RequestID:     r.RequestID(),
		RequesterID:   r.RequesterID(),
		RequesterName: r.RequesterName(),
		Title:         r.Title(),
		Description:   r.Description(),
		LineItems:     r.LineItems(),
		Total:         r.Total(),
		Status:        r.Status(),
		CreatedAt:     r.CreatedAt(),
		SubmittedAt:   r.SubmittedAt(),
		ApprovedAt:    r.ApprovedAt(),
		RejectedAt:    r.RejectedAt(),
		CancelledAt:   r.CancelledAt(),
		Version:       r.Version(),
	}, nil
}
