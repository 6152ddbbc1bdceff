package boundary

import (
	"errors"

	"github.com/google/uuid"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/pkg/domain"
)

// CommandFactory builds the command that carries out an intent.
// Feature packages implement it so this package never names concrete
// command types.
type CommandFactory interface {
	CreateCommand(intent Intent, requestID, userID uuid.UUID, comment, idempotencyKey string) (domain.Command, error)
}

// Service is the facade a presentation layer talks to.
type Service struct {
	factory CommandFactory
	stepUI  bool
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithoutStepUI leaves per-step presentation data out of contexts.
func WithoutStepUI() ServiceOption {
	return func(s *Service) { s.stepUI = false }
}

// NewService creates a boundary service using factory for intent commands.
func NewService(factory CommandFactory, opts ...ServiceOption) *Service {
	s := &Service{factory: factory, stepUI: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetContext describes req for actor. It has no side effects.
func (s *Service) GetContext(req *purchaserequest.PurchaseRequest, actor uuid.UUID) ApprovalContext {
	return BuildContext(req, actor, s.stepUI)
}

// CheckEligibility is the package-level CheckEligibility.
func (s *Service) CheckEligibility(req *purchaserequest.PurchaseRequest, actor uuid.UUID) Eligibility {
	return CheckEligibility(req, actor)
}

// GetIntentContext is the package-level GetIntentContext.
func (s *Service) GetIntentContext(req *purchaserequest.PurchaseRequest, actor uuid.UUID) IntentContext {
	return GetIntentContext(req, actor)
}

// CanExecuteIntent is the package-level CanExecuteIntent.
func (s *Service) CanExecuteIntent(req *purchaserequest.PurchaseRequest, intent Intent, actor uuid.UUID) bool {
	return CanExecuteIntent(req, intent, actor)
}

// CreateCommandFromIntent turns a chosen intent into a command. An intent
// outside the catalog fails with UNKNOWN_INTENT.
func (s *Service) CreateCommandFromIntent(intent Intent, requestID, userID uuid.UUID, comment, idempotencyKey string) (domain.Command, error) {
	if !intent.Known() {
		return nil, purchaserequest.NewDomainError(purchaserequest.CodeUnknownIntent, "unknown intent %q", intent)
	}
	if s.factory == nil {
		return nil, errors.New("boundary service has no command factory")
	}
	return s.factory.CreateCommand(intent, requestID, userID, comment, idempotencyKey)
}
