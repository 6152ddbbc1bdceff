package boundary_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/purchasing/internal/purchaserequest"
	"github.com/plaenen/purchasing/internal/purchaserequest/boundary"
	"github.com/plaenen/purchasing/pkg/config"
	"github.com/plaenen/purchasing/pkg/domain"
)

var (
	requester = uuid.MustParse("0b8f5c1e-2d4a-4e6b-9c7d-1a2b3c4d5e6f")
	manager   = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")
	director  = uuid.MustParse("3d6f4e2a-1b5c-4f8e-9a7d-2c1b0e9f8a6d")
	executive = uuid.MustParse("9b2e7f4c-6a1d-4e3b-8c5f-0d9a8b7c6e5f")
	stranger  = uuid.MustParse("5e4d3c2b-1a09-4f8e-8d7c-6b5a49382716")

	everyone = []uuid.UUID{requester, manager, director, executive, stranger}
)

func newRequest(t *testing.T, total int64) *purchaserequest.PurchaseRequest {
	t.Helper()
	r, err := purchaserequest.Create(purchaserequest.CreateParams{
		RequestID:   uuid.New(),
		TenantID:    "acme",
		RequesterID: requester,
		Title:       "Servers",
		LineItems: []purchaserequest.LineItem{
			{Name: "Server", Quantity: 2, UnitPrice: decimal.NewFromInt(total / 2)},
		},
	}, domain.EventMetadata{})
	require.NoError(t, err)
	return r
}

func submit(t *testing.T, r *purchaserequest.PurchaseRequest) *purchaserequest.PurchaseRequest {
	t.Helper()
	p, err := purchaserequest.PolicyFromConfig(config.DefaultConfig().Approval)
	require.NoError(t, err)
	flow, err := p.FlowFor(r.Total())
	require.NoError(t, err)
	require.NoError(t, r.Submit(requester, flow, domain.EventMetadata{}))
	return r
}

// requestsByStatus builds one three-step request in every reachable status.
func requestsByStatus(t *testing.T) map[purchaserequest.Status]*purchaserequest.PurchaseRequest {
	t.Helper()
	md := domain.EventMetadata{}
	out := map[purchaserequest.Status]*purchaserequest.PurchaseRequest{}

	out[purchaserequest.StatusDraft] = newRequest(t, 600_000)
	out[purchaserequest.StatusPendingFirstApproval] = submit(t, newRequest(t, 600_000))

	second := submit(t, newRequest(t, 600_000))
	require.NoError(t, second.Approve(manager, "", md))
	out[purchaserequest.StatusPendingSecondApproval] = second

	final := submit(t, newRequest(t, 600_000))
	require.NoError(t, final.Approve(manager, "", md))
	require.NoError(t, final.Approve(director, "", md))
	out[purchaserequest.StatusPendingFinalApproval] = final

	approved := submit(t, newRequest(t, 600_000))
	require.NoError(t, approved.Approve(manager, "", md))
	require.NoError(t, approved.Approve(director, "", md))
	require.NoError(t, approved.Approve(executive, "", md))
	out[purchaserequest.StatusApproved] = approved

	rejected := submit(t, newRequest(t, 600_000))
	require.NoError(t, rejected.Reject(manager, "no", md))
	out[purchaserequest.StatusRejected] = rejected

	cancelled := submit(t, newRequest(t, 600_000))
	require.NoError(t, cancelled.Cancel(requester, "", md))
	out[purchaserequest.StatusCancelled] = cancelled

	for status, r := range out {
		require.Equal(t, status, r.Status())
	}
	return out
}

func completes(c boundary.IntentContext) []bool {
	out := make([]bool, len(c.Intents))
	for i, a := range c.Intents {
		out[i] = a.CompletesApproval
	}
	return out
}

func reasonCode(t *testing.T, e boundary.Eligibility) string {
	t.Helper()
	reason, ok := e.FirstReason()
	require.True(t, ok, "expected a blocking reason")
	return reason.Code
}

func TestCheckEligibility(t *testing.T) {
	requests := requestsByStatus(t)

	t.Run("RequestNotFound", func(t *testing.T) {
		e := boundary.CheckEligibility(nil, manager)
		assert.False(t, e.CanApprove)
		assert.Equal(t, purchaserequest.CodeRequestNotFound, reasonCode(t, e))
	})

	t.Run("NotAuthenticatedBeforeTerminal", func(t *testing.T) {
		e := boundary.CheckEligibility(requests[purchaserequest.StatusApproved], uuid.Nil)
		assert.Equal(t, purchaserequest.CodeUserNotAuthenticated, reasonCode(t, e))
	})

	t.Run("TerminalForEveryActor", func(t *testing.T) {
		for _, status := range []purchaserequest.Status{
			purchaserequest.StatusApproved,
			purchaserequest.StatusRejected,
			purchaserequest.StatusCancelled,
		} {
			for _, actor := range everyone {
				e := boundary.CheckEligibility(requests[status], actor)
				assert.False(t, e.CanApprove, "%s/%s", status, actor)
				assert.False(t, e.CanReject, "%s/%s", status, actor)
				assert.Equal(t, purchaserequest.CodeTerminalState, reasonCode(t, e))
				assert.Len(t, e.BlockingReasons, 1)
			}
		}
	})

	t.Run("NoPendingStep", func(t *testing.T) {
		e := boundary.CheckEligibility(requests[purchaserequest.StatusDraft], manager)
		assert.Equal(t, purchaserequest.CodeNoPendingStep, reasonCode(t, e))
		assert.Nil(t, e.CurrentStepApproverID)
	})

	t.Run("NotAssignedApprover", func(t *testing.T) {
		assigned := map[purchaserequest.Status]uuid.UUID{
			purchaserequest.StatusPendingFirstApproval:  manager,
			purchaserequest.StatusPendingSecondApproval: director,
			purchaserequest.StatusPendingFinalApproval:  executive,
		}
		for status, approver := range assigned {
			for _, actor := range everyone {
				e := boundary.CheckEligibility(requests[status], actor)
				require.NotNil(t, e.CurrentStepApproverID)
				assert.Equal(t, approver, *e.CurrentStepApproverID)

				if actor == approver {
					assert.True(t, e.IsEligible())
					assert.Empty(t, e.BlockingReasons)
					continue
				}
				assert.False(t, e.CanApprove)
				assert.False(t, e.CanReject)
				assert.Equal(t, purchaserequest.CodeNotAssignedApprover, reasonCode(t, e))
			}
		}
	})
}

func TestGetIntentContext(t *testing.T) {
	requests := requestsByStatus(t)

	t.Run("AssignedApproverAtFirstStep", func(t *testing.T) {
		r := requests[purchaserequest.StatusPendingFirstApproval]
		got := boundary.GetIntentContext(r, manager)
		assert.Equal(t, []boundary.Intent{
			boundary.IntentPerformFirstApproval,
			boundary.IntentSendBackForRevision,
			boundary.IntentRejectPermanently,
		}, got.Kinds())

		for _, actor := range []uuid.UUID{requester, director, executive, stranger, uuid.Nil} {
			assert.Empty(t, boundary.GetIntentContext(r, actor).Intents, "actor %s", actor)
		}
	})

	t.Run("PerformIntentFollowsStatus", func(t *testing.T) {
		got := boundary.GetIntentContext(requests[purchaserequest.StatusPendingSecondApproval], director)
		assert.Equal(t, boundary.IntentPerformSecondApproval, got.Kinds()[0])

		got = boundary.GetIntentContext(requests[purchaserequest.StatusPendingFinalApproval], executive)
		assert.Equal(t, boundary.IntentPerformFinalApproval, got.Kinds()[0])
		assert.True(t, got.Intents[0].RequiresConfirmation)
	})

	t.Run("CompletesApprovalOnLastStep", func(t *testing.T) {
		got := boundary.GetIntentContext(requests[purchaserequest.StatusPendingSecondApproval], director)
		for _, a := range got.Intents {
			assert.False(t, a.CompletesApproval, a.Intent)
		}

		got = boundary.GetIntentContext(requests[purchaserequest.StatusPendingFinalApproval], executive)
		assert.Equal(t, []bool{true, true, false}, completes(got))

		// Two steps: the second approval ends the flow.
		twoStep := submit(t, newRequest(t, 250_000))
		require.NoError(t, twoStep.Approve(manager, "", domain.EventMetadata{}))
		got = boundary.GetIntentContext(twoStep, director)
		assert.Equal(t, boundary.IntentPerformSecondApproval, got.Kinds()[0])
		assert.Equal(t, []bool{true, true, false}, completes(got))

		got = boundary.GetIntentContext(submit(t, newRequest(t, 50_000)), manager)
		assert.Equal(t, []bool{true, true, false}, completes(got))
	})

	t.Run("EmptyWhenNotPending", func(t *testing.T) {
		for _, status := range []purchaserequest.Status{
			purchaserequest.StatusDraft,
			purchaserequest.StatusApproved,
			purchaserequest.StatusRejected,
			purchaserequest.StatusCancelled,
		} {
			for _, actor := range everyone {
				assert.Empty(t, boundary.GetIntentContext(requests[status], actor).Intents)
			}
		}
		assert.Empty(t, boundary.GetIntentContext(nil, manager).Intents)
	})

	t.Run("CanExecuteIntent", func(t *testing.T) {
		r := requests[purchaserequest.StatusPendingFirstApproval]
		assert.True(t, boundary.CanExecuteIntent(r, boundary.IntentPerformFirstApproval, manager))
		assert.True(t, boundary.CanExecuteIntent(r, boundary.IntentRejectPermanently, manager))
		assert.False(t, boundary.CanExecuteIntent(r, boundary.IntentPerformSecondApproval, manager))
		assert.False(t, boundary.CanExecuteIntent(r, boundary.IntentPerformFirstApproval, director))
		assert.False(t, boundary.CanExecuteIntent(r, boundary.Intent("Bogus"), manager))
	})

	t.Run("Metadata", func(t *testing.T) {
		for _, intent := range []boundary.Intent{
			boundary.IntentPerformFirstApproval,
			boundary.IntentPerformSecondApproval,
			boundary.IntentPerformFinalApproval,
			boundary.IntentSendBackForRevision,
			boundary.IntentRejectPermanently,
		} {
			m, ok := boundary.MetadataFor(intent)
			require.True(t, ok, intent)
			assert.NotEmpty(t, m.Label)
			assert.NotEmpty(t, m.CSSClass)
			assert.NotEmpty(t, m.Icon)
			if m.RequiresConfirmation {
				assert.NotEmpty(t, m.ConfirmationMessage)
			}
		}
		_, ok := boundary.MetadataFor("Bogus")
		assert.False(t, ok)
	})
}

func TestGetContext(t *testing.T) {
	requests := requestsByStatus(t)
	svc := boundary.NewService(nil)

	t.Run("Idempotent", func(t *testing.T) {
		for _, r := range requests {
			for _, actor := range everyone {
				assert.Equal(t, svc.GetContext(r, actor), svc.GetContext(r, actor))
			}
		}
	})

	t.Run("CancelOnlyForRequester", func(t *testing.T) {
		for status, r := range requests {
			for _, actor := range everyone {
				c := svc.GetContext(r, actor)
				want := actor == requester && status != purchaserequest.StatusDraft && !status.IsTerminal()
				assert.Equal(t, want, c.Allows(boundary.ActionCancel), "%s/%s", status, actor)
			}
		}
	})

	t.Run("RequesterWhoIsApproverSeesAll", func(t *testing.T) {
		cfg := config.DefaultConfig().Approval
		cfg.Approvers[config.RoleManager] = config.Approver{ID: requester.String(), Name: "Rita Requester"}
		p, err := purchaserequest.PolicyFromConfig(cfg)
		require.NoError(t, err)

		r := newRequest(t, 50_000)
		flow, err := p.FlowFor(r.Total())
		require.NoError(t, err)
		require.NoError(t, r.Submit(requester, flow, domain.EventMetadata{}))

		c := svc.GetContext(r, requester)
		assert.Equal(t, []boundary.Action{boundary.ActionApprove, boundary.ActionReject, boundary.ActionCancel}, c.AllowedActions)
		assert.True(t, c.Eligibility.IsEligible())
		assert.Equal(t, []boundary.Intent{
			boundary.IntentPerformFirstApproval,
			boundary.IntentSendBackForRevision,
			boundary.IntentRejectPermanently,
		}, c.Intents.Kinds())

		c = svc.GetContext(r, manager)
		assert.Empty(t, c.AllowedActions)
	})

	t.Run("ApproverSeesApproveAndReject", func(t *testing.T) {
		c := svc.GetContext(requests[purchaserequest.StatusPendingSecondApproval], director)
		assert.Equal(t, []boundary.Action{boundary.ActionApprove, boundary.ActionReject}, c.AllowedActions)
		assert.False(t, c.IsTerminal)
		assert.Equal(t, "warning", c.StatusDisplay.BadgeColor)
	})

	t.Run("Steps", func(t *testing.T) {
		c := svc.GetContext(requests[purchaserequest.StatusPendingSecondApproval], stranger)
		require.NotNil(t, c.CurrentStep)
		assert.Equal(t, 2, c.CurrentStep.StepNumber)
		require.NotNil(t, c.CurrentStep.UI)
		assert.True(t, c.CurrentStep.UI.IsCurrent)
		require.Len(t, c.CompletedSteps, 1)
		assert.Equal(t, 1, c.CompletedSteps[0].StepNumber)
		require.Len(t, c.RemainingSteps, 1)
		assert.Equal(t, 3, c.RemainingSteps[0].StepNumber)

		c = svc.GetContext(requests[purchaserequest.StatusRejected], stranger)
		assert.Nil(t, c.CurrentStep)
		assert.True(t, c.IsTerminal)
		require.Len(t, c.CompletedSteps, 1)
		assert.Equal(t, purchaserequest.StepRejected, c.CompletedSteps[0].Status)
		assert.Len(t, c.RemainingSteps, 2)
		assert.Empty(t, c.AllowedActions)
	})

	t.Run("WithoutStepUI", func(t *testing.T) {
		c := boundary.NewService(nil, boundary.WithoutStepUI()).GetContext(requests[purchaserequest.StatusPendingFirstApproval], manager)
		require.NotNil(t, c.CurrentStep)
		assert.Nil(t, c.CurrentStep.UI)
	})

	t.Run("MissingRequest", func(t *testing.T) {
		c := svc.GetContext(nil, manager)
		assert.Empty(t, c.AllowedActions)
		assert.Equal(t, purchaserequest.CodeRequestNotFound, reasonCode(t, c.Eligibility))
	})
}

func TestStatusDisplayFor(t *testing.T) {
	seen := map[string]bool{}
	for _, status := range purchaserequest.Statuses {
		d := boundary.StatusDisplayFor(status)
		assert.NotEmpty(t, d.Label)
		assert.NotEmpty(t, d.BadgeColor)
		assert.NotEmpty(t, d.Icon)
		assert.NotEmpty(t, d.Severity)
		assert.Contains(t, d.AriaLabel, "status")
		assert.False(t, seen[d.Label], "duplicate label %s", d.Label)
		seen[d.Label] = true
	}

	assert.Equal(t, "Request status: pending first approval",
		boundary.StatusDisplayFor(purchaserequest.StatusPendingFirstApproval).AriaLabel)
	assert.Equal(t, boundary.SeverityError, boundary.StatusDisplayFor(purchaserequest.StatusRejected).Severity)
}

type stubCommand struct {
	intent  boundary.Intent
	request uuid.UUID
	key     string
}

func (c stubCommand) ID() string          { return c.key }
func (c stubCommand) AggregateID() string { return c.request.String() }
func (c stubCommand) CommandType() string { return string(c.intent) }

type stubFactory struct{}

func (stubFactory) CreateCommand(intent boundary.Intent, requestID, _ uuid.UUID, _, key string) (domain.Command, error) {
	return stubCommand{intent: intent, request: requestID, key: key}, nil
}

func TestCreateCommandFromIntent(t *testing.T) {
	svc := boundary.NewService(stubFactory{})
	id := uuid.New()

	cmd, err := svc.CreateCommandFromIntent(boundary.IntentSendBackForRevision, id, manager, "fix it", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "key-1", cmd.ID())
	assert.Equal(t, id.String(), cmd.AggregateID())

	_, err = svc.CreateCommandFromIntent(boundary.Intent("Escalate"), id, manager, "", "key-2")
	assert.True(t, purchaserequest.HasCode(err, purchaserequest.CodeUnknownIntent))

	_, err = boundary.NewService(nil).CreateCommandFromIntent(boundary.IntentRejectPermanently, id, manager, "", "key-3")
	assert.Error(t, err)
}
