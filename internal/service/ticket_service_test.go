package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/broker"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/engine"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

const onboardingDoc = `{
    "ticket_template_version": "2025-01-01 00:00:00",
    "ticket_type": "member_onboarding",
    "wf_pattern_id": "wfp-onboarding",
    "ticket_template_name": {"Default": "Member Onboarding"},
    "create": {"parameters": [
        {"key": "member_name", "label": {"Default": "Member Name"}, "type": "string", "required": true}
    ]},
    "update": {"parameters": []},
    "action": {
        "broker_class": "onboarding",
        "broker": [
            {"status": "applied", "timing": "before", "validation": "general_param_check"}
        ]
    }
}`

type fakeTemplateRepo struct {
	templates map[string]*domain.TicketTemplate
}

func (r *fakeTemplateRepo) GetByID(_ context.Context, id string) (*domain.TicketTemplate, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket template", map[string]any{"template_id": id})
	}
	return tpl, nil
}

func (r *fakeTemplateRepo) List(context.Context, int, int) ([]domain.TicketTemplate, error) {
	var out []domain.TicketTemplate
	for _, tpl := range r.templates {
		out = append(out, *tpl)
	}
	return out, nil
}

type fakePatternRepo struct {
	patterns map[string]*domain.WorkflowPattern
}

func (r *fakePatternRepo) GetByID(_ context.Context, id string) (*domain.WorkflowPattern, error) {
	p, ok := r.patterns[id]
	if !ok {
		return nil, apperrors.NewNotFound("workflow pattern", map[string]any{"pattern_id": id})
	}
	return p, nil
}

func (r *fakePatternRepo) GetByCode(_ context.Context, code string) (*domain.WorkflowPattern, error) {
	for _, p := range r.patterns {
		if p.Code == code {
			return p, nil
		}
	}
	return nil, apperrors.NewNotFound("workflow pattern", map[string]any{"pattern_code": code})
}

// memoryStore is a minimal in-memory TicketStore for service tests.
type memoryStore struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tickets: make(map[string]*domain.Ticket)}
}

func (s *memoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *memoryStore) CreateTicketWithWorkflows(_ context.Context, ticket *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tickets[ticket.ID]; exists {
		return apperrors.NewDuplicate("ticket", nil)
	}
	clone := *ticket
	clone.Workflows = append([]domain.Workflow(nil), ticket.Workflows...)
	s.tickets[ticket.ID] = &clone
	return nil
}

func (s *memoryStore) GetTicket(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	clone := *ticket
	clone.Workflows = append([]domain.Workflow(nil), ticket.Workflows...)
	return &clone, nil
}

func (s *memoryStore) GetActiveWorkflow(ctx context.Context, ticketID string) (*domain.Workflow, error) {
	ticket, err := s.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if active := ticket.ActiveWorkflow(); active != nil {
		row := *active
		return &row, nil
	}
	return nil, nil
}

func (s *memoryStore) CloseAndActivate(_ context.Context, ticketID, closeRowID, activateRowID string, confirmer domain.Confirmer, confirmedAt time.Time, additionalData map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", nil)
	}
	var closeRow, activateRow *domain.Workflow
	for i := range ticket.Workflows {
		switch ticket.Workflows[i].ID {
		case closeRowID:
			closeRow = &ticket.Workflows[i]
		case activateRowID:
			activateRow = &ticket.Workflows[i]
		}
	}
	if closeRow == nil || closeRow.State != domain.RowActive {
		return apperrors.NewInvalidStatus("ticket state has already advanced", nil)
	}
	if activateRow == nil || activateRow.State != domain.RowNonActive {
		return apperrors.NewNotFound("workflow", nil)
	}
	closeRow.State = domain.RowClosed
	activateRow.State = domain.RowActive
	activateRow.ConfirmerID = &confirmer.ID
	activateRow.ConfirmerName = &confirmer.Name
	activateRow.ConfirmedAt = &confirmedAt
	activateRow.AdditionalData = additionalData
	return nil
}

func (s *memoryStore) AppendErrorRow(_ context.Context, ticketID string, confirmer domain.Confirmer, confirmedAt time.Time, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[ticketID]
	if !ok {
		return apperrors.NewNotFound("ticket", nil)
	}
	for i := range ticket.Workflows {
		if ticket.Workflows[i].State == domain.RowActive {
			ticket.Workflows[i].State = domain.RowClosed
		}
	}
	ticket.Workflows = append(ticket.Workflows, domain.Workflow{
		ID:             uuid.NewString(),
		TicketID:       ticketID,
		StatusCode:     domain.StatusError,
		State:          domain.RowActive,
		ConfirmerID:    &confirmer.ID,
		ConfirmerName:  &confirmer.Name,
		ConfirmedAt:    &confirmedAt,
		AdditionalData: map[string]any{"error": message},
	})
	return nil
}

func (s *memoryStore) ListTickets(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range s.tickets {
		if filter.TenantID != nil && ticket.TenantID != *filter.TenantID {
			continue
		}
		if filter.TicketType != nil && ticket.TicketType != *filter.TicketType {
			continue
		}
		result = append(result, *ticket)
	}
	return result, nil
}

func onboardingPattern() *domain.WorkflowPattern {
	return &domain.WorkflowPattern{
		ID:   "wfp-onboarding",
		Code: "onboarding",
		Statuses: []domain.Status{
			{
				Code:  domain.StatusNone,
				Names: map[string]string{"Default": "Start"},
				Transitions: []domain.Transition{
					{NextStatusCode: "applied", Roles: []string{"__member__"}},
				},
			},
			{
				Code:  "applied",
				Names: map[string]string{"Default": "Applied"},
				Transitions: []domain.Transition{
					{NextStatusCode: "done", Roles: []string{"director"}},
				},
			},
			{
				Code:  "done",
				Names: map[string]string{"Default": "Done"},
				Transitions: []domain.Transition{
					{NextStatusCode: ""},
				},
			},
		},
	}
}

type serviceFixture struct {
	store   *memoryStore
	metrics *observability.Metrics
	service *TicketService
}

func newServiceFixture(t *testing.T, doc string) *serviceFixture {
	t.Helper()
	registry := broker.NewRegistry()
	registry.Register("onboarding", broker.HandlerSet{
		Validations: map[string]broker.ValidationFunc{
			broker.GeneralParamCheckName: broker.GeneralParamCheck,
		},
		Actions: map[string]broker.ActionFunc{},
	})

	store := newMemoryStore()
	metrics := observability.NewMetrics()
	eng := engine.New(store, registry, events.NewInMemoryDispatcher(), zap.NewNop())

	svc := NewTicketService(TicketDependencies{
		TemplateRepo: &fakeTemplateRepo{templates: map[string]*domain.TicketTemplate{
			"tpl-onboarding": {
				ID:         "tpl-onboarding",
				TicketType: "member_onboarding",
				Document:   json.RawMessage(doc),
			},
		}},
		PatternRepo: &fakePatternRepo{patterns: map[string]*domain.WorkflowPattern{
			"wfp-onboarding": onboardingPattern(),
		}},
		Store:    store,
		Engine:   eng,
		Registry: registry,
		Metrics:  metrics,
		Logger:   zap.NewNop(),
	})
	return &serviceFixture{store: store, metrics: metrics, service: svc}
}

func memberActor() domain.Actor {
	return domain.Actor{
		ID:         "usr-1",
		Name:       "Member User",
		TenantID:   "tnt-1",
		TenantName: "Tenant One",
		Roles:      []string{"__member__"},
	}
}

func TestCreateStartsTicketAtInitialStatus(t *testing.T) {
	f := newServiceFixture(t, onboardingDoc)

	ticket, err := f.service.Create(context.Background(), memberActor(), "tpl-onboarding",
		map[string]any{"member_name": "Taro"})
	require.NoError(t, err)

	assert.Equal(t, "member_onboarding", ticket.TicketType)
	assert.Equal(t, "tnt-1", ticket.TenantID)
	assert.Equal(t, "usr-1", ticket.OwnerID)
	require.Len(t, ticket.Workflows, 2)

	active := ticket.ActiveWorkflow()
	require.NotNil(t, active)
	assert.Equal(t, "applied", active.StatusCode)
	assert.Equal(t, int64(1), f.metrics.TransitionCount("member_onboarding", domain.StatusNone, "applied", "ok"))
}

func TestCreateUnknownTemplate(t *testing.T) {
	f := newServiceFixture(t, onboardingDoc)

	_, err := f.service.Create(context.Background(), memberActor(), "tpl-missing", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestCreateRejectsUnresolvableHandler(t *testing.T) {
	doc := `{
        "ticket_template_version": "2025-01-01 00:00:00",
        "ticket_type": "member_onboarding",
        "wf_pattern_id": "wfp-onboarding",
        "ticket_template_name": {"Default": "Member Onboarding"},
        "create": {"parameters": []},
        "update": {"parameters": []},
        "action": {"broker_class": "ghost", "broker": []}
    }`
	f := newServiceFixture(t, doc)

	_, err := f.service.Create(context.Background(), memberActor(), "tpl-onboarding", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSchemaError))
}

func TestCreateRejectsHookForMissingPatternStatus(t *testing.T) {
	doc := `{
        "ticket_template_version": "2025-01-01 00:00:00",
        "ticket_type": "member_onboarding",
        "wf_pattern_id": "wfp-onboarding",
        "ticket_template_name": {"Default": "Member Onboarding"},
        "create": {"parameters": []},
        "update": {"parameters": []},
        "action": {
            "broker_class": "onboarding",
            "broker": [
                {"status": "shipped", "timing": "before", "validation": "general_param_check"}
            ]
        }
    }`
	f := newServiceFixture(t, doc)

	_, err := f.service.Create(context.Background(), memberActor(), "tpl-onboarding", nil)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSchemaError))
}

func TestUpdateAdvancesTicket(t *testing.T) {
	f := newServiceFixture(t, onboardingDoc)

	ticket, err := f.service.Create(context.Background(), memberActor(), "tpl-onboarding",
		map[string]any{"member_name": "Taro"})
	require.NoError(t, err)
	active := ticket.ActiveWorkflow()

	director := domain.Actor{
		ID:       "usr-2",
		Name:     "Director User",
		TenantID: "tnt-1",
		Roles:    []string{"director"},
	}
	updated, err := f.service.Update(context.Background(), director, TicketUpdateInput{
		TicketID:       ticket.ID,
		BeforeStatus:   "applied",
		LastWorkflowID: active.ID,
		AfterStatus:    "done",
		AdditionalData: map[string]any{"note": "welcome aboard"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RowClosed, updated.WorkflowByStatus("applied").State)
	done := updated.WorkflowByStatus("done")
	assert.Equal(t, domain.RowActive, done.State)
	require.NotNil(t, done.ConfirmerID)
	assert.Equal(t, "usr-2", *done.ConfirmerID)
	assert.Equal(t, int64(1), f.metrics.TransitionCount("member_onboarding", "applied", "done", "ok"))
}

func TestListScopesToActorTenant(t *testing.T) {
	f := newServiceFixture(t, onboardingDoc)

	_, err := f.service.Create(context.Background(), memberActor(), "tpl-onboarding",
		map[string]any{"member_name": "Taro"})
	require.NoError(t, err)

	other := memberActor()
	other.TenantID = "tnt-2"
	_, err = f.service.Create(context.Background(), other, "tpl-onboarding",
		map[string]any{"member_name": "Hanako"})
	require.NoError(t, err)

	mine, err := f.service.List(context.Background(), memberActor(), nil, 50, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "tnt-1", mine[0].TenantID)
}
