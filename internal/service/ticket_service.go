package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/broker"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/engine"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/template"
)

// TicketService is the external create/update contract of the workflow
// engine. It loads the reference data a transition needs, validates the
// template, and hands the assembled request to the engine.
type TicketService struct {
	templates repository.TemplateRepository
	patterns  repository.PatternRepository
	store     repository.TicketStore
	engine    *engine.Engine
	registry  *broker.Registry
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TemplateRepo repository.TemplateRepository
	PatternRepo  repository.PatternRepository
	Store        repository.TicketStore
	Engine       *engine.Engine
	Registry     *broker.Registry
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// TicketUpdateInput describes one requested transition on an existing ticket.
type TicketUpdateInput struct {
	TicketID       string
	BeforeStatus   string
	LastWorkflowID string
	AfterStatus    string
	NextWorkflowID string
	AdditionalData map[string]any
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	return &TicketService{
		templates: deps.TemplateRepo,
		patterns:  deps.PatternRepo,
		store:     deps.Store,
		engine:    deps.Engine,
		registry:  deps.Registry,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
	}
}

// Create starts a new ticket from a template: the transition from the
// synthetic "none" status to the pattern's first real status.
func (s *TicketService) Create(ctx context.Context, actor domain.Actor, templateID string, detail map[string]any) (*domain.Ticket, error) {
	model, pattern, err := s.loadReferenceData(ctx, templateID)
	if err != nil {
		return nil, err
	}
	first, err := pattern.InitialStatus()
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		ID:         uuid.NewString(),
		TemplateID: templateID,
		TicketType: model.TicketType(),
		TenantID:   actor.TenantID,
		TenantName: actor.TenantName,
		OwnerID:    actor.ID,
		OwnerName:  actor.Name,
	}

	result, err := s.engine.ExecuteTransition(ctx, &engine.Request{
		Ticket:       ticket,
		Model:        model,
		Pattern:      pattern,
		BeforeStatus: domain.StatusNone,
		AfterStatus:  first,
		Actor:        actor,
		Values:       detail,
	})
	s.record(model.TicketType(), domain.StatusNone, first, err)
	return result, err
}

// Update advances an existing ticket one transition.
func (s *TicketService) Update(ctx context.Context, actor domain.Actor, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.store.GetTicket(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}
	model, pattern, err := s.loadReferenceData(ctx, ticket.TemplateID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.ExecuteTransition(ctx, &engine.Request{
		Ticket:         ticket,
		Model:          model,
		Pattern:        pattern,
		BeforeStatus:   input.BeforeStatus,
		AfterStatus:    input.AfterStatus,
		LastWorkflowID: input.LastWorkflowID,
		NextWorkflowID: input.NextWorkflowID,
		Actor:          actor,
		Values:         input.AdditionalData,
	})
	s.record(model.TicketType(), input.BeforeStatus, input.AfterStatus, err)
	return result, err
}

// Get returns one ticket with its workflow rows.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.store.GetTicket(ctx, ticketID)
}

// List returns tickets scoped to the actor's tenant.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, ticketType *string, limit, offset int) ([]domain.Ticket, error) {
	filter := repository.TicketFilter{
		TenantID:   &actor.TenantID,
		TicketType: ticketType,
		Limit:      limit,
		Offset:     offset,
	}
	return s.store.ListTickets(ctx, filter)
}

func (s *TicketService) loadReferenceData(ctx context.Context, templateID string) (*template.Model, *domain.WorkflowPattern, error) {
	stored, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, nil, err
	}
	model, err := template.Parse(stored.Document)
	if err != nil {
		return nil, nil, err
	}
	if err := model.Validate(s.registry); err != nil {
		return nil, nil, err
	}
	pattern, err := s.patterns.GetByID(ctx, model.PatternID())
	if err != nil {
		return nil, nil, err
	}
	if err := model.ValidateAgainstPattern(pattern); err != nil {
		return nil, nil, err
	}
	return model, pattern, nil
}

func (s *TicketService) record(ticketType, before, after string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.RecordTransition(ticketType, before, after, outcome)
}
