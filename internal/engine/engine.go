// Package engine orchestrates single ticket lifecycle transitions: role
// authorization against the workflow pattern, optimistic concurrency against
// the active workflow row, before/after hook dispatch and the core row
// transition.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/broker"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository"
	"github.com/spec-kit/ticket-workflow/internal/template"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Request describes one transition. For creation, Ticket carries the new
// ticket header (no workflow rows) and BeforeStatus is empty or "none"; for
// updates, Ticket is the loaded ticket including its rows.
type Request struct {
	Ticket         *domain.Ticket
	Model          *template.Model
	Pattern        *domain.WorkflowPattern
	BeforeStatus   string
	AfterStatus    string
	LastWorkflowID string
	NextWorkflowID string
	Actor          domain.Actor
	Values         map[string]any
}

// IsCreate reports whether this request creates the ticket.
func (r *Request) IsCreate() bool {
	return r.BeforeStatus == "" || r.BeforeStatus == domain.StatusNone
}

// Engine executes workflow transitions against a TicketStore.
type Engine struct {
	store      repository.TicketStore
	registry   *broker.Registry
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// New constructs the engine.
func New(store repository.TicketStore, registry *broker.Registry, dispatcher events.Dispatcher, logger *zap.Logger) *Engine {
	return &Engine{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// ExecuteTransition runs one lifecycle transition end to end and returns the
// resulting ticket with its workflow rows.
//
// The three phases (before-hooks, core transition, after-hooks) each commit
// independently. The window between the transition commit and the after-hook
// commit, during which another transition on the same ticket could race
// ahead, is intentional: downstream notification hooks depend on the retry
// semantics it produces.
func (e *Engine) ExecuteTransition(ctx context.Context, req *Request) (*domain.Ticket, error) {
	before := req.BeforeStatus
	if before == "" {
		before = domain.StatusNone
	}

	set, ok := e.registry.Lookup(req.Model.HandlerKey())
	if !ok {
		return nil, apperrors.NewBrokerError("template handler is not registered",
			map[string]any{"broker_class": req.Model.HandlerKey()})
	}

	if err := e.doRoleCheck(req.Pattern, before, req.AfterStatus, req.Actor.Roles); err != nil {
		return nil, err
	}

	if !req.IsCreate() {
		if err := e.doTargetCheck(ctx, req); err != nil {
			return nil, err
		}
	}

	hookCtx := &broker.Context{
		Ticket:       req.Ticket,
		Model:        req.Model,
		Pattern:      req.Pattern,
		BeforeStatus: before,
		AfterStatus:  req.AfterStatus,
		Confirmer:    domain.Confirmer{ID: req.Actor.ID, Name: req.Actor.Name},
		Roles:        req.Actor.Roles,
		NextRoles:    req.Pattern.NextRoles(req.AfterStatus),
		Values:       req.Values,
	}

	beforeHooks := req.Model.HooksFor(req.AfterStatus, template.TimingBefore)

	// Validations run standalone, before any transaction begins, so a
	// failure leaves nothing persisted.
	for _, hook := range beforeHooks {
		if hook.Validation == "" {
			continue
		}
		fn, ok := set.Validations[hook.Validation]
		if !ok {
			return nil, apperrors.NewBrokerError("hook validation method is not registered",
				map[string]any{"validation": hook.Validation})
		}
		if err := fn(ctx, hookCtx); err != nil {
			return nil, err
		}
	}

	if err := e.runActions(ctx, set, beforeHooks, hookCtx); err != nil {
		return nil, err
	}

	if req.IsCreate() {
		if err := e.createTicket(ctx, req, hookCtx.Confirmer); err != nil {
			return nil, err
		}
	} else {
		nextRowID, err := resolveNextRow(req)
		if err != nil {
			return nil, err
		}
		err = e.store.CloseAndActivate(ctx, req.Ticket.ID, req.LastWorkflowID, nextRowID,
			hookCtx.Confirmer, e.now(), req.Values)
		if err != nil {
			return nil, err
		}
	}

	afterHooks := req.Model.HooksFor(req.AfterStatus, template.TimingAfter)
	if err := e.runActions(ctx, set, afterHooks, hookCtx); err != nil {
		// The transition already committed; surface the stuck state instead
		// of rolling it back.
		e.appendErrorRow(ctx, req, hookCtx.Confirmer, err)
		e.publish(ctx, events.Event{
			Type:     events.EventTransitionFailed,
			TicketID: req.Ticket.ID,
			Payload: events.TransitionFailedPayload{
				TicketType:   req.Ticket.TicketType,
				BeforeStatus: before,
				AfterStatus:  req.AfterStatus,
				Reason:       err.Error(),
			},
		})
		return nil, err
	}

	ticket, err := e.store.GetTicket(ctx, req.Ticket.ID)
	if err != nil {
		return nil, err
	}

	if req.IsCreate() {
		e.publish(ctx, events.Event{
			Type:     events.EventTicketCreated,
			TicketID: ticket.ID,
			Payload: events.TicketCreatedPayload{
				TicketType:    ticket.TicketType,
				TenantID:      ticket.TenantID,
				InitialStatus: req.AfterStatus,
				NextRoles:     hookCtx.NextRoles,
			},
		})
	} else {
		e.publish(ctx, events.Event{
			Type:     events.EventTransitionExecuted,
			TicketID: ticket.ID,
			Payload: events.TransitionExecutedPayload{
				TicketType:   ticket.TicketType,
				BeforeStatus: before,
				AfterStatus:  req.AfterStatus,
				ConfirmerID:  req.Actor.ID,
				NextRoles:    hookCtx.NextRoles,
			},
		})
	}
	return ticket, nil
}

// doRoleCheck authorizes the requested edge against the live pattern.
func (e *Engine) doRoleCheck(pattern *domain.WorkflowPattern, before, after string, roles []string) error {
	node := pattern.Find(before)
	if node == nil {
		return apperrors.NewInvalidRole("status does not exist in the workflow pattern",
			map[string]any{"status": before})
	}
	if len(node.Transitions) == 0 {
		return apperrors.NewBrokerError("status declares no outbound transitions",
			map[string]any{"status": before, "pattern": pattern.Code})
	}
	// A single outbound transition lacking a target status means any role may
	// proceed. The same shape could also be a malformed later-status entry;
	// that ambiguity is preserved on purpose.
	if len(node.Transitions) == 1 && node.Transitions[0].NextStatusCode == "" {
		return nil
	}
	for i := range node.Transitions {
		tr := &node.Transitions[i]
		if tr.NextStatusCode != after {
			continue
		}
		if !tr.Allows(roles) {
			return apperrors.NewInvalidRole("acting roles are not granted this transition",
				map[string]any{"before": before, "after": after})
		}
		return nil
	}
	return apperrors.NewInvalidRole("transition is not declared for this status",
		map[string]any{"before": before, "after": after})
}

// doTargetCheck is the optimistic concurrency guard. It checks the caller's
// assumed current state against the single ACTIVE row and its snapshot of
// outbound transitions.
func (e *Engine) doTargetCheck(ctx context.Context, req *Request) error {
	active, err := e.store.GetActiveWorkflow(ctx, req.Ticket.ID)
	if err != nil {
		return err
	}
	if active == nil {
		return apperrors.NewInvalidStatus("ticket has no active workflow row",
			map[string]any{"ticket_id": req.Ticket.ID})
	}
	if active.ID != req.LastWorkflowID {
		return apperrors.NewInvalidStatus("ticket state has already advanced",
			map[string]any{"expected": req.LastWorkflowID, "actual": active.ID})
	}
	snapshot := active.StatusDetail
	if len(snapshot.Transitions) == 0 {
		return apperrors.NewInvalidStatus("active workflow row declares no outbound transitions",
			map[string]any{"status": active.StatusCode})
	}
	found := false
	for _, tr := range snapshot.Transitions {
		if tr.NextStatusCode == "" {
			return apperrors.NewInvalidStatus("active workflow row declares a transition without a target",
				map[string]any{"status": active.StatusCode})
		}
		if tr.NextStatusCode == req.AfterStatus {
			found = true
		}
	}
	if !found {
		return apperrors.NewInvalidStatus("target status is not reachable from the active row",
			map[string]any{"status": active.StatusCode, "after": req.AfterStatus})
	}
	return nil
}

// runActions executes the broker methods of the given hooks inside one
// transaction.
func (e *Engine) runActions(ctx context.Context, set broker.HandlerSet, hooks []template.Hook, hookCtx *broker.Context) error {
	var actions []broker.ActionFunc
	for _, hook := range hooks {
		if hook.BrokerMethod == "" {
			continue
		}
		fn, ok := set.Actions[hook.BrokerMethod]
		if !ok {
			return apperrors.NewBrokerError("hook broker method is not registered",
				map[string]any{"broker_method": hook.BrokerMethod})
		}
		actions = append(actions, fn)
	}
	if len(actions) == 0 {
		return nil
	}
	return e.store.RunInTx(ctx, func(ctx context.Context) error {
		for _, fn := range actions {
			if err := fn(ctx, hookCtx); err != nil {
				return err
			}
		}
		return nil
	})
}

// createTicket materializes every pattern status as a workflow row up front,
// in NON_ACTIVE, except the target status which starts ACTIVE.
func (e *Engine) createTicket(ctx context.Context, req *Request, confirmer domain.Confirmer) error {
	if req.Pattern.Find(req.AfterStatus) == nil {
		return apperrors.NewBrokerError("initial status is missing from the workflow pattern",
			map[string]any{"status": req.AfterStatus, "pattern": req.Pattern.Code})
	}
	now := e.now()
	ticket := req.Ticket
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.Detail = req.Values
	ticket.OwnerAt = now

	ticket.Workflows = ticket.Workflows[:0]
	for i := range req.Pattern.Statuses {
		node := &req.Pattern.Statuses[i]
		if node.Code == domain.StatusNone {
			continue
		}
		row := domain.Workflow{
			ID:           uuid.NewString(),
			TicketID:     ticket.ID,
			StatusCode:   node.Code,
			StatusDetail: *node,
			State:        domain.RowNonActive,
		}
		if node.Code == req.AfterStatus {
			row.State = domain.RowActive
			row.ConfirmerID = &confirmer.ID
			row.ConfirmerName = &confirmer.Name
			confirmedAt := now
			row.ConfirmedAt = &confirmedAt
			row.AdditionalData = req.Values
		}
		ticket.Workflows = append(ticket.Workflows, row)
	}
	return e.store.CreateTicketWithWorkflows(ctx, ticket)
}

func resolveNextRow(req *Request) (string, error) {
	if req.NextWorkflowID != "" {
		if row := req.Ticket.WorkflowByStatus(req.AfterStatus); row != nil && row.ID != req.NextWorkflowID {
			return "", apperrors.NewInvalidStatus("next workflow row does not hold the target status",
				map[string]any{"workflow_id": req.NextWorkflowID, "after": req.AfterStatus})
		}
		return req.NextWorkflowID, nil
	}
	row := req.Ticket.WorkflowByStatus(req.AfterStatus)
	if row == nil {
		return "", apperrors.NewNotFound("workflow", map[string]any{"status": req.AfterStatus})
	}
	return row.ID, nil
}

func (e *Engine) appendErrorRow(ctx context.Context, req *Request, confirmer domain.Confirmer, cause error) {
	if err := e.store.AppendErrorRow(ctx, req.Ticket.ID, confirmer, e.now(), cause.Error()); err != nil {
		e.logger.Error("failed to append error workflow row",
			zap.String("ticket_id", req.Ticket.ID),
			zap.Error(err))
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	if e.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	_ = e.dispatcher.Publish(ctx, event)
}
