package broker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/notification"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util"
)

// Handler keys registered by this package.
const (
	HandlerContract             = "contract"
	HandlerContractCancellation = "contract_cancellation"
	HandlerAnnouncement         = "announcement"
)

// ContractStore is the slice of contract persistence the hooks need.
type ContractStore interface {
	HasActiveContract(ctx context.Context, tenantID string) (bool, error)
	Create(ctx context.Context, contract *domain.Contract) error
	CancelByTenant(ctx context.Context, tenantID string) error
}

// QuotaManager reserves and releases tenant resource quota.
type QuotaManager interface {
	Reserve(ctx context.Context, tenantID string) error
	Release(ctx context.Context, tenantID string) error
}

// MailConfig maps notification audiences to addresses.
type MailConfig struct {
	MemberAddress  string
	SupportAddress string
	RoleAddresses  map[string]string
}

// ContractBroker implements the contract creation and cancellation handler
// sets.
type ContractBroker struct {
	contracts ContractStore
	quota     QuotaManager
	mail      notification.Sender
	cfg       MailConfig
	logger    *zap.Logger
}

// NewContractBroker constructs the broker.
func NewContractBroker(contracts ContractStore, quota QuotaManager, mail notification.Sender, cfg MailConfig, logger *zap.Logger) *ContractBroker {
	return &ContractBroker{contracts: contracts, quota: quota, mail: mail, cfg: cfg, logger: logger}
}

// RegisterAll installs every handler set this broker provides.
func (b *ContractBroker) RegisterAll(registry *Registry) {
	registry.Register(HandlerContract, b.contractSet())
	registry.Register(HandlerContractCancellation, b.cancellationSet())
	registry.Register(HandlerAnnouncement, b.announcementSet())
}

func (b *ContractBroker) contractSet() HandlerSet {
	return HandlerSet{
		Validations: map[string]ValidationFunc{
			GeneralParamCheckName: GeneralParamCheck,
			"contract_check":      b.contractCheck,
		},
		Actions: map[string]ActionFunc{
			"reserve_quota":     b.reserveQuota,
			"register_contract": b.registerContract,
			"mail_to_member":    b.mailToMember,
			"mail_to_support":   b.mailToSupport,
		},
	}
}

func (b *ContractBroker) cancellationSet() HandlerSet {
	return HandlerSet{
		Validations: map[string]ValidationFunc{
			GeneralParamCheckName: GeneralParamCheck,
			"cancellation_check":  b.cancellationCheck,
		},
		Actions: map[string]ActionFunc{
			"cancel_contract": b.cancelContract,
			"release_quota":   b.releaseQuota,
			"mail_to_member":  b.mailToMember,
			"mail_to_support": b.mailToSupport,
		},
	}
}

func (b *ContractBroker) announcementSet() HandlerSet {
	return HandlerSet{
		Validations: map[string]ValidationFunc{
			GeneralParamCheckName: GeneralParamCheck,
		},
		Actions: map[string]ActionFunc{
			"mail_announcement": b.mailAnnouncement,
		},
	}
}

// contractCheck runs GeneralParamCheck first, then enforces the
// one-active-contract-per-tenant business precondition.
func (b *ContractBroker) contractCheck(ctx context.Context, hc *Context) error {
	if err := GeneralParamCheck(ctx, hc); err != nil {
		return err
	}
	active, err := b.contracts.HasActiveContract(ctx, hc.Ticket.TenantID)
	if err != nil {
		return err
	}
	if active {
		return apperrors.NewDuringContract(hc.Ticket.TenantID)
	}
	return nil
}

// cancellationCheck requires an active contract to cancel.
func (b *ContractBroker) cancellationCheck(ctx context.Context, hc *Context) error {
	if err := GeneralParamCheck(ctx, hc); err != nil {
		return err
	}
	active, err := b.contracts.HasActiveContract(ctx, hc.Ticket.TenantID)
	if err != nil {
		return err
	}
	if !active {
		return apperrors.NewCancellationNGState(hc.Ticket.TenantID)
	}
	return nil
}

func (b *ContractBroker) reserveQuota(ctx context.Context, hc *Context) error {
	return b.quota.Reserve(ctx, hc.Ticket.TenantID)
}

func (b *ContractBroker) releaseQuota(ctx context.Context, hc *Context) error {
	return b.quota.Release(ctx, hc.Ticket.TenantID)
}

func (b *ContractBroker) registerContract(ctx context.Context, hc *Context) error {
	return b.contracts.Create(ctx, &domain.Contract{
		TenantID: hc.Ticket.TenantID,
		TicketID: hc.Ticket.ID,
		Status:   domain.ContractActive,
	})
}

func (b *ContractBroker) cancelContract(ctx context.Context, hc *Context) error {
	return b.contracts.CancelByTenant(ctx, hc.Ticket.TenantID)
}

// mailToMember notifies the requesting tenant. Delivery failure is logged and
// swallowed; a lost mail must not wedge a committed transition.
func (b *ContractBroker) mailToMember(ctx context.Context, hc *Context) error {
	b.sendLenient(ctx, []string{b.cfg.MemberAddress}, "ticket_"+hc.AfterStatus+"_member", hc)
	return nil
}

// mailToSupport notifies the back-office audience able to act next.
func (b *ContractBroker) mailToSupport(ctx context.Context, hc *Context) error {
	addresses := b.addressesForRoles(hc.NextRoles)
	if len(addresses) == 0 {
		addresses = []string{b.cfg.SupportAddress}
	}
	b.sendLenient(ctx, addresses, "ticket_"+hc.AfterStatus+"_support", hc)
	return nil
}

// mailAnnouncement treats delivery failure as fatal: an announcement ticket
// whose only effect is the mail has no other observable outcome.
func (b *ContractBroker) mailAnnouncement(ctx context.Context, hc *Context) error {
	addresses := append(b.addressesForRoles(hc.NextRoles), b.cfg.MemberAddress)
	return b.mail.Send(ctx, addresses, "announcement_"+hc.AfterStatus, mailData(hc))
}

func (b *ContractBroker) sendLenient(ctx context.Context, addresses []string, templateRef string, hc *Context) {
	if err := b.mail.Send(ctx, addresses, templateRef, mailData(hc)); err != nil {
		b.logger.Warn("notification delivery failed",
			zap.String("ticket_id", hc.Ticket.ID),
			zap.String("template", templateRef),
			zap.Error(err))
	}
}

func (b *ContractBroker) addressesForRoles(roles []string) []string {
	var addresses []string
	for _, role := range roles {
		if addr, ok := b.cfg.RoleAddresses[role]; ok && addr != "" {
			addresses = append(addresses, addr)
		}
	}
	return addresses
}

func mailData(hc *Context) map[string]any {
	return map[string]any{
		"ticket_id":     hc.Ticket.ID,
		"ticket_type":   hc.Ticket.TicketType,
		"tenant_id":     hc.Ticket.TenantID,
		"tenant_name":   hc.Ticket.TenantName,
		"owner_name":    hc.Ticket.OwnerName,
		"before_status": hc.BeforeStatus,
		"after_status":  hc.AfterStatus,
		"values":        hc.Values,
	}
}
