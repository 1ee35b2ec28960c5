package domain

import "time"

// Actor is the already-authenticated caller of an engine operation. Role
// resolution happens upstream; the engine only consumes the resolved set.
type Actor struct {
	ID         string
	Name       string
	TenantID   string
	TenantName string
	Roles      []string
}

// Confirmer identifies who confirmed a workflow row transition.
type Confirmer struct {
	ID   string
	Name string
}

// Operator is a back-office account able to obtain API tokens.
type Operator struct {
	ID         string
	Name       string
	TenantID   string
	TenantName string
	Roles      []string
	SecretHash string
	CreatedAt  time.Time
}
