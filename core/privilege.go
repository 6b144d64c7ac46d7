package core

import "fmt"

type Scope string

const (
	ScopePCIAudit   Scope = "pci_audit"
	ScopeCardTokens Scope = "card_tokens"
	ScopePayeeWrite Scope = "payee_write"
	// ScopeSettlement is held by back-office actors that confirm a payment
	// has settled. Customers never hold it.
	ScopeSettlement Scope = "settlement"
)

// Privilege is the elevated-write capability for compliance data. Build one
// per request with only the scopes that request needs and pass it down; there
// is no package-level privileged client.
type Privilege struct {
	actor  string
	scopes map[Scope]struct{}
}

func NewPrivilege(actor string, scopes ...Scope) Privilege {
	p := Privilege{actor: actor, scopes: make(map[Scope]struct{}, len(scopes))}
	for _, s := range scopes {
		p.scopes[s] = struct{}{}
	}
	return p
}

func (p Privilege) Actor() string { return p.actor }

func (p Privilege) Allows(scope Scope) bool {
	if p.actor == "" {
		return false
	}
	_, ok := p.scopes[scope]
	return ok
}

func (p Privilege) require(scope Scope) error {
	if !p.Allows(scope) {
		return fmt.Errorf("%w: %s", ErrPrivilegeRequired, scope)
	}
	return nil
}
