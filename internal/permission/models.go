package permission

import (
	"time"

	dErrors "custoda/pkg/domainerrors"

	"custoda/internal/record"
)

// AccessRight is an operation a grantee may be allowed on a data type.
type AccessRight string

const (
	RightRead   AccessRight = "read"
	RightWrite  AccessRight = "write"
	RightDelete AccessRight = "delete"
	RightShare  AccessRight = "share"
	RightExport AccessRight = "export"
)

var validRights = map[AccessRight]bool{
	RightRead:   true,
	RightWrite:  true,
	RightDelete: true,
	RightShare:  true,
	RightExport: true,
}

func ParseAccessRight(s string) (AccessRight, error) {
	r := AccessRight(s)
	if !validRights[r] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid access right")
	}
	return r, nil
}

// Status tracks a permission's lifecycle. Transitions only move forward:
// active -> suspended -> revoked, or active -> revoked. Revocation is
// terminal.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusRevoked   Status = "revoked"
)

// Conditions are the predicates that must all hold for a permission to
// authorize access at evaluation time.
type Conditions struct {
	// NotBefore/NotAfter bound the usable time window, independent of the
	// permission's own expiry.
	NotBefore *time.Time `json:"notBefore,omitempty"`
	NotAfter  *time.Time `json:"notAfter,omitempty"`
	// MaxUses caps successful access checks; zero means unlimited.
	MaxUses int `json:"maxUses,omitempty"`
	// Purpose binds the grant to a declared processing purpose.
	Purpose string `json:"purpose,omitempty"`
	// Locations whitelists where access may originate; empty means anywhere.
	Locations []string `json:"locations,omitempty"`
}

// DataPermission is a standing, revocable grant of rights over data types to
// a named grantee.
type DataPermission struct {
	ID         string            `json:"permissionId"`
	OwnerID    string            `json:"ownerId"`
	Grantee    string            `json:"grantee"`
	DataTypes  []record.DataType `json:"dataTypes"`
	Rights     []AccessRight     `json:"accessRights"`
	Purpose    string            `json:"purpose"`
	Conditions Conditions        `json:"conditions"`
	GrantedAt  time.Time         `json:"grantedAt"`
	Expires    *time.Time        `json:"expires,omitempty"`
	Status     Status            `json:"status"`
	// UseCount tracks successful authorizations against Conditions.MaxUses.
	UseCount int `json:"useCount"`
	// ConsentID links the permission to the consent that justifies it, so a
	// consent withdrawal can cascade here.
	ConsentID string `json:"consentId,omitempty"`
}

// authorizes reports whether this permission, on its own terms, allows the
// grantee the given right on the data type at the given instant. Usage caps
// are checked but not consumed here; the store consumes them.
func (p DataPermission) authorizes(grantee string, dataType record.DataType, right AccessRight, now time.Time) bool {
	if p.Status != StatusActive {
		return false
	}
	if p.Grantee != grantee {
		return false
	}
	if p.Expires != nil && now.After(*p.Expires) {
		return false
	}
	if !containsType(p.DataTypes, dataType) || !containsRight(p.Rights, right) {
		return false
	}
	c := p.Conditions
	if c.NotBefore != nil && now.Before(*c.NotBefore) {
		return false
	}
	if c.NotAfter != nil && now.After(*c.NotAfter) {
		return false
	}
	if c.MaxUses > 0 && p.UseCount >= c.MaxUses {
		return false
	}
	return true
}

func containsType(types []record.DataType, want record.DataType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func containsRight(rights []AccessRight, want AccessRight) bool {
	for _, r := range rights {
		if r == want {
			return true
		}
	}
	return false
}

// ConsentStatus tracks a consent record's lifecycle. Withdrawal is terminal
// for that record; renewal creates a linked new record.
type ConsentStatus string

const (
	ConsentActive    ConsentStatus = "active"
	ConsentWithdrawn ConsentStatus = "withdrawn"
	ConsentExpired   ConsentStatus = "expired"
	ConsentRenewed   ConsentStatus = "renewed"
)

// ConsentEvidence records how consent was captured.
type ConsentEvidence struct {
	Method    string    `json:"method"`
	Timestamp time.Time `json:"timestamp"`
	Artifacts []string  `json:"artifacts,omitempty"`
}

// ConsentRecord is the legal basis behind a permission's existence.
type ConsentRecord struct {
	ID          string            `json:"consentId"`
	OwnerID     string            `json:"ownerId"`
	Grantee     string            `json:"grantee"`
	Purpose     string            `json:"purpose"`
	DataTypes   []record.DataType `json:"dataTypes"`
	LegalBasis  string            `json:"legalBasis"`
	GrantedAt   time.Time         `json:"grantedAt"`
	WithdrawnAt *time.Time        `json:"withdrawnAt,omitempty"`
	Expires     *time.Time        `json:"expires,omitempty"`
	Evidence    ConsentEvidence   `json:"evidence"`
	Status      ConsentStatus     `json:"status"`
	// RenewedFromID links a renewal back to the record it replaces; history
	// is never mutated.
	RenewedFromID string `json:"renewedFromId,omitempty"`
}
