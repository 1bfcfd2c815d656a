package permission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custoda/internal/audit"
	"custoda/internal/record"
	dErrors "custoda/pkg/domainerrors"
	"custoda/pkg/platform/sentinel"
)

// OwnerGate answers whether an owner exists and is active. Implemented by the
// owner registry; kept as a port here to avoid a package cycle.
type OwnerGate interface {
	ActiveOwner(ctx context.Context, ownerID string) (bool, error)
}

// Service is the permission and consent manager. CheckAccess is the single
// enforcement authority: every component that gates third-party access to an
// owner's data goes through it, so the rules live in exactly one place.
type Service struct {
	store   Store
	owners  OwnerGate
	auditor *audit.Publisher
	log     *slog.Logger
}

func NewService(store Store, owners OwnerGate, auditor *audit.Publisher, log *slog.Logger) *Service {
	return &Service{store: store, owners: owners, auditor: auditor, log: log}
}

// GrantRequest is the caller-facing shape of a new permission.
type GrantRequest struct {
	Grantee    string
	DataTypes  []record.DataType
	Rights     []AccessRight
	Purpose    string
	Conditions Conditions
	Expires    *time.Time
	ConsentID  string
}

// Grant appends a permission to the owner's set. Inactive owners may not
// grant anything.
func (s *Service) Grant(ctx context.Context, ownerID string, req GrantRequest) (DataPermission, error) {
	active, err := s.owners.ActiveOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return DataPermission{}, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return DataPermission{}, err
	}
	if !active {
		return DataPermission{}, dErrors.New(dErrors.CodeUnauthorized, "owner is inactive")
	}
	if req.Grantee == "" {
		return DataPermission{}, dErrors.New(dErrors.CodeInvalidInput, "grantee is required")
	}
	if len(req.DataTypes) == 0 || len(req.Rights) == 0 {
		return DataPermission{}, dErrors.New(dErrors.CodeInvalidInput, "data types and rights must not be empty")
	}
	for _, dt := range req.DataTypes {
		if !dt.IsValid() {
			return DataPermission{}, dErrors.New(dErrors.CodeInvalidInput, "invalid data type: "+string(dt))
		}
	}
	for _, r := range req.Rights {
		if !validRights[r] {
			return DataPermission{}, dErrors.New(dErrors.CodeInvalidInput, "invalid access right: "+string(r))
		}
	}

	p := DataPermission{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Grantee:    req.Grantee,
		DataTypes:  req.DataTypes,
		Rights:     req.Rights,
		Purpose:    req.Purpose,
		Conditions: req.Conditions,
		GrantedAt:  time.Now(),
		Expires:    req.Expires,
		Status:     StatusActive,
		ConsentID:  req.ConsentID,
	}
	if err := s.store.SavePermission(ctx, p); err != nil {
		return DataPermission{}, err
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionPermissionGrant,
		Subject: p.ID,
		Purpose: p.Purpose,
	})
	return p, nil
}

// Revoke terminally revokes a permission. Idempotent: revoking an already
// revoked permission succeeds without effect.
func (s *Service) Revoke(ctx context.Context, permissionID string) error {
	p, err := s.store.FindPermission(ctx, permissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "permission not found")
		}
		return err
	}
	if p.Status == StatusRevoked {
		return nil
	}
	p.Status = StatusRevoked
	if err := s.store.SavePermission(ctx, p); err != nil {
		return err
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: p.OwnerID,
		Actor:   p.OwnerID,
		Action:  audit.ActionPermissionRevok,
		Subject: p.ID,
	})
	return nil
}

// CheckAccess reports whether grantee currently holds right on dataType for
// the owner. True requires an active, unexpired permission carrying both the
// data type and the right, with every condition satisfied. Usage-capped
// permissions consume one use on success, atomically, so a cap of N can never
// authorize more than N times under concurrency.
func (s *Service) CheckAccess(ctx context.Context, ownerID, grantee string, dataType record.DataType, right AccessRight) (bool, error) {
	perms, err := s.store.ListPermissions(ctx, ownerID)
	if err != nil {
		return false, err
	}
	now := time.Now()
	for _, p := range perms {
		if !p.authorizes(grantee, dataType, right, now) {
			continue
		}
		if p.Conditions.MaxUses > 0 {
			ok, err := s.store.ConsumeUse(ctx, p.ID)
			if err != nil {
				return false, err
			}
			if !ok {
				continue
			}
		}
		return true, nil
	}
	return false, nil
}

// ListPermissions returns the owner's full permission set.
func (s *Service) ListPermissions(ctx context.Context, ownerID string) ([]DataPermission, error) {
	return s.store.ListPermissions(ctx, ownerID)
}

// GetPermission returns a single permission by ID.
func (s *Service) GetPermission(ctx context.Context, permissionID string) (DataPermission, error) {
	p, err := s.store.FindPermission(ctx, permissionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return DataPermission{}, dErrors.New(dErrors.CodeNotFound, "permission not found")
		}
		return DataPermission{}, err
	}
	return p, nil
}

// GetConsent returns a single consent record by ID.
func (s *Service) GetConsent(ctx context.Context, consentID string) (ConsentRecord, error) {
	c, err := s.store.FindConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ConsentRecord{}, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return ConsentRecord{}, err
	}
	return c, nil
}

// ConsentRequest is the caller-facing shape of a new consent record.
type ConsentRequest struct {
	Grantee    string
	Purpose    string
	DataTypes  []record.DataType
	LegalBasis string
	Expires    *time.Time
	Evidence   ConsentEvidence
}

// RequestConsent records a consent decision. LegalBasis is mandatory; consent
// without a legal basis is not consent.
func (s *Service) RequestConsent(ctx context.Context, ownerID string, req ConsentRequest) (ConsentRecord, error) {
	active, err := s.owners.ActiveOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ConsentRecord{}, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return ConsentRecord{}, err
	}
	if !active {
		return ConsentRecord{}, dErrors.New(dErrors.CodeUnauthorized, "owner is inactive")
	}
	if req.LegalBasis == "" {
		return ConsentRecord{}, dErrors.New(dErrors.CodeInvalidInput, "legal basis is required")
	}
	now := time.Now()
	c := ConsentRecord{
		ID:         uuid.NewString(),
		OwnerID:    ownerID,
		Grantee:    req.Grantee,
		Purpose:    req.Purpose,
		DataTypes:  req.DataTypes,
		LegalBasis: req.LegalBasis,
		GrantedAt:  now,
		Expires:    req.Expires,
		Evidence:   req.Evidence,
		Status:     ConsentActive,
	}
	if c.Evidence.Timestamp.IsZero() {
		c.Evidence.Timestamp = now
	}
	if err := s.store.SaveConsent(ctx, c); err != nil {
		return ConsentRecord{}, err
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionConsentGranted,
		Subject: c.ID,
		Purpose: c.Purpose,
	})
	return c, nil
}

// WithdrawConsent terminally withdraws a consent record and suspends every
// active permission that depends on it, either by explicit ConsentID link or
// by matching grantee and purpose. Withdrawal of withdrawn consent succeeds
// without effect.
func (s *Service) WithdrawConsent(ctx context.Context, consentID string) error {
	c, err := s.store.FindConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return err
	}
	if c.Status == ConsentWithdrawn {
		return nil
	}
	now := time.Now()
	c.Status = ConsentWithdrawn
	c.WithdrawnAt = &now
	if err := s.store.SaveConsent(ctx, c); err != nil {
		return err
	}

	perms, err := s.store.ListPermissions(ctx, c.OwnerID)
	if err != nil {
		return err
	}
	for _, p := range perms {
		if p.Status != StatusActive {
			continue
		}
		dependent := p.ConsentID == c.ID || (p.Grantee == c.Grantee && p.Purpose == c.Purpose)
		if !dependent {
			continue
		}
		p.Status = StatusSuspended
		if err := s.store.SavePermission(ctx, p); err != nil {
			return err
		}
		s.log.Info("permission suspended by consent withdrawal",
			"permission_id", p.ID, "consent_id", c.ID)
	}

	s.auditor.Emit(ctx, audit.Event{
		OwnerID: c.OwnerID,
		Actor:   c.OwnerID,
		Action:  audit.ActionConsentWithdraw,
		Subject: c.ID,
		Purpose: c.Purpose,
	})
	return nil
}

// RenewConsent creates a new linked consent record rather than mutating the
// old one; the old record transitions to renewed and stays in history.
func (s *Service) RenewConsent(ctx context.Context, consentID string, expires *time.Time) (ConsentRecord, error) {
	old, err := s.store.FindConsent(ctx, consentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return ConsentRecord{}, dErrors.New(dErrors.CodeNotFound, "consent not found")
		}
		return ConsentRecord{}, err
	}
	if old.Status == ConsentWithdrawn {
		return ConsentRecord{}, dErrors.New(dErrors.CodeRevoked, "withdrawn consent cannot be renewed")
	}

	now := time.Now()
	renewed := old
	renewed.ID = uuid.NewString()
	renewed.GrantedAt = now
	renewed.Expires = expires
	renewed.Status = ConsentActive
	renewed.WithdrawnAt = nil
	renewed.RenewedFromID = old.ID
	if err := s.store.SaveConsent(ctx, renewed); err != nil {
		return ConsentRecord{}, err
	}

	old.Status = ConsentRenewed
	if err := s.store.SaveConsent(ctx, old); err != nil {
		return ConsentRecord{}, err
	}

	s.auditor.Emit(ctx, audit.Event{
		OwnerID: renewed.OwnerID,
		Actor:   renewed.OwnerID,
		Action:  audit.ActionConsentRenewed,
		Subject: renewed.ID,
		Purpose: renewed.Purpose,
	})
	return renewed, nil
}

// ListConsents returns the owner's consent history, expiring stale records on
// the way out (status only; history is never rewritten).
func (s *Service) ListConsents(ctx context.Context, ownerID string) ([]ConsentRecord, error) {
	consents, err := s.store.ListConsents(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i, c := range consents {
		if c.Status == ConsentActive && c.Expires != nil && now.After(*c.Expires) {
			c.Status = ConsentExpired
			if err := s.store.SaveConsent(ctx, c); err != nil {
				return nil, err
			}
			consents[i] = c
		}
	}
	return consents, nil
}
