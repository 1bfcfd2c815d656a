package owner

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custoda/internal/audit"
	"custoda/internal/captoken"
	"custoda/internal/credential"
	"custoda/internal/document"
	"custoda/internal/permission"
	"custoda/internal/platform/metrics"
	"custoda/internal/record"
	"custoda/internal/vault"
	dErrors "custoda/pkg/domainerrors"
	"custoda/pkg/platform/sentinel"
)

// BaselinePurpose is the purpose of the consent recorded at owner creation,
// covering the engine's own operation on the owner's behalf.
const BaselinePurpose = "service_baseline"

// Synchronizer triggers a reconciliation run after backend configuration
// changes. Implemented by the syncer; kept as a port to avoid a cycle.
type Synchronizer interface {
	Trigger(ctx context.Context, ownerID string)
}

// Registry is the data owner registry. It owns the owner lifecycle,
// provisions the external backends at creation, and drives the deletion
// cascade.
type Registry struct {
	store       Store
	vault       vault.Vault
	credentials credential.Store
	permissions *permission.Service
	records     *record.Service
	documents   *document.Service
	tokens      *captoken.Service
	syncer      Synchronizer
	auditor     *audit.Publisher
	log         *slog.Logger
	metrics     *metrics.Metrics
}

func NewRegistry(
	store Store,
	v vault.Vault,
	creds credential.Store,
	permissions *permission.Service,
	records *record.Service,
	documents *document.Service,
	tokens *captoken.Service,
	syncer Synchronizer,
	auditor *audit.Publisher,
	log *slog.Logger,
	m *metrics.Metrics,
) *Registry {
	return &Registry{
		store:       store,
		vault:       v,
		credentials: creds,
		permissions: permissions,
		records:     records,
		documents:   documents,
		tokens:      tokens,
		syncer:      syncer,
		auditor:     auditor,
		log:         log,
		metrics:     m,
	}
}

// Create allocates an owner, provisions vault and credential store linkage,
// and records the baseline consent. Vault provisioning failure is fatal;
// credential store provisioning failure is recoverable and leaves the owner
// active with the link pending.
func (r *Registry) Create(ctx context.Context, identity Identity) (DataOwner, error) {
	if identity.Name == "" {
		return DataOwner{}, dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}

	ownerID := uuid.NewString()

	vaultRef, err := r.vault.Provision(ctx, ownerID)
	if err != nil {
		r.log.Error("vault provisioning failed", "owner_id", ownerID, "error", err)
		return DataOwner{}, dErrors.New(dErrors.CodeVaultUnavailable, "vault provisioning failed")
	}

	now := time.Now()
	o := DataOwner{
		ID:            ownerID,
		Identity:      identity,
		VaultRef:      vaultRef,
		DefaultPolicy: "deny",
		Active:        true,
		CreatedAt:     now,
		LastUpdated:   now,
	}

	credRef, err := r.credentials.Provision(ctx, ownerID)
	if err != nil {
		// Recoverable: the synchronizer retries the link on its next run.
		r.log.Warn("credential store provisioning failed, link pending",
			"owner_id", ownerID, "error", err)
		o.CredentialLinkPending = true
	} else {
		o.CredentialStoreRef = credRef
	}

	if err := r.store.Save(ctx, o); err != nil {
		return DataOwner{}, err
	}

	if _, err := r.permissions.RequestConsent(ctx, ownerID, permission.ConsentRequest{
		Grantee:    "custoda",
		Purpose:    BaselinePurpose,
		DataTypes:  []record.DataType{record.DataTypeIdentity, record.DataTypeConsent},
		LegalBasis: "legitimate_interest",
		Evidence:   permission.ConsentEvidence{Method: "registration"},
	}); err != nil {
		r.log.Error("baseline consent failed", "owner_id", ownerID, "error", err)
	}

	if r.metrics != nil {
		r.metrics.OwnersCreated.Inc()
	}
	r.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionOwnerCreated,
		Subject: ownerID,
	})
	return o, nil
}

func (r *Registry) Get(ctx context.Context, ownerID string) (DataOwner, error) {
	o, err := r.store.FindByID(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return DataOwner{}, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return DataOwner{}, err
	}
	return o, nil
}

// UpdateRequest carries owner mutations. OwnerID itself is immutable.
type UpdateRequest struct {
	Identity *Identity
	Active   *bool
	// RelinkCredentialStore re-provisions the credential backend and
	// triggers a synchronization run.
	RelinkCredentialStore bool
}

func (r *Registry) Update(ctx context.Context, ownerID string, req UpdateRequest) (DataOwner, error) {
	o, err := r.Get(ctx, ownerID)
	if err != nil {
		return DataOwner{}, err
	}

	backendTouched := false
	if req.Identity != nil {
		o.Identity = *req.Identity
	}
	if req.Active != nil {
		o.Active = *req.Active
	}
	if req.RelinkCredentialStore {
		credRef, err := r.credentials.Provision(ctx, ownerID)
		if err != nil {
			o.CredentialLinkPending = true
		} else {
			o.CredentialStoreRef = credRef
			o.CredentialLinkPending = false
		}
		backendTouched = true
	}
	o.LastUpdated = time.Now()
	if err := r.store.Save(ctx, o); err != nil {
		return DataOwner{}, err
	}

	r.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionOwnerUpdated,
		Subject: ownerID,
	})
	if backendTouched && r.syncer != nil {
		r.syncer.Trigger(ctx, ownerID)
	}
	return o, nil
}

// Delete removes an owner with the full cascade: every capability token and
// document access right is revoked, records are archived to the vault rather
// than discarded, and the deletion is written to the audit trail before the
// owner row disappears.
func (r *Registry) Delete(ctx context.Context, ownerID string) error {
	o, err := r.Get(ctx, ownerID)
	if err != nil {
		return err
	}

	// Deactivate first so no new grants slip in mid-cascade.
	o.Active = false
	o.LastUpdated = time.Now()
	if err := r.store.Save(ctx, o); err != nil {
		return err
	}

	if err := r.tokens.RevokeAllForOwner(ctx, ownerID); err != nil {
		return err
	}
	if err := r.documents.RevokeAllForOwner(ctx, ownerID); err != nil {
		return err
	}

	records, err := r.records.ListAll(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		if err := r.vault.Write(ctx, o.VaultRef, "archive", payload); err != nil {
			r.log.Error("record archive failed during owner deletion",
				"owner_id", ownerID, "record_id", rec.ID, "error", err)
			return dErrors.New(dErrors.CodeVaultUnavailable, "could not archive records")
		}
		r.auditor.Emit(ctx, audit.Event{
			OwnerID: ownerID,
			Actor:   ownerID,
			Action:  audit.ActionRecordArchived,
			Subject: rec.ID,
		})
	}

	// The deletion event must land before the owner row goes away.
	r.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionOwnerDeleted,
		Subject: ownerID,
	})
	return r.store.Delete(ctx, ownerID)
}

// Gate adapts the owner store to the narrow ports other components consume
// (permission.OwnerGate, document.OwnerGate, record.OwnerDirectory).
type Gate struct {
	store Store
}

func NewGate(store Store) *Gate {
	return &Gate{store: store}
}

func (g *Gate) ActiveOwner(ctx context.Context, ownerID string) (bool, error) {
	o, err := g.store.FindByID(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return o.Active, nil
}

func (g *Gate) VaultRef(ctx context.Context, ownerID string) (string, error) {
	o, err := g.store.FindByID(ctx, ownerID)
	if err != nil {
		return "", err
	}
	return o.VaultRef, nil
}
