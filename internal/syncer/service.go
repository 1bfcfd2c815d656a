package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"custoda/internal/audit"
	"custoda/internal/credential"
	"custoda/internal/integrity"
	"custoda/internal/owner"
	"custoda/internal/platform/metrics"
	"custoda/internal/record"
	"custoda/internal/vault"
	"custoda/pkg/platform/sentinel"
)

// retryAttempts bounds retries against a transiently unavailable backend
// within a single run; anything left over waits for the next run.
const retryAttempts = 2

// Service reconciles the record store with the primary vault and the
// credential store, and produces integrity reports over an owner's records.
type Service struct {
	owners      owner.Store
	records     *record.Service
	vault       vault.Vault
	credentials credential.Store
	auditor     *audit.Publisher
	log         *slog.Logger
	metrics     *metrics.Metrics

	backendTimeout time.Duration
}

func NewService(owners owner.Store, records *record.Service, v vault.Vault, creds credential.Store, auditor *audit.Publisher, log *slog.Logger, m *metrics.Metrics, backendTimeout time.Duration) *Service {
	return &Service{
		owners:         owners,
		records:        records,
		vault:          v,
		credentials:    creds,
		auditor:        auditor,
		log:            log,
		metrics:        m,
		backendTimeout: backendTimeout,
	}
}

// Synchronize pushes pending record writes to the vault and pending
// credential changes to the credential store. The two sides run concurrently
// and report independently; the function never raises for a side failure.
func (s *Service) Synchronize(ctx context.Context, ownerID string) (SyncResult, error) {
	o, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return SyncResult{}, err
	}

	result := SyncResult{OwnerID: ownerID, RanAt: time.Now()}

	// Each goroutine writes only its own side; errgroup is used for joint
	// cancellation, not error propagation.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.Vault = s.syncVault(gctx, o)
		return nil
	})
	g.Go(func() error {
		result.Credential = s.syncCredentials(gctx, o)
		return nil
	})
	_ = g.Wait()

	s.observeSide("vault", result.Vault)
	s.observeSide("credential", result.Credential)
	s.auditor.Emit(ctx, audit.Event{
		OwnerID:  ownerID,
		Actor:    "syncer",
		Action:   audit.ActionSyncCompleted,
		Decision: outcome(result),
	})
	return result, nil
}

func (s *Service) syncVault(ctx context.Context, o owner.DataOwner) SideResult {
	side := SideResult{Success: true}
	pending, err := s.records.ListPendingSync(ctx, o.ID)
	if err != nil {
		return SideResult{Errors: []string{"list pending records: " + err.Error()}}
	}
	for _, rec := range pending {
		if err := s.withRetry(ctx, func(callCtx context.Context) error {
			return s.records.PushToVault(callCtx, o.VaultRef, rec)
		}); err != nil {
			side.Success = false
			side.Errors = append(side.Errors, "record "+rec.ID+": "+err.Error())
			continue
		}
		side.Changed++
	}
	return side
}

func (s *Service) syncCredentials(ctx context.Context, o owner.DataOwner) SideResult {
	side := SideResult{Success: true}

	credRef := o.CredentialStoreRef
	if o.CredentialLinkPending || credRef == "" {
		ref, err := s.credentials.Provision(ctx, o.ID)
		if err != nil {
			return SideResult{Errors: []string{"provision credential store: " + err.Error()}}
		}
		credRef = ref
		o.CredentialStoreRef = ref
		o.CredentialLinkPending = false
		if err := s.owners.Save(ctx, o); err != nil {
			return SideResult{Errors: []string{"persist credential link: " + err.Error()}}
		}
		side.Changed++
	}

	// Derive a portable credential from the newest identity record when the
	// record is not yet cross-referenced.
	latest, err := s.records.ListAll(ctx, o.ID)
	if err != nil {
		side.Success = false
		side.Errors = append(side.Errors, "list records: "+err.Error())
		return side
	}
	var newest *record.UnifiedRecord
	for i := range latest {
		rec := &latest[i]
		if rec.DataType != record.DataTypeIdentity || rec.CrossRef != "" {
			continue
		}
		if newest == nil || rec.Version > newest.Version {
			newest = rec
		}
	}
	if newest != nil {
		payload, err := json.Marshal(map[string]any{
			"recordId": newest.ID,
			"version":  newest.Version,
			"hash":     newest.IntegrityHash,
		})
		if err != nil {
			side.Success = false
			side.Errors = append(side.Errors, "encode credential: "+err.Error())
			return side
		}
		var credID string
		if err := s.withRetry(ctx, func(callCtx context.Context) error {
			var issueErr error
			credID, issueErr = s.credentials.Issue(callCtx, credRef, payload)
			return issueErr
		}); err != nil {
			side.Success = false
			side.Errors = append(side.Errors, "issue credential: "+err.Error())
			return side
		}
		if err := s.records.SetCrossRef(ctx, newest.ID, credID); err != nil {
			side.Success = false
			side.Errors = append(side.Errors, "link credential: "+err.Error())
			return side
		}
		side.Changed++
	}
	return side
}

// withRetry bounds each backend call by the configured timeout and retries
// transient unavailability with a short backoff.
func (s *Service) withRetry(ctx context.Context, call func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, s.backendTimeout)
		err = call(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
	}
	return err
}

// ValidateIntegrity re-hashes every record and reports mismatches and broken
// credential cross-references. Read-only by design.
func (s *Service) ValidateIntegrity(ctx context.Context, ownerID string) (IntegrityReport, error) {
	o, err := s.owners.FindByID(ctx, ownerID)
	if err != nil {
		return IntegrityReport{}, err
	}
	records, err := s.records.ListAll(ctx, ownerID)
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{
		OwnerID:      ownerID,
		CheckedAt:    time.Now(),
		TotalRecords: len(records),
	}

	var knownCredentials map[string]bool
	if o.CredentialStoreRef != "" {
		if creds, err := s.credentials.List(ctx, o.CredentialStoreRef); err == nil {
			knownCredentials = make(map[string]bool, len(creds))
			for _, c := range creds {
				knownCredentials[c.ID] = true
			}
		}
	}

	for _, rec := range records {
		actual, err := integrity.Hash(rec.Payload)
		if err != nil || actual != rec.IntegrityHash {
			report.HashMismatches = append(report.HashMismatches, HashMismatch{
				RecordID: rec.ID,
				Expected: rec.IntegrityHash,
				Actual:   actual,
			})
			report.RecommendedActions = append(report.RecommendedActions,
				"re-verify and update hash for record "+rec.ID)
			if s.metrics != nil {
				s.metrics.IntegrityMismatches.Inc()
			}
			continue
		}
		report.ValidRecords++
		if rec.CrossRef != "" && knownCredentials != nil && !knownCredentials[rec.CrossRef] {
			report.MissingCrossReferences = append(report.MissingCrossReferences, rec.ID)
			report.RecommendedActions = append(report.RecommendedActions,
				"re-issue credential for record "+rec.ID)
		}
	}

	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   "syncer",
		Action:  audit.ActionIntegrityCheck,
		Reason:  "",
	})
	return report, nil
}

// Trigger runs Synchronize in the background, satisfying the registry's
// Synchronizer port for backend configuration changes.
func (s *Service) Trigger(ctx context.Context, ownerID string) {
	go func() {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*s.backendTimeout)
		defer cancel()
		if _, err := s.Synchronize(runCtx, ownerID); err != nil {
			s.log.Error("triggered synchronization failed", "owner_id", ownerID, "error", err)
		}
	}()
}

func (s *Service) observeSide(side string, result SideResult) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	s.metrics.SyncRuns.WithLabelValues(side, outcome).Inc()
}

func outcome(r SyncResult) string {
	if r.Vault.Success && r.Credential.Success {
		return "clean"
	}
	return "degraded"
}
