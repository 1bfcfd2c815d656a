package record

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"custoda/internal/audit"
	"custoda/internal/integrity"
	"custoda/internal/platform/metrics"
	"custoda/internal/vault"
	dErrors "custoda/pkg/domainerrors"
	"custoda/pkg/platform/sentinel"
)

// OwnerDirectory resolves an owner to its vault reference. Implemented by the
// owner registry; kept as a port here to avoid a package cycle.
type OwnerDirectory interface {
	VaultRef(ctx context.Context, ownerID string) (string, error)
}

// Service is the Unified Record Store. It owns hashing, versioning, the
// append-only access log, and the store-then-confirm vault push. Local writes
// always land; an unconfirmed vault push leaves the record pending-sync for
// the synchronizer to retry, never rolled back or dropped.
type Service struct {
	store   Store
	vault   vault.Vault
	owners  OwnerDirectory
	auditor *audit.Publisher
	log     *slog.Logger
	metrics *metrics.Metrics

	// backendTimeout bounds each vault call independently of the caller.
	backendTimeout time.Duration

	// chainMu serializes version bumps per (owner, dataType) logical record
	// so concurrent writers cannot mint duplicate versions.
	mu      sync.Mutex
	chainMu map[string]*sync.Mutex
}

func NewService(store Store, v vault.Vault, owners OwnerDirectory, auditor *audit.Publisher, log *slog.Logger, m *metrics.Metrics, backendTimeout time.Duration) *Service {
	return &Service{
		store:          store,
		vault:          v,
		owners:         owners,
		auditor:        auditor,
		log:            log,
		metrics:        m,
		backendTimeout: backendTimeout,
		chainMu:        make(map[string]*sync.Mutex),
	}
}

func (s *Service) chainLock(ownerID string, dataType DataType) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ownerID + "|" + string(dataType)
	if l, ok := s.chainMu[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.chainMu[key] = l
	return l
}

// StoreOptions carries optional per-write settings.
type StoreOptions struct {
	// PrivacyLevel overrides the data type default when valid.
	PrivacyLevel PrivacyLevel
	// Accessor attributed in the write log entry; defaults to the owner.
	Accessor string
	Purpose  string
	// CrossRef links the record to a derived credential.
	CrossRef string
}

// Store writes a new version of the (owner, dataType) logical record.
func (s *Service) Store(ctx context.Context, ownerID string, dataType DataType, payload any, opts StoreOptions) (UnifiedRecord, error) {
	if !dataType.IsValid() {
		return UnifiedRecord{}, dErrors.New(dErrors.CodeInvalidInput, "invalid data type")
	}
	vaultRef, err := s.owners.VaultRef(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return UnifiedRecord{}, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return UnifiedRecord{}, err
	}

	hash, err := integrity.Hash(payload)
	if err != nil {
		return UnifiedRecord{}, dErrors.New(dErrors.CodeInvalidInput, "payload is not hashable")
	}

	privacy := DefaultPrivacy(dataType)
	if opts.PrivacyLevel != "" {
		if !opts.PrivacyLevel.IsValid() {
			return UnifiedRecord{}, dErrors.New(dErrors.CodeInvalidInput, "invalid privacy level")
		}
		privacy = opts.PrivacyLevel
	}
	accessor := opts.Accessor
	if accessor == "" {
		accessor = ownerID
	}

	lock := s.chainLock(ownerID, dataType)
	lock.Lock()
	defer lock.Unlock()

	version := 1
	if latest, err := s.store.Latest(ctx, ownerID, dataType); err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, sentinel.ErrNotFound) {
		return UnifiedRecord{}, err
	}

	now := time.Now()
	rec := UnifiedRecord{
		ID:            uuid.NewString(),
		OwnerID:       ownerID,
		DataType:      dataType,
		Payload:       payload,
		IntegrityHash: hash,
		Version:       version,
		PrivacyLevel:  privacy,
		CreatedAt:     now,
		LastUpdated:   now,
		CrossRef:      opts.CrossRef,
		PendingSync:   true,
		AccessLog: []AccessLogEntry{{
			Timestamp:  now,
			Accessor:   accessor,
			Action:     LogWrite,
			Purpose:    opts.Purpose,
			Authorized: true,
		}},
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return UnifiedRecord{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordsStored.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   accessor,
		Action:  audit.ActionRecordWritten,
		Subject: rec.ID,
		Purpose: opts.Purpose,
	})

	// Store-then-confirm: the local record is authoritative. A failed or
	// timed-out vault push leaves it pending for Synchronize to retry.
	if err := s.PushToVault(ctx, vaultRef, rec); err != nil {
		s.log.Warn("vault push failed, record pending sync",
			"record_id", rec.ID, "owner_id", ownerID, "error", err)
		return rec, nil
	}
	rec.PendingSync = false
	return rec, nil
}

// PushToVault serializes the record and writes it to the owner's vault under
// the data type collection, marking the record synced on success.
func (s *Service) PushToVault(ctx context.Context, vaultRef string, rec UnifiedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pushCtx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()
	if err := s.vault.Write(pushCtx, vaultRef, string(rec.DataType), payload); err != nil {
		return err
	}
	return s.store.MarkSynced(ctx, rec.ID)
}

// ListOptions carries who is reading and why, for the access log.
type ListOptions struct {
	Accessor string
	Purpose  string
}

// List returns the owner's records of the given type, filtered. Every matched
// record gets a read log entry appended before it is returned; integrity is
// recomputed on the way out and mismatches surface as Corrupted views.
func (s *Service) List(ctx context.Context, ownerID string, dataType DataType, filter Filter, opts ListOptions) ([]View, error) {
	if !dataType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid data type")
	}
	records, err := s.store.ListByOwner(ctx, ownerID, dataType)
	if err != nil {
		return nil, err
	}

	matched := records[:0]
	for _, rec := range records {
		if filter.From != nil && rec.LastUpdated.Before(*filter.From) {
			continue
		}
		if filter.To != nil && rec.LastUpdated.After(*filter.To) {
			continue
		}
		if filter.PrivacyLevel != "" && rec.PrivacyLevel != filter.PrivacyLevel {
			continue
		}
		matched = append(matched, rec)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}

	accessor := opts.Accessor
	if accessor == "" {
		accessor = ownerID
	}
	views := make([]View, 0, len(matched))
	for _, rec := range matched {
		entry := AccessLogEntry{
			Timestamp:  time.Now(),
			Accessor:   accessor,
			Action:     LogRead,
			Purpose:    opts.Purpose,
			Authorized: true,
		}
		if err := s.store.AppendLog(ctx, rec.ID, entry); err != nil {
			return nil, err
		}
		rec.AccessLog = append(rec.AccessLog, entry)

		corrupted := !integrity.Verify(rec.Payload, rec.IntegrityHash)
		if corrupted {
			if s.metrics != nil {
				s.metrics.IntegrityMismatches.Inc()
			}
			s.log.Error("integrity mismatch on read", "record_id", rec.ID, "owner_id", ownerID)
		}
		views = append(views, View{Record: rec, Corrupted: corrupted})
	}
	return views, nil
}

// Get returns a single record by id with an integrity verdict, appending a
// read log entry first.
func (s *Service) Get(ctx context.Context, recordID string, opts ListOptions) (View, error) {
	rec, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return View{}, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return View{}, err
	}
	accessor := opts.Accessor
	if accessor == "" {
		accessor = rec.OwnerID
	}
	entry := AccessLogEntry{
		Timestamp:  time.Now(),
		Accessor:   accessor,
		Action:     LogRead,
		Purpose:    opts.Purpose,
		Authorized: true,
	}
	if err := s.store.AppendLog(ctx, rec.ID, entry); err != nil {
		return View{}, err
	}
	rec.AccessLog = append(rec.AccessLog, entry)
	return View{Record: rec, Corrupted: !integrity.Verify(rec.Payload, rec.IntegrityHash)}, nil
}

// Delete permanently removes one record. The record's own log disappears with
// it, so the deletion is written to the owner-level audit trail first.
func (s *Service) Delete(ctx context.Context, recordID, actor string) error {
	rec, err := s.store.FindByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return err
	}
	if actor == "" {
		actor = rec.OwnerID
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: rec.OwnerID,
		Actor:   actor,
		Action:  audit.ActionRecordDeleted,
		Subject: rec.ID,
	})
	return s.store.Delete(ctx, recordID)
}

// ListPendingSync exposes unconfirmed records for the synchronizer.
func (s *Service) ListPendingSync(ctx context.Context, ownerID string) ([]UnifiedRecord, error) {
	return s.store.ListPendingSync(ctx, ownerID)
}

// ListAll returns every record for an owner without touching access logs.
// Reserved for the integrity auditor and owner deletion cascade.
func (s *Service) ListAll(ctx context.Context, ownerID string) ([]UnifiedRecord, error) {
	return s.store.ListAllByOwner(ctx, ownerID)
}

// SetCrossRef links a record to the credential derived from it.
func (s *Service) SetCrossRef(ctx context.Context, recordID, crossRef string) error {
	return s.store.SetCrossRef(ctx, recordID, crossRef)
}
