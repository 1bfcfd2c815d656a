package captoken

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"custoda/internal/audit"
	"custoda/internal/document"
	"custoda/internal/platform/metrics"
	"custoda/internal/signer"
	dErrors "custoda/pkg/domainerrors"
	"custoda/pkg/platform/sentinel"
)

// bearerRejection is the single message every failed validation surfaces to
// an unauthenticated bearer. The precise reason stays in internal logs and
// metrics so an attacker cannot distinguish a forged signature from an
// unknown token.
const bearerRejection = "token not accepted"

// Service issues, validates, and revokes capability tokens. Token state only
// moves forward: issued(active) to expired, exhausted, or revoked, never
// back.
type Service struct {
	store     Store
	documents *document.Service
	signer    signer.Signer
	auditor   *audit.Publisher
	log       *slog.Logger
	metrics   *metrics.Metrics

	// tokenMu serializes validate-and-consume per token so concurrent scans
	// of the same code cannot exceed the usage bound.
	mu      sync.Mutex
	tokenMu map[string]*sync.Mutex
}

func NewService(store Store, documents *document.Service, sig signer.Signer, auditor *audit.Publisher, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:     store,
		documents: documents,
		signer:    sig,
		auditor:   auditor,
		log:       log,
		metrics:   m,
		tokenMu:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockFor(tokenID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.tokenMu[tokenID]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.tokenMu[tokenID] = l
	return l
}

// releaseLock drops a token's mutex once the token reaches a terminal state,
// so the map does not grow with every dead token ever presented. Terminal
// state is persisted before the call; a waiter holding the old mutex, or a
// later arrival with a fresh one, re-reads stored state and is denied.
func (s *Service) releaseLock(tokenID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokenMu, tokenID)
}

// IssueRequest carries the owner's token parameters.
type IssueRequest struct {
	DocumentID        string
	AccessLevel       document.AccessLevel
	TTL               time.Duration
	MaxAccessCount    int
	AllowedScopes     []string
	AllowedPrincipals []string
}

// Issue mints a signed capability token for one of the owner's documents and
// records the issuance in the document's sharing history.
func (s *Service) Issue(ctx context.Context, ownerID string, req IssueRequest) (CapabilityToken, error) {
	if !req.AccessLevel.IsValid() {
		return CapabilityToken{}, dErrors.New(dErrors.CodeInvalidInput, "invalid access level")
	}
	if req.TTL <= 0 {
		return CapabilityToken{}, dErrors.New(dErrors.CodeInvalidInput, "ttl must be positive")
	}
	if req.MaxAccessCount <= 0 {
		return CapabilityToken{}, dErrors.New(dErrors.CodeInvalidInput, "max access count must be positive")
	}
	if len(req.AllowedScopes) == 0 {
		return CapabilityToken{}, dErrors.New(dErrors.CodeInvalidInput, "allowed scopes must not be empty")
	}
	doc, err := s.documents.Get(ctx, req.DocumentID)
	if err != nil {
		return CapabilityToken{}, err
	}
	if doc.OwnerID != ownerID {
		return CapabilityToken{}, dErrors.New(dErrors.CodeUnauthorized, "document not owned by caller")
	}

	now := time.Now()
	t := CapabilityToken{
		ID:                uuid.NewString(),
		DocumentID:        req.DocumentID,
		OwnerID:           ownerID,
		AccessLevel:       req.AccessLevel,
		IssuedAt:          now,
		ExpiresAt:         now.Add(req.TTL),
		Active:            true,
		MaxAccess:         req.MaxAccessCount,
		AllowedScopes:     req.AllowedScopes,
		AllowedPrincipals: req.AllowedPrincipals,
	}
	t.Signature, err = s.signer.Sign(signingBase(t.DocumentID, t.OwnerID, t.AccessLevel, t.ExpiresAt))
	if err != nil {
		return CapabilityToken{}, dErrors.New(dErrors.CodeInternal, "could not sign token")
	}
	t.EncodedPayload, err = encodePayload(t)
	if err != nil {
		return CapabilityToken{}, dErrors.New(dErrors.CodeInternal, "could not encode token")
	}

	if err := s.store.Save(ctx, t); err != nil {
		return CapabilityToken{}, err
	}
	if err := s.documents.AppendTokenSharing(ctx, t.DocumentID, t.ID, t.AccessLevel); err != nil {
		return CapabilityToken{}, err
	}
	if s.metrics != nil {
		s.metrics.TokensIssued.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionTokenIssued,
		Subject: t.ID,
	})
	return t, nil
}

// ValidateAndConsume checks a presented payload and, if every check passes,
// consumes one use and returns the document. Checks run in fixed order and
// short-circuit on first failure; only expiry and exhaustion flip the token
// inactive as their declared side effect. The usage check and increment are
// indivisible under the per-token lock, so two simultaneous scans of a token
// with one use left cannot both succeed.
func (s *Service) ValidateAndConsume(ctx context.Context, encodedPayload, requestingScope, requestingPrincipal string) (document.Document, error) {
	start := time.Now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ConsumeDuration.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
		}
	}()

	wire, ok := decodePayload(encodedPayload)
	if !ok {
		s.metrics.DeniedReason(string(dErrors.CodeMalformedToken))
		s.log.Warn("token validation failed", "reason", "malformed payload")
		return document.Document{}, dErrors.New(dErrors.CodeMalformedToken, bearerRejection)
	}

	// The wire payload only locates the token; every enforcement decision is
	// made against stored state, never bearer-supplied fields.
	if _, err := s.store.FindByID(ctx, wire.TokenID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return document.Document{}, s.deny(ctx, wire.TokenID, "", dErrors.CodeNotFound, "unknown token")
		}
		return document.Document{}, err
	}

	lock := s.lockFor(wire.TokenID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.FindByID(ctx, wire.TokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.releaseLock(wire.TokenID)
			return document.Document{}, s.deny(ctx, wire.TokenID, "", dErrors.CodeNotFound, "unknown token")
		}
		return document.Document{}, err
	}

	now := time.Now()
	if !t.Active {
		s.releaseLock(t.ID)
		return document.Document{}, s.deny(ctx, t.ID, t.OwnerID, dErrors.CodeRevoked, "token inactive")
	}
	if now.After(t.ExpiresAt) {
		t.Active = false
		if err := s.store.Save(ctx, t); err != nil {
			return document.Document{}, err
		}
		s.releaseLock(t.ID)
		return document.Document{}, s.deny(ctx, t.ID, t.OwnerID, dErrors.CodeExpired, "token expired")
	}
	if t.AccessCount >= t.MaxAccess {
		t.Active = false
		if err := s.store.Save(ctx, t); err != nil {
			return document.Document{}, err
		}
		s.releaseLock(t.ID)
		return document.Document{}, s.deny(ctx, t.ID, t.OwnerID, dErrors.CodeUsageExceeded, "usage exhausted")
	}
	if !contains(t.AllowedScopes, requestingScope) {
		return document.Document{}, s.deny(ctx, t.ID, t.OwnerID, dErrors.CodeScopeDenied, "scope not allowed: "+requestingScope)
	}
	if len(t.AllowedPrincipals) > 0 && !contains(t.AllowedPrincipals, requestingPrincipal) {
		return document.Document{}, s.deny(ctx, t.ID, t.OwnerID, dErrors.CodePrincipalDenied, "principal not allowed")
	}
	if !s.signer.Verify(signingBase(t.DocumentID, t.OwnerID, t.AccessLevel, t.ExpiresAt), t.Signature) {
		return document.Document{}, s.deny(ctx, t.ID, t.OwnerID, dErrors.CodeSignatureInvalid, "signature mismatch")
	}

	// Admission: the increment below is the operation that succeeds; log
	// entries follow it in admission order, still under the token lock.
	t.AccessCount++
	if err := s.store.Save(ctx, t); err != nil {
		return document.Document{}, err
	}
	if err := s.documents.RecordTokenRead(ctx, t.DocumentID, t.ID); err != nil {
		s.log.Error("sharing history update failed after consume",
			"token_id", t.ID, "document_id", t.DocumentID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.TokensConsumed.Inc()
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID:  t.OwnerID,
		Actor:    bearerActor(requestingScope, requestingPrincipal),
		Action:   audit.ActionTokenConsumed,
		Subject:  t.ID,
		Decision: "allowed",
	})

	doc, err := s.documents.Get(ctx, t.DocumentID)
	if err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

// deny records the precise internal reason and returns the uniform bearer
// error carrying only the code.
func (s *Service) deny(ctx context.Context, tokenID, ownerID string, code dErrors.Code, reason string) error {
	s.metrics.DeniedReason(string(code))
	s.log.Warn("token validation failed", "token_id", tokenID, "reason", reason)
	if ownerID != "" {
		s.auditor.Emit(ctx, audit.Event{
			OwnerID:  ownerID,
			Actor:    "bearer",
			Action:   audit.ActionTokenDenied,
			Subject:  tokenID,
			Decision: "denied",
			Reason:   reason,
		})
	}
	return dErrors.New(code, bearerRejection)
}

// Revoke idempotently deactivates a token and closes its sharing history
// entry. Never errors on an already inactive token.
func (s *Service) Revoke(ctx context.Context, tokenID string) error {
	lock := s.lockFor(tokenID)
	lock.Lock()
	defer lock.Unlock()

	t, err := s.store.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.releaseLock(tokenID)
			return dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return err
	}
	if !t.Active {
		s.releaseLock(tokenID)
		return nil
	}
	t.Active = false
	if err := s.store.Save(ctx, t); err != nil {
		return err
	}
	s.releaseLock(t.ID)
	if err := s.documents.CloseTokenSharing(ctx, t.DocumentID, t.ID); err != nil {
		s.log.Error("sharing history update failed on revoke", "token_id", t.ID, "error", err)
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: t.OwnerID,
		Actor:   t.OwnerID,
		Action:  audit.ActionTokenRevoked,
		Subject: t.ID,
	})
	return nil
}

// RevokeAllForOwner deactivates every token the owner ever issued. Part of
// the owner deletion cascade.
func (s *Service) RevokeAllForOwner(ctx context.Context, ownerID string) error {
	tokens, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if err := s.Revoke(ctx, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a token by id for owner-facing inspection.
func (s *Service) Get(ctx context.Context, tokenID string) (CapabilityToken, error) {
	t, err := s.store.FindByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return CapabilityToken{}, dErrors.New(dErrors.CodeNotFound, "token not found")
		}
		return CapabilityToken{}, err
	}
	return t, nil
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func bearerActor(scope, principal string) string {
	if principal != "" {
		return scope + "/" + principal
	}
	return scope
}
