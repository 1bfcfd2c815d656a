package captoken

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custoda/internal/audit"
	"custoda/internal/document"
	"custoda/internal/signer"
	dErrors "custoda/pkg/domainerrors"
)

type activeGate struct{}

func (activeGate) ActiveOwner(context.Context, string) (bool, error) { return true, nil }

type CapTokenServiceSuite struct {
	suite.Suite
	store     *InMemoryStore
	documents *document.Service
	signer    signer.Signer
	service   *Service

	ownerID string
	docID   string
}

func TestCapTokenServiceSuite(t *testing.T) {
	suite.Run(t, new(CapTokenServiceSuite))
}

func (s *CapTokenServiceSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := audit.NewPublisher(audit.NewInMemoryStore(), log)

	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	s.documents = document.NewService(document.NewInMemoryStore(), document.NewInMemoryBlobStore(), key, activeGate{}, auditor, log)

	s.store = NewInMemoryStore()
	s.signer = signer.NewHMAC("test-capability-key")
	s.service = NewService(s.store, s.documents, s.signer, auditor, log, nil)

	s.ownerID = uuid.NewString()
	doc, err := s.documents.Upload(context.Background(), s.ownerID, []byte("vaccination card"), document.Metadata{
		FileName:    "vaccination.pdf",
		ContentType: "application/pdf",
	})
	s.Require().NoError(err)
	s.docID = doc.ID
}

func (s *CapTokenServiceSuite) issue(req IssueRequest) CapabilityToken {
	if req.DocumentID == "" {
		req.DocumentID = s.docID
	}
	if req.AccessLevel == "" {
		req.AccessLevel = document.LevelView
	}
	if req.TTL == 0 {
		req.TTL = time.Hour
	}
	if req.MaxAccessCount == 0 {
		req.MaxAccessCount = 2
	}
	if req.AllowedScopes == nil {
		req.AllowedScopes = []string{"intake"}
	}
	t, err := s.service.Issue(context.Background(), s.ownerID, req)
	s.Require().NoError(err)
	return t
}

func (s *CapTokenServiceSuite) TestIssue() {
	ctx := context.Background()

	s.Run("rejects zero ttl", func() {
		_, err := s.service.Issue(ctx, s.ownerID, IssueRequest{
			DocumentID: s.docID, AccessLevel: document.LevelView,
			MaxAccessCount: 1, AllowedScopes: []string{"intake"},
		})
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})

	s.Run("rejects empty scopes", func() {
		_, err := s.service.Issue(ctx, s.ownerID, IssueRequest{
			DocumentID: s.docID, AccessLevel: document.LevelView,
			TTL: time.Hour, MaxAccessCount: 1,
		})
		s.Equal(dErrors.CodeInvalidInput, dErrors.CodeOf(err))
	})

	s.Run("rejects foreign document", func() {
		_, err := s.service.Issue(ctx, "someone-else", IssueRequest{
			DocumentID: s.docID, AccessLevel: document.LevelView,
			TTL: time.Hour, MaxAccessCount: 1, AllowedScopes: []string{"intake"},
		})
		s.Equal(dErrors.CodeUnauthorized, dErrors.CodeOf(err))
	})

	s.Run("signs and encodes the payload and records sharing history", func() {
		token := s.issue(IssueRequest{})
		s.NotEmpty(token.Signature)
		s.NotEmpty(token.EncodedPayload)
		s.True(token.Active)

		doc, err := s.documents.Get(ctx, s.docID)
		s.Require().NoError(err)
		var found bool
		for _, entry := range doc.SharingHistory {
			if entry.TokenID == token.ID {
				found = true
				s.Equal(document.MethodToken, entry.Method)
			}
		}
		s.True(found, "issuance must land in sharing history")
	})
}

func (s *CapTokenServiceSuite) TestValidateAndConsume() {
	ctx := context.Background()

	s.Run("allows matching scope until the usage cap, then exhausts", func() {
		token := s.issue(IssueRequest{MaxAccessCount: 2, AllowedScopes: []string{"intake"}})

		for i := 0; i < 2; i++ {
			doc, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
			s.Require().NoError(err)
			s.Equal(s.docID, doc.ID)
		}

		_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeUsageExceeded, dErrors.CodeOf(err))

		// Exhaustion deactivates; the next attempt reads as revoked.
		_, err = s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeRevoked, dErrors.CodeOf(err))
	})

	s.Run("denies scope not on the whitelist without consuming a use", func() {
		token := s.issue(IssueRequest{MaxAccessCount: 1, AllowedScopes: []string{"intake"}})

		_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "medical", "")
		s.Equal(dErrors.CodeScopeDenied, dErrors.CodeOf(err))

		_, err = s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.NoError(err, "the denied attempt must not have consumed the single use")
	})

	s.Run("denies principal not on the whitelist", func() {
		token := s.issue(IssueRequest{AllowedPrincipals: []string{"dr-reyes"}})

		_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "dr-smith")
		s.Equal(dErrors.CodePrincipalDenied, dErrors.CodeOf(err))

		_, err = s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "dr-reyes")
		s.NoError(err)
	})

	s.Run("rejects malformed payloads", func() {
		_, err := s.service.ValidateAndConsume(ctx, "@@not-base64@@", "intake", "")
		s.Equal(dErrors.CodeMalformedToken, dErrors.CodeOf(err))
	})

	s.Run("rejects unknown tokens", func() {
		ghost := CapabilityToken{
			ID:          uuid.NewString(),
			DocumentID:  s.docID,
			OwnerID:     s.ownerID,
			AccessLevel: document.LevelView,
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		encoded, err := encodePayload(ghost)
		s.Require().NoError(err)

		_, err = s.service.ValidateAndConsume(ctx, encoded, "intake", "")
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})

	s.Run("expired token is denied and flipped inactive", func() {
		expired := s.storedToken(time.Now().Add(-time.Minute), 5, true)

		_, err := s.service.ValidateAndConsume(ctx, expired.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeExpired, dErrors.CodeOf(err))

		stored, err := s.store.FindByID(ctx, expired.ID)
		s.Require().NoError(err)
		s.False(stored.Active)
	})

	s.Run("signature tamper is denied", func() {
		tampered := s.storedToken(time.Now().Add(time.Hour), 5, true)
		tampered.Signature = "forged"
		s.Require().NoError(s.store.Save(ctx, tampered))

		_, err := s.service.ValidateAndConsume(ctx, tampered.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeSignatureInvalid, dErrors.CodeOf(err))
	})

	s.Run("every rejection carries the same outward message", func() {
		token := s.issue(IssueRequest{AllowedScopes: []string{"intake"}})
		s.Require().NoError(s.service.Revoke(ctx, token.ID))

		_, scopeErr := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		_, malformedErr := s.service.ValidateAndConsume(ctx, "garbage", "intake", "")

		s.Contains(scopeErr.Error(), "token not accepted")
		s.Contains(malformedErr.Error(), "token not accepted")
	})
}

// storedToken saves a fully-signed token directly, bypassing Issue, so tests
// can control the expiry clock.
func (s *CapTokenServiceSuite) storedToken(expiresAt time.Time, maxAccess int, active bool) CapabilityToken {
	t := CapabilityToken{
		ID:            uuid.NewString(),
		DocumentID:    s.docID,
		OwnerID:       s.ownerID,
		AccessLevel:   document.LevelView,
		IssuedAt:      time.Now(),
		ExpiresAt:     expiresAt,
		Active:        active,
		MaxAccess:     maxAccess,
		AllowedScopes: []string{"intake"},
	}
	sig, err := s.signer.Sign(signingBase(t.DocumentID, t.OwnerID, t.AccessLevel, t.ExpiresAt))
	s.Require().NoError(err)
	t.Signature = sig
	t.EncodedPayload, err = encodePayload(t)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Save(context.Background(), t))
	return t
}

func (s *CapTokenServiceSuite) TestValidateAndConsume_ConcurrentSingleUse() {
	ctx := context.Background()
	token := s.issue(IssueRequest{MaxAccessCount: 1, AllowedScopes: []string{"intake"}})

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	for err := range results {
		if err == nil {
			successes++
		}
	}
	s.Equal(1, successes, "a single-use token admits exactly one of %d concurrent scans", attempts)

	stored, err := s.store.FindByID(ctx, token.ID)
	s.Require().NoError(err)
	s.Equal(1, stored.AccessCount)
}

func (s *CapTokenServiceSuite) TestTerminalTokensReleaseTheirLock() {
	ctx := context.Background()

	lockCount := func() int {
		s.service.mu.Lock()
		defer s.service.mu.Unlock()
		return len(s.service.tokenMu)
	}

	s.Run("exhaustion drops the per-token mutex", func() {
		token := s.issue(IssueRequest{MaxAccessCount: 1, AllowedScopes: []string{"intake"}})

		_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Require().NoError(err)
		_, err = s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeUsageExceeded, dErrors.CodeOf(err))
		s.Equal(0, lockCount())

		// Replaying the dead token must not regrow the map either.
		_, err = s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeRevoked, dErrors.CodeOf(err))
		s.Equal(0, lockCount())
	})

	s.Run("revocation drops the per-token mutex", func() {
		token := s.issue(IssueRequest{})
		s.Require().NoError(s.service.Revoke(ctx, token.ID))
		s.Equal(0, lockCount())

		s.Require().NoError(s.service.Revoke(ctx, token.ID))
		s.Equal(0, lockCount())
	})

	s.Run("live tokens keep theirs", func() {
		token := s.issue(IssueRequest{MaxAccessCount: 5})
		_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Require().NoError(err)
		s.Equal(1, lockCount())
	})
}

func (s *CapTokenServiceSuite) TestRevoke() {
	ctx := context.Background()

	s.Run("revocation is terminal and idempotent", func() {
		token := s.issue(IssueRequest{})

		s.NoError(s.service.Revoke(ctx, token.ID))
		s.NoError(s.service.Revoke(ctx, token.ID))

		_, err := s.service.ValidateAndConsume(ctx, token.EncodedPayload, "intake", "")
		s.Equal(dErrors.CodeRevoked, dErrors.CodeOf(err))
	})

	s.Run("revocation closes the sharing history entry", func() {
		token := s.issue(IssueRequest{})
		s.Require().NoError(s.service.Revoke(ctx, token.ID))

		doc, err := s.documents.Get(ctx, s.docID)
		s.Require().NoError(err)
		for _, entry := range doc.SharingHistory {
			if entry.TokenID == token.ID {
				s.NotNil(entry.RevokedAt)
			}
		}
	})

	s.Run("unknown token is not found", func() {
		err := s.service.Revoke(ctx, "no-such-token")
		s.Equal(dErrors.CodeNotFound, dErrors.CodeOf(err))
	})
}

func (s *CapTokenServiceSuite) TestRevokeAllForOwner() {
	ctx := context.Background()
	first := s.issue(IssueRequest{})
	second := s.issue(IssueRequest{})

	s.Require().NoError(s.service.RevokeAllForOwner(ctx, s.ownerID))

	for _, id := range []string{first.ID, second.ID} {
		stored, err := s.store.FindByID(ctx, id)
		s.Require().NoError(err)
		s.False(stored.Active)
	}
}
