package syncer

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custoda/internal/audit"
	"custoda/internal/credential"
	"custoda/internal/owner"
	"custoda/internal/record"
	"custoda/pkg/platform/sentinel"
)

// switchableVault fails writes while broken is set.
type switchableVault struct {
	mu     sync.Mutex
	broken bool
	writes int
}

func (v *switchableVault) Provision(_ context.Context, ownerID string) (string, error) {
	return "vault-" + ownerID, nil
}

func (v *switchableVault) Write(_ context.Context, _, _ string, _ []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.broken {
		return sentinel.ErrUnavailable
	}
	v.writes++
	return nil
}

func (v *switchableVault) Read(_ context.Context, _, _ string) ([][]byte, error) {
	return nil, nil
}

type directoryStub struct{}

func (directoryStub) VaultRef(_ context.Context, ownerID string) (string, error) {
	return "vault-" + ownerID, nil
}

type SyncerSuite struct {
	suite.Suite
	owners      *owner.InMemoryStore
	recordStore *record.InMemoryStore
	records     *record.Service
	vault       *switchableVault
	credentials *credential.InMemoryStore
	service     *Service

	ownerID string
}

func TestSyncerSuite(t *testing.T) {
	suite.Run(t, new(SyncerSuite))
}

func (s *SyncerSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditor := audit.NewPublisher(audit.NewInMemoryStore(), log)

	s.owners = owner.NewInMemoryStore()
	s.recordStore = record.NewInMemoryStore()
	s.vault = &switchableVault{}
	s.credentials = credential.NewInMemoryStore()
	s.records = record.NewService(s.recordStore, s.vault, directoryStub{}, auditor, log, nil, 100*time.Millisecond)
	s.service = NewService(s.owners, s.records, s.vault, s.credentials, auditor, log, nil, 100*time.Millisecond)

	s.ownerID = "owner-1"
	credRef, err := s.credentials.Provision(context.Background(), s.ownerID)
	s.Require().NoError(err)
	s.Require().NoError(s.owners.Save(context.Background(), owner.DataOwner{
		ID:                 s.ownerID,
		Identity:           owner.Identity{Name: "Ada"},
		VaultRef:           "vault-" + s.ownerID,
		CredentialStoreRef: credRef,
		Active:             true,
	}))
}

// storePending writes a record while the vault is down, leaving it pending.
func (s *SyncerSuite) storePending(dataType record.DataType, payload any) record.UnifiedRecord {
	s.vault.broken = true
	rec, err := s.records.Store(context.Background(), s.ownerID, dataType, payload, record.StoreOptions{})
	s.Require().NoError(err)
	s.Require().True(rec.PendingSync)
	s.vault.broken = false
	return rec
}

func (s *SyncerSuite) TestSynchronize() {
	ctx := context.Background()

	s.Run("pushes pending records once the vault recovers", func() {
		rec := s.storePending(record.DataTypeShelter, map[string]any{"bed": "A"})

		result, err := s.service.Synchronize(ctx, s.ownerID)
		s.Require().NoError(err)
		s.True(result.Vault.Success)
		s.Equal(1, result.Vault.Changed)

		stored, err := s.recordStore.FindByID(ctx, rec.ID)
		s.Require().NoError(err)
		s.False(stored.PendingSync)
	})

	s.Run("a failing side is reported as data, not as an error", func() {
		s.storePending(record.DataTypeHealth, map[string]any{"note": "x"})
		s.vault.broken = true
		defer func() { s.vault.broken = false }()

		result, err := s.service.Synchronize(ctx, s.ownerID)
		s.Require().NoError(err, "side failures never fail the run")
		s.False(result.Vault.Success)
		s.NotEmpty(result.Vault.Errors)
		s.True(result.Credential.Success, "the healthy side still runs")
	})

	s.Run("derives a credential from an unlinked identity record", func() {
		rec, err := s.records.Store(ctx, s.ownerID, record.DataTypeIdentity, map[string]any{"name": "Ada"}, record.StoreOptions{})
		s.Require().NoError(err)
		s.Empty(rec.CrossRef)

		result, err := s.service.Synchronize(ctx, s.ownerID)
		s.Require().NoError(err)
		s.True(result.Credential.Success)
		s.Positive(result.Credential.Changed)

		stored, err := s.recordStore.FindByID(ctx, rec.ID)
		s.Require().NoError(err)
		s.NotEmpty(stored.CrossRef)

		o, err := s.owners.FindByID(ctx, s.ownerID)
		s.Require().NoError(err)
		creds, err := s.credentials.List(ctx, o.CredentialStoreRef)
		s.Require().NoError(err)
		s.Len(creds, 1)
	})

	s.Run("retries a pending credential link", func() {
		s.Require().NoError(s.owners.Save(ctx, owner.DataOwner{
			ID:                    "unlinked",
			Identity:              owner.Identity{Name: "Bo"},
			VaultRef:              "vault-unlinked",
			CredentialLinkPending: true,
			Active:                true,
		}))

		result, err := s.service.Synchronize(ctx, "unlinked")
		s.Require().NoError(err)
		s.True(result.Credential.Success)
		s.Positive(result.Credential.Changed)

		o, err := s.owners.FindByID(ctx, "unlinked")
		s.Require().NoError(err)
		s.False(o.CredentialLinkPending)
		s.NotEmpty(o.CredentialStoreRef)
	})

	s.Run("unknown owner is an error", func() {
		_, err := s.service.Synchronize(ctx, "missing")
		s.Error(err)
	})
}

func (s *SyncerSuite) TestValidateIntegrity() {
	ctx := context.Background()

	s.Run("clean records all verify", func() {
		_, err := s.records.Store(ctx, s.ownerID, record.DataTypeShelter, map[string]any{"bed": "A"}, record.StoreOptions{})
		s.Require().NoError(err)

		report, err := s.service.ValidateIntegrity(ctx, s.ownerID)
		s.Require().NoError(err)
		s.Equal(report.TotalRecords, report.ValidRecords)
		s.Empty(report.HashMismatches)
	})

	s.Run("tampered record is reported with a recommendation, hash untouched", func() {
		rec, err := s.records.Store(ctx, s.ownerID, record.DataTypeEmergency, map[string]any{"contact": "sam"}, record.StoreOptions{})
		s.Require().NoError(err)

		tampered := rec
		tampered.Payload = map[string]any{"contact": "mallory"}
		s.Require().NoError(s.recordStore.Save(ctx, tampered))

		report, err := s.service.ValidateIntegrity(ctx, s.ownerID)
		s.Require().NoError(err)
		s.Require().Len(report.HashMismatches, 1)
		s.Equal(rec.ID, report.HashMismatches[0].RecordID)
		s.Equal(rec.IntegrityHash, report.HashMismatches[0].Expected)
		s.NotEmpty(report.RecommendedActions)

		// Read-only: the stored hash is still the original one.
		stored, err := s.recordStore.FindByID(ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.IntegrityHash, stored.IntegrityHash)
	})

	s.Run("broken cross reference is reported", func() {
		rec, err := s.records.Store(ctx, s.ownerID, record.DataTypeAccess, map[string]any{"badge": 7}, record.StoreOptions{})
		s.Require().NoError(err)
		s.Require().NoError(s.records.SetCrossRef(ctx, rec.ID, "credential-gone"))

		report, err := s.service.ValidateIntegrity(ctx, s.ownerID)
		s.Require().NoError(err)
		s.Contains(report.MissingCrossReferences, rec.ID)
	})
}
