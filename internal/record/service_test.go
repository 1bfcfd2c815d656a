package record

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custoda/internal/audit"
	"custoda/pkg/platform/sentinel"
)

type directoryStub struct {
	err error
}

func (d *directoryStub) VaultRef(_ context.Context, ownerID string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return "vault-" + ownerID, nil
}

// flakyVault fails writes while broken is set.
type flakyVault struct {
	broken bool
	writes int
}

func (v *flakyVault) Provision(_ context.Context, ownerID string) (string, error) {
	return "vault-" + ownerID, nil
}

func (v *flakyVault) Write(_ context.Context, _, _ string, _ []byte) error {
	if v.broken {
		return sentinel.ErrUnavailable
	}
	v.writes++
	return nil
}

func (v *flakyVault) Read(_ context.Context, _, _ string) ([][]byte, error) {
	return nil, nil
}

type RecordServiceSuite struct {
	suite.Suite
	store    *InMemoryStore
	vault    *flakyVault
	dir      *directoryStub
	auditLog *audit.InMemoryStore
	service  *Service

	ownerID string
}

func TestRecordServiceSuite(t *testing.T) {
	suite.Run(t, new(RecordServiceSuite))
}

func (s *RecordServiceSuite) SetupTest() {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = NewInMemoryStore()
	s.vault = &flakyVault{}
	s.dir = &directoryStub{}
	s.auditLog = audit.NewInMemoryStore()
	s.service = NewService(s.store, s.vault, s.dir, audit.NewPublisher(s.auditLog, log), log, nil, time.Second)
	s.ownerID = "owner-1"
}

func (s *RecordServiceSuite) TestStore() {
	ctx := context.Background()

	s.Run("first write is version 1 with hash and write log entry", func() {
		rec, err := s.service.Store(ctx, s.ownerID, DataTypeIdentity, map[string]any{"name": "Ada"}, StoreOptions{})
		s.Require().NoError(err)
		s.Equal(1, rec.Version)
		s.NotEmpty(rec.IntegrityHash)
		s.Equal(PrivacyPrivate, rec.PrivacyLevel)
		s.Require().Len(rec.AccessLog, 1)
		s.Equal(LogWrite, rec.AccessLog[0].Action)
		s.False(rec.PendingSync, "confirmed vault write clears the pending flag")
	})

	s.Run("writes to the same chain increment the version", func() {
		first, err := s.service.Store(ctx, s.ownerID, DataTypeShelter, map[string]any{"bed": "A"}, StoreOptions{})
		s.Require().NoError(err)
		second, err := s.service.Store(ctx, s.ownerID, DataTypeShelter, map[string]any{"bed": "B"}, StoreOptions{})
		s.Require().NoError(err)
		s.Equal(first.Version+1, second.Version)
		s.NotEqual(first.ID, second.ID, "each version is its own record")
	})

	s.Run("invalid privacy override is rejected, not silently defaulted", func() {
		_, err := s.service.Store(ctx, s.ownerID, DataTypeHealth, map[string]any{}, StoreOptions{PrivacyLevel: PrivacyLevel("sneaky")})
		s.Require().Error(err)
	})

	s.Run("directory outage is not reported as a missing owner", func() {
		s.dir.err = sentinel.ErrUnavailable
		defer func() { s.dir.err = nil }()

		_, err := s.service.Store(ctx, s.ownerID, DataTypeIdentity, map[string]any{}, StoreOptions{})
		s.Require().Error(err)
		s.ErrorIs(err, sentinel.ErrUnavailable)
	})

	s.Run("invalid data type is rejected", func() {
		_, err := s.service.Store(ctx, s.ownerID, DataType("diary"), map[string]any{}, StoreOptions{})
		s.Error(err)
	})

	s.Run("vault outage leaves the record pending sync, never fails the write", func() {
		s.vault.broken = true
		defer func() { s.vault.broken = false }()

		rec, err := s.service.Store(ctx, s.ownerID, DataTypeHealth, map[string]any{"blood_type": "O-"}, StoreOptions{})
		s.Require().NoError(err)
		s.True(rec.PendingSync)

		pending, err := s.service.ListPendingSync(ctx, s.ownerID)
		s.Require().NoError(err)
		s.Len(pending, 1)
	})
}

func (s *RecordServiceSuite) TestList() {
	ctx := context.Background()

	s.Run("reads append to the access log", func() {
		rec, err := s.service.Store(ctx, s.ownerID, DataTypeIdentity, map[string]any{"name": "Ada"}, StoreOptions{})
		s.Require().NoError(err)

		views, err := s.service.List(ctx, s.ownerID, DataTypeIdentity, Filter{}, ListOptions{Accessor: "clinic", Purpose: "intake"})
		s.Require().NoError(err)
		s.Require().Len(views, 1)

		stored, err := s.store.FindByID(ctx, rec.ID)
		s.Require().NoError(err)
		s.Require().Len(stored.AccessLog, 2)
		s.Equal(LogRead, stored.AccessLog[1].Action)
		s.Equal("clinic", stored.AccessLog[1].Accessor)
	})

	s.Run("tampered payload surfaces as corrupted, not dropped", func() {
		rec, err := s.service.Store(ctx, s.ownerID, DataTypeEmergency, map[string]any{"contact": "sam"}, StoreOptions{})
		s.Require().NoError(err)

		rec.Payload = map[string]any{"contact": "mallory"}
		s.Require().NoError(s.store.Save(ctx, rec))

		views, err := s.service.List(ctx, s.ownerID, DataTypeEmergency, Filter{}, ListOptions{})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.True(views[0].Corrupted)
	})

	s.Run("limit and offset page through versions", func() {
		for i := 0; i < 5; i++ {
			_, err := s.service.Store(ctx, s.ownerID, DataTypeServiceHistory, map[string]any{"visit": i}, StoreOptions{})
			s.Require().NoError(err)
		}

		page, err := s.service.List(ctx, s.ownerID, DataTypeServiceHistory, Filter{Limit: 2, Offset: 2}, ListOptions{})
		s.Require().NoError(err)
		s.Len(page, 2)

		tail, err := s.service.List(ctx, s.ownerID, DataTypeServiceHistory, Filter{Offset: 10}, ListOptions{})
		s.Require().NoError(err)
		s.Empty(tail)
	})

	s.Run("privacy filter narrows results", func() {
		_, err := s.service.Store(ctx, s.ownerID, DataTypeCommunication, map[string]any{"msg": "hi"}, StoreOptions{PrivacyLevel: PrivacyShared})
		s.Require().NoError(err)
		_, err = s.service.Store(ctx, s.ownerID, DataTypeCommunication, map[string]any{"msg": "secret"}, StoreOptions{})
		s.Require().NoError(err)

		views, err := s.service.List(ctx, s.ownerID, DataTypeCommunication, Filter{PrivacyLevel: PrivacyShared}, ListOptions{})
		s.Require().NoError(err)
		s.Require().Len(views, 1)
		s.Equal(PrivacyShared, views[0].Record.PrivacyLevel)
	})
}

func (s *RecordServiceSuite) TestDelete() {
	ctx := context.Background()

	rec, err := s.service.Store(ctx, s.ownerID, DataTypeAccess, map[string]any{"badge": 1}, StoreOptions{})
	s.Require().NoError(err)

	s.Require().NoError(s.service.Delete(ctx, rec.ID, s.ownerID))

	_, err = s.store.FindByID(ctx, rec.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	// The deletion must be on the owner audit trail even though the record's
	// own log is gone.
	events, err := s.auditLog.ListByOwner(ctx, s.ownerID)
	s.Require().NoError(err)
	var deletions int
	for _, e := range events {
		if e.Action == audit.ActionRecordDeleted && e.Subject == rec.ID {
			deletions++
		}
	}
	s.Equal(1, deletions)
}

func (s *RecordServiceSuite) TestSetCrossRef() {
	ctx := context.Background()

	rec, err := s.service.Store(ctx, s.ownerID, DataTypeIdentity, map[string]any{"name": "Ada"}, StoreOptions{})
	s.Require().NoError(err)

	s.Require().NoError(s.service.SetCrossRef(ctx, rec.ID, "credential-9"))

	stored, err := s.store.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal("credential-9", stored.CrossRef)
}
