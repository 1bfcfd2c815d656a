package document

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"custoda/internal/audit"
	dErrors "custoda/pkg/domainerrors"
	"custoda/pkg/platform/sentinel"
)

// OwnerGate answers whether an owner exists and is active. Implemented by the
// owner registry.
type OwnerGate interface {
	ActiveOwner(ctx context.Context, ownerID string) (bool, error)
}

// Service is the document store: owner-scoped metadata, per-document access
// rights, sharing history, and the encrypted blob backend.
type Service struct {
	store   Store
	blobs   BlobStore
	box     *sealedBox
	owners  OwnerGate
	auditor *audit.Publisher
	log     *slog.Logger
}

func NewService(store Store, blobs BlobStore, documentKey [32]byte, owners OwnerGate, auditor *audit.Publisher, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		blobs:   blobs,
		box:     newSealedBox(documentKey),
		owners:  owners,
		auditor: auditor,
		log:     log,
	}
}

// Upload stores document bytes and metadata for an owner. Bytes are encrypted
// at rest unless the metadata explicitly opts out.
func (s *Service) Upload(ctx context.Context, ownerID string, data []byte, meta Metadata) (Document, error) {
	active, err := s.owners.ActiveOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Document{}, dErrors.New(dErrors.CodeNotFound, "owner not found")
		}
		return Document{}, err
	}
	if !active {
		return Document{}, dErrors.New(dErrors.CodeUnauthorized, "owner is inactive")
	}
	if len(data) == 0 {
		return Document{}, dErrors.New(dErrors.CodeInvalidInput, "document is empty")
	}
	if meta.FileName == "" {
		return Document{}, dErrors.New(dErrors.CodeInvalidInput, "file name is required")
	}

	encrypted := !meta.PlainText
	stored := data
	if encrypted {
		stored, err = s.box.seal(data)
		if err != nil {
			return Document{}, dErrors.New(dErrors.CodeInternal, "could not encrypt document")
		}
	}

	docID := uuid.NewString()
	ref := "blob-" + docID
	if err := s.blobs.Put(ctx, ref, stored); err != nil {
		return Document{}, err
	}

	doc := Document{
		ID:          docID,
		OwnerID:     ownerID,
		FileName:    meta.FileName,
		Size:        int64(len(data)),
		ContentType: meta.ContentType,
		Tags:        meta.Tags,
		UploadedAt:  time.Now(),
		IsEncrypted: encrypted,
		StorageRef:  ref,
	}
	if err := s.store.Save(ctx, doc); err != nil {
		return Document{}, err
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionDocumentUpload,
		Subject: doc.ID,
	})
	return doc, nil
}

// Get returns document metadata by id.
func (s *Service) Get(ctx context.Context, documentID string) (Document, error) {
	doc, err := s.store.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Document{}, dErrors.New(dErrors.CodeNotFound, "document not found")
		}
		return Document{}, err
	}
	return doc, nil
}

// ListByOwner returns all of an owner's documents.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Document, error) {
	return s.store.ListByOwner(ctx, ownerID)
}

// Share creates an explicit access right on the owner's document. Only the
// owning owner may create a grant.
func (s *Service) Share(ctx context.Context, ownerID, documentID, grantedTo string, level AccessLevel, expires *time.Time, conditions string) (DocumentAccessRight, error) {
	if !level.IsValid() {
		return DocumentAccessRight{}, dErrors.New(dErrors.CodeInvalidInput, "invalid access level")
	}
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return DocumentAccessRight{}, err
	}
	if doc.OwnerID != ownerID {
		return DocumentAccessRight{}, dErrors.New(dErrors.CodeUnauthorized, "document not owned by caller")
	}

	now := time.Now()
	right := DocumentAccessRight{
		ID:         uuid.NewString(),
		GrantedTo:  grantedTo,
		Level:      level,
		GrantedAt:  now,
		Expires:    expires,
		IsActive:   true,
		Conditions: conditions,
	}
	sharing := SharingRecord{
		ID:         uuid.NewString(),
		SharedWith: grantedTo,
		Method:     MethodDirect,
		Level:      level,
		SharedAt:   now,
		AccessID:   right.ID,
	}
	doc.AccessRights = append(doc.AccessRights, right)
	doc.SharingHistory = append(doc.SharingHistory, sharing)
	if err := s.store.Save(ctx, doc); err != nil {
		return DocumentAccessRight{}, err
	}
	s.auditor.Emit(ctx, audit.Event{
		OwnerID: ownerID,
		Actor:   ownerID,
		Action:  audit.ActionDocumentShared,
		Subject: documentID,
		Reason:  "granted to " + grantedTo,
	})
	return right, nil
}

// RevokeAccess deactivates one access right and closes its sharing history
// entry. Terminal; revoking an inactive right succeeds without effect.
func (s *Service) RevokeAccess(ctx context.Context, ownerID, accessID string) error {
	docs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		for i, right := range doc.AccessRights {
			if right.ID != accessID {
				continue
			}
			if !right.IsActive {
				return nil
			}
			now := time.Now()
			doc.AccessRights[i].IsActive = false
			doc.AccessRights[i].RevokedAt = &now
			doc.AccessRights[i].RevokedBy = ownerID
			for j := range doc.SharingHistory {
				if doc.SharingHistory[j].AccessID == accessID {
					doc.SharingHistory[j].RevokedAt = &now
				}
			}
			if err := s.store.Save(ctx, doc); err != nil {
				return err
			}
			s.auditor.Emit(ctx, audit.Event{
				OwnerID: ownerID,
				Actor:   ownerID,
				Action:  audit.ActionAccessRevoked,
				Subject: accessID,
			})
			return nil
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "access right not found")
}

// AppendTokenSharing records capability token issuance in the document's
// sharing history. The token service is the only caller.
func (s *Service) AppendTokenSharing(ctx context.Context, documentID, tokenID string, level AccessLevel) error {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}
	doc.SharingHistory = append(doc.SharingHistory, SharingRecord{
		ID:         uuid.NewString(),
		SharedWith: "bearer",
		Method:     MethodToken,
		Level:      level,
		SharedAt:   time.Now(),
		TokenID:    tokenID,
	})
	return s.store.Save(ctx, doc)
}

// RecordTokenRead bumps the token's sharing history entry after a successful
// bearer validation, in admission order.
func (s *Service) RecordTokenRead(ctx context.Context, documentID, tokenID string) error {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}
	for i := range doc.SharingHistory {
		if doc.SharingHistory[i].TokenID == tokenID {
			doc.SharingHistory[i].AccessCount++
			return s.store.Save(ctx, doc)
		}
	}
	return dErrors.New(dErrors.CodeNotFound, "sharing record not found for token")
}

// CloseTokenSharing marks the token's sharing history entry revoked. Token
// revocation and access-right revocation are independent paths, but both
// update the sharing entry they correspond to.
func (s *Service) CloseTokenSharing(ctx context.Context, documentID, tokenID string) error {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return err
	}
	now := time.Now()
	for i := range doc.SharingHistory {
		if doc.SharingHistory[i].TokenID == tokenID && doc.SharingHistory[i].RevokedAt == nil {
			doc.SharingHistory[i].RevokedAt = &now
			return s.store.Save(ctx, doc)
		}
	}
	return nil
}

// Download returns the document's bytes for the owner or a grantee holding an
// active right at download level or above.
func (s *Service) Download(ctx context.Context, documentID, requester string) (Document, []byte, error) {
	doc, err := s.Get(ctx, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	if requester != doc.OwnerID && !hasActiveRight(doc, requester, LevelDownload) {
		return Document{}, nil, dErrors.New(dErrors.CodeUnauthorized, "no download right on document")
	}
	data, err := s.blobs.Get(ctx, doc.StorageRef)
	if err != nil {
		return Document{}, nil, err
	}
	if doc.IsEncrypted {
		data, err = s.box.open(data)
		if err != nil {
			return Document{}, nil, dErrors.New(dErrors.CodeIntegrityMismatch, "stored document failed decryption")
		}
	}
	return doc, data, nil
}

// RevokeAllForOwner deactivates every access right and open sharing entry on
// the owner's documents. Part of the owner deletion cascade.
func (s *Service) RevokeAllForOwner(ctx context.Context, ownerID string) error {
	docs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, doc := range docs {
		changed := false
		for i := range doc.AccessRights {
			if doc.AccessRights[i].IsActive {
				doc.AccessRights[i].IsActive = false
				doc.AccessRights[i].RevokedAt = &now
				doc.AccessRights[i].RevokedBy = ownerID
				changed = true
			}
		}
		for i := range doc.SharingHistory {
			if doc.SharingHistory[i].RevokedAt == nil {
				doc.SharingHistory[i].RevokedAt = &now
				changed = true
			}
		}
		if changed {
			if err := s.store.Save(ctx, doc); err != nil {
				return err
			}
		}
	}
	return nil
}

// levelRank orders access levels so a higher grant implies lower ones.
var levelRank = map[AccessLevel]int{
	LevelView:     1,
	LevelDownload: 2,
	LevelEdit:     3,
	LevelFull:     4,
}

func hasActiveRight(doc Document, grantee string, atLeast AccessLevel) bool {
	now := time.Now()
	for _, right := range doc.AccessRights {
		if right.GrantedTo != grantee || !right.IsActive {
			continue
		}
		if right.Expires != nil && now.After(*right.Expires) {
			continue
		}
		if levelRank[right.Level] >= levelRank[atLeast] {
			return true
		}
	}
	return false
}
